// Package metrics defines and registers all custom Prometheus metrics for the
// member dashboard. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package init
// (promauto); the HTTP API exposes them on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "memberdash"

// ── Session metrics ───────────────────────────────────────────────────────────

// AuthEventsTotal counts provider auth events handled by the session manager.
// Labels:
//   - event:   the provider event type (e.g. "SIGNED_IN", "TOKEN_REFRESHED")
//   - outcome: "applied", "rejected" (verification failed), "ignored" (already signed out) or "dropped" (after teardown)
var AuthEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Total number of identity provider auth events, by type and outcome.",
	},
	[]string{"event", "outcome"},
)

// AuthErrorsTotal counts classified identity provider errors.
// Label:
//   - class: "session_invalid" or "unclassified"
var AuthErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_errors_total",
		Help:      "Total number of identity provider errors, by classification.",
	},
	[]string{"class"},
)

// SignOutsTotal counts completed sign-out sequences.
// Label:
//   - trigger: "user", "provider" (SIGNED_OUT event) or "expired" (forced)
var SignOutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sign_outs_total",
		Help:      "Total number of sign-out sequences, by trigger.",
	},
	[]string{"trigger"},
)

// SessionAuthenticated is 1 while an authenticated session is published, else 0.
var SessionAuthenticated = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_authenticated",
		Help:      "Whether an authenticated session is currently held (1) or not (0).",
	},
)

// ── Profile metrics ───────────────────────────────────────────────────────────

// ProfileFetchTotal counts profile fetch attempts that reached the member store.
// Label:
//   - result: "ok", "not_found", "missing_member_number", "query_failed", "no_session", "discarded"
var ProfileFetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_fetch_total",
		Help:      "Total number of member profile fetches, by result.",
	},
	[]string{"result"},
)

// ProfileCacheTotal counts query cache lookups for profiles.
// Label:
//   - result: "hit" or "miss"
var ProfileCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_cache_total",
		Help:      "Total number of profile cache lookups, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// ProfileFetchDuration measures a full profile resolution including retries.
var ProfileFetchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "profile_fetch_duration_seconds",
		Help:      "Duration of member profile resolution, retries included.",
		Buckets:   prometheus.DefBuckets,
	},
)
