package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
	"github.com/memberhub/memberdash/internal/pkg/metrics"
)

// SessionManager owns the authoritative session. It reconciles the startup
// probe, provider auth events and explicit sign-outs, and is the only component
// allowed to reset the shared query cache.
type SessionManager struct {
	cell     *SessionCell
	provider ports.IdentityProvider
	cache    ports.QueryCache
	store    ports.LocalStore
	notifier ports.Notifier
	log      zerolog.Logger
	now      func() time.Time

	alive       atomic.Bool
	echoVersion atomic.Uint64
	mu          sync.Mutex
	sub         ports.Subscription
	ready       chan struct{}
	readyOnce   sync.Once
}

// NewSessionManager wires a manager around the shared cell.
func NewSessionManager(
	cell *SessionCell,
	provider ports.IdentityProvider,
	cache ports.QueryCache,
	store ports.LocalStore,
	notifier ports.Notifier,
	log zerolog.Logger,
) *SessionManager {
	return &SessionManager{
		cell:     cell,
		provider: provider,
		cache:    cache,
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		ready:    make(chan struct{}),
	}
}

// Snapshot implements ports.SessionReader.
func (m *SessionManager) Snapshot() domain.SessionSnapshot { return m.cell.Snapshot() }

// Session returns the current best-known session; nil while unauthenticated or resolving.
func (m *SessionManager) Session() *domain.Session { return m.cell.Snapshot().Session }

// IsLoading reports whether a probe, event, refresh or sign-out is in flight.
func (m *SessionManager) IsLoading() bool { return m.cell.Snapshot().Loading }

// Start subscribes to provider events and launches the startup probe. Events
// are handed to queue, which must feed them back into HandleAuthEvent in order.
func (m *SessionManager) Start(ctx context.Context, queue ports.AuthEventQueue) {
	m.alive.Store(true)

	sub := m.provider.OnAuthStateChange(func(event domain.AuthEvent) {
		if !m.alive.Load() {
			metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "dropped").Inc()
			return
		}
		if !queue.Enqueue(event) {
			m.log.Warn().Str("event", string(event.Type)).Msg("auth event not accepted by queue")
		}
	})

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()

	m.cell.beginLoading()
	go m.probe(ctx, m.cell.Epoch())
}

// WaitReady blocks until the startup probe has settled.
func (m *SessionManager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the manager down: later events and probe results are discarded.
func (m *SessionManager) Close() {
	if !m.alive.Swap(false) {
		return
	}

	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("error unsubscribing from auth changes")
		}
	}()
	sub.Unsubscribe()
}

func (m *SessionManager) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *SessionManager) probe(ctx context.Context, epoch uint64) {
	defer m.markReady()
	defer m.cell.endLoading()

	m.log.Debug().Msg("checking for existing session")

	sess, err := m.provider.GetSession(ctx)
	if !m.alive.Load() {
		return
	}
	if err != nil {
		m.log.Error().Err(err).Msg("session check failed")
		m.cell.settleInitial(epoch)
		m.handleAuthError(ctx, err)
		return
	}

	if sess != nil && sess.User.ID != "" {
		if m.cell.publishIf(epoch, domain.StateAuthenticated, sess) {
			metrics.SessionAuthenticated.Set(1)
			m.log.Info().Str("user_id", sess.User.ID).Msg("found existing session")
		} else {
			m.log.Debug().Msg("probe result discarded after sign-out")
		}
		return
	}
	m.cell.settleInitial(epoch)
}

// HandleAuthEvent processes one provider event to completion.
func (m *SessionManager) HandleAuthEvent(ctx context.Context, event domain.AuthEvent) {
	if !m.alive.Load() {
		metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "dropped").Inc()
		return
	}

	m.cell.beginLoading()
	defer m.cell.endLoading()

	m.log.Info().
		Str("event", string(event.Type)).
		Str("user_id", event.Session.Subject()).
		Msg("auth state changed")

	switch event.Type {
	case domain.EventSignedOut:
		// A revoking teardown makes the provider echo SIGNED_OUT. It is redundant
		// while that teardown runs or while nothing was published after it.
		if snap := m.cell.Snapshot(); snap.State == domain.StateSigningOut ||
			(snap.State == domain.StateUnauthenticated && snap.Version == m.echoVersion.Load()) {
			metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
			return
		}
		_ = m.teardown(ctx, "provider", false)
		metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "applied").Inc()

	case domain.EventSignedIn, domain.EventTokenRefreshed:
		m.applyVerified(ctx, event)

	default:
		state := domain.StateUnauthenticated
		if event.Session != nil {
			state = domain.StateAuthenticated
		}
		if m.cell.publishIf(m.cell.Epoch(), state, event.Session) {
			metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "applied").Inc()
		}
	}
}

// applyVerified accepts a SIGNED_IN / TOKEN_REFRESHED session only after the
// provider confirms the identity, so a stale or replayed event is not trusted.
func (m *SessionManager) applyVerified(ctx context.Context, event domain.AuthEvent) {
	label := string(event.Type)
	epoch := m.cell.Epoch()

	if event.Session == nil {
		m.log.Warn().Str("event", label).Msg("auth event without session ignored")
		metrics.AuthEventsTotal.WithLabelValues(label, "rejected").Inc()
		return
	}

	if _, err := m.provider.GetUser(ctx); err != nil {
		metrics.AuthEventsTotal.WithLabelValues(label, "rejected").Inc()
		m.log.Error().Err(err).Str("event", label).Msg("error verifying user after auth state change")
		if m.alive.Load() {
			m.handleAuthError(ctx, err)
		}
		return
	}

	if !m.alive.Load() {
		return
	}
	if !m.cell.publishIf(epoch, domain.StateAuthenticated, event.Session) {
		m.log.Debug().Str("event", label).Msg("verified session discarded after sign-out")
		return
	}
	metrics.SessionAuthenticated.Set(1)
	metrics.AuthEventsTotal.WithLabelValues(label, "applied").Inc()

	// A new sign-in may be a different identity.
	if event.Type == domain.EventSignedIn {
		m.cache.Reset()
	}
}

// SignIn starts a password sign-in. The resulting SIGNED_IN event publishes the session.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.ErrInvalidCredentials
	}

	if _, err := m.provider.SignInWithPassword(ctx, email, password); err != nil {
		var ae *domain.AuthError
		if errors.As(err, &ae) && (ae.Status == http.StatusBadRequest || ae.Status == http.StatusUnauthorized) {
			return fmt.Errorf("sign in: %w: %s", domain.ErrInvalidCredentials, ae.Message)
		}
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignOut clears derived data, wipes the local store and revokes the session
// provider side. The session is cleared even when a cleanup step fails.
func (m *SessionManager) SignOut(ctx context.Context) error {
	return m.teardown(ctx, "user", true)
}

// ExpireSession implements ports.SessionExpirer.
func (m *SessionManager) ExpireSession(ctx context.Context, reason string) {
	m.log.Warn().Str("reason", reason).Msg("session invalid or expired, signing out")
	_ = m.teardown(ctx, "expired", true)

	m.notifier.Notify(ctx, domain.Notice{
		Title:       "Session expired",
		Description: "Please sign in again",
		Variant:     domain.VariantDestructive,
		CreatedAt:   m.now().UTC(),
	})
}

func (m *SessionManager) handleAuthError(ctx context.Context, err error) {
	class := domain.ClassifyAuthError(err)
	metrics.AuthErrorsTotal.WithLabelValues(class.String()).Inc()

	if class != domain.AuthErrorSessionInvalid {
		m.log.Error().Err(err).Msg("auth error")
		return
	}
	m.ExpireSession(ctx, err.Error())
}

// teardown runs the sign-out cleanups concurrently and waits for all of them.
// revoke additionally asks the provider to invalidate the session; the provider
// reads its tokens from the local store, so revocation precedes the store wipe.
func (m *SessionManager) teardown(ctx context.Context, trigger string, revoke bool) error {
	m.cell.beginLoading()
	defer m.cell.endLoading()
	m.cell.beginSignOut()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g.Go(func() error {
		m.cache.Reset()
		return nil
	})
	g.Go(func() error {
		if revoke {
			if err := m.provider.SignOut(ctx); err != nil {
				collect(fmt.Errorf("provider sign out: %w", err))
			}
		}
		if err := m.store.Clear(ctx); err != nil {
			collect(fmt.Errorf("clear local store: %w", err))
		}
		return nil
	})
	_ = g.Wait()

	if v := m.cell.finishSignOut(); revoke {
		m.echoVersion.Store(v)
	}
	metrics.SessionAuthenticated.Set(0)
	metrics.SignOutsTotal.WithLabelValues(trigger).Inc()

	err := errors.Join(errs...)
	if err != nil {
		m.log.Error().Err(err).Str("trigger", trigger).Msg("error during sign out")
		return err
	}
	m.log.Info().Str("trigger", trigger).Msg("signed out")
	return nil
}
