package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
	"github.com/memberhub/memberdash/internal/pkg/metrics"
)

const (
	profileKeyPrefix       = "memberProfile:"
	defaultProfileAttempts = 2
)

// ProfileKey is the query cache key of the profile resolved for subject.
func ProfileKey(subject string) string { return profileKeyPrefix + subject }

// ProfileLoader resolves the one member row tied to the current session.
type ProfileLoader struct {
	sessions    ports.SessionReader
	repo        ports.MemberRepository
	cache       ports.QueryCache
	expirer     ports.SessionExpirer
	maxAttempts int
	newBackOff  func() backoff.BackOff
	group       singleflight.Group
	log         zerolog.Logger
}

// NewProfileLoader returns a loader. maxAttempts <= 0 selects the default of two
// (one automatic retry).
func NewProfileLoader(
	sessions ports.SessionReader,
	repo ports.MemberRepository,
	cache ports.QueryCache,
	expirer ports.SessionExpirer,
	maxAttempts int,
	log zerolog.Logger,
) *ProfileLoader {
	if maxAttempts <= 0 {
		maxAttempts = defaultProfileAttempts
	}
	return &ProfileLoader{
		sessions:    sessions,
		repo:        repo,
		cache:       cache,
		expirer:     expirer,
		maxAttempts: maxAttempts,
		newBackOff:  newRetryBackOff,
		log:         log,
	}
}

// Load returns the member profile for the current session, from cache when
// possible. A missing session forces the session-expired logout path.
func (l *ProfileLoader) Load(ctx context.Context) (*domain.Member, error) {
	snap := l.sessions.Snapshot()
	sess := snap.Session
	if sess == nil || sess.User.ID == "" {
		metrics.ProfileFetchTotal.WithLabelValues("no_session").Inc()
		l.log.Error().Msg("no active session found")
		if l.expirer != nil {
			l.expirer.ExpireSession(ctx, domain.ErrNoSession.Error())
		}
		return nil, domain.ErrNoSession
	}

	key := ProfileKey(sess.User.ID)
	if cached, ok := l.cache.Get(key); ok {
		if m, ok := cached.(*domain.Member); ok {
			metrics.ProfileCacheTotal.WithLabelValues("hit").Inc()
			return m, nil
		}
	}
	metrics.ProfileCacheTotal.WithLabelValues("miss").Inc()

	v, err, _ := l.group.Do(key, func() (any, error) {
		start := time.Now()
		defer func() { metrics.ProfileFetchDuration.Observe(time.Since(start).Seconds()) }()

		m, err := withRetry(ctx, l.maxAttempts, l.newBackOff(), retryableProfileError, func(ctx context.Context, attempt int) (*domain.Member, error) {
			return l.fetch(ctx, sess, attempt)
		})
		if err != nil {
			return nil, err
		}
		if !l.cacheUnlessSignedOut(key, m, snap.Epoch) {
			metrics.ProfileFetchTotal.WithLabelValues("discarded").Inc()
			l.log.Debug().Str("user_id", sess.User.ID).Msg("profile discarded after sign-out")
			return nil, domain.ErrNoSession
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Member), nil
}

// cacheUnlessSignedOut stores m only while no sign-out happened since epoch.
// The epoch is read again after the write: a sign-out bumps it before resetting
// the cache, so either that reset or the Invalidate here removes the entry.
func (l *ProfileLoader) cacheUnlessSignedOut(key string, m *domain.Member, epoch uint64) bool {
	if l.sessions.Snapshot().Epoch != epoch {
		return false
	}
	l.cache.Set(key, m)
	if l.sessions.Snapshot().Epoch != epoch {
		l.cache.Invalidate(key)
		return false
	}
	return true
}

// State wraps Load into the presentation-facing view.
func (l *ProfileLoader) State(ctx context.Context) ports.ProfileState {
	if l.sessions.Snapshot().Loading {
		return ports.ProfileState{IsLoading: true}
	}
	m, err := l.Load(ctx)
	if err != nil {
		return ports.ProfileState{IsError: true, Err: err}
	}
	return ports.ProfileState{Data: m}
}

// Invalidate drops the cached profile of subject.
func (l *ProfileLoader) Invalidate(subject string) {
	l.cache.Invalidate(ProfileKey(subject))
}

func (l *ProfileLoader) fetch(ctx context.Context, sess *domain.Session, attempt int) (*domain.Member, error) {
	memberNumber := sess.User.MemberNumber()
	if memberNumber == "" {
		metrics.ProfileFetchTotal.WithLabelValues("missing_member_number").Inc()
		l.log.Error().Str("user_id", sess.User.ID).Msg("no member number found in user metadata")
		return nil, domain.ErrMemberNumberMissing
	}

	l.log.Debug().
		Str("user_id", sess.User.ID).
		Str("member_number", memberNumber).
		Int("attempt", attempt).
		Msg("fetching member profile")

	rows, err := l.repo.FindByMemberNumberOrAuthUser(ctx, memberNumber, sess.User.ID)
	if err != nil {
		metrics.ProfileFetchTotal.WithLabelValues("query_failed").Inc()
		l.log.Error().Err(err).Int("attempt", attempt).Msg("database error fetching member")
		return nil, &domain.QueryError{Err: err}
	}

	switch len(rows) {
	case 1:
		metrics.ProfileFetchTotal.WithLabelValues("ok").Inc()
		return rows[0], nil
	case 0:
		metrics.ProfileFetchTotal.WithLabelValues("not_found").Inc()
		l.log.Error().Str("member_number", memberNumber).Msg("no member found")
		return nil, domain.ErrMemberNotFound
	default:
		metrics.ProfileFetchTotal.WithLabelValues("not_found").Inc()
		l.log.Error().Str("member_number", memberNumber).Int("rows", len(rows)).Msg("member lookup is ambiguous")
		return nil, fmt.Errorf("%w: %d rows matched", domain.ErrMemberNotFound, len(rows))
	}
}

// retryableProfileError excludes failures that are stable across attempts.
func retryableProfileError(err error) bool {
	return !errors.Is(err, domain.ErrMemberNumberMissing) && !errors.Is(err, domain.ErrNoSession)
}
