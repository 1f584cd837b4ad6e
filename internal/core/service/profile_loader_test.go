package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubMemberRepo struct {
	mu    sync.Mutex
	rows  []*domain.Member
	err   error
	calls int
}

func (r *stubMemberRepo) FindByMemberNumberOrAuthUser(_ context.Context, memberNumber, authUserID string) ([]*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.Member
	for _, m := range r.rows {
		if m.MemberNumber == memberNumber || m.AuthUserID == authUserID {
			out = append(out, m)
			if len(out) == 2 {
				break
			}
		}
	}
	return out, nil
}

func (r *stubMemberRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixedSessions struct {
	snap domain.SessionSnapshot
}

func (f fixedSessions) Snapshot() domain.SessionSnapshot { return f.snap }

type stubExpirer struct {
	reasons []string
}

func (e *stubExpirer) ExpireSession(_ context.Context, reason string) {
	e.reasons = append(e.reasons, reason)
}

func newLoader(sess *domain.Session, repo *stubMemberRepo) (*ProfileLoader, *stubCache, *stubExpirer) {
	cache := newStubCache()
	expirer := &stubExpirer{}
	snap := domain.SessionSnapshot{Session: sess, State: domain.StateAuthenticated}
	if sess == nil {
		snap.State = domain.StateUnauthenticated
	}
	loader := NewProfileLoader(fixedSessions{snap: snap}, repo, cache, expirer, 0, zerolog.Nop())
	loader.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return loader, cache, expirer
}

// gatedMemberRepo blocks each lookup until release is closed.
type gatedMemberRepo struct {
	stubMemberRepo
	entered chan struct{}
	release chan struct{}
}

func (r *gatedMemberRepo) FindByMemberNumberOrAuthUser(ctx context.Context, memberNumber, authUserID string) ([]*domain.Member, error) {
	r.entered <- struct{}{}
	<-r.release
	return r.stubMemberRepo.FindByMemberNumberOrAuthUser(ctx, memberNumber, authUserID)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestProfileLoader_ResolvesByMemberNumber(t *testing.T) {
	repo := &stubMemberRepo{rows: []*domain.Member{
		{ID: "1", MemberNumber: "M1001", AuthUserID: "someone-else", FullName: "Ada Lovelace"},
	}}
	loader, _, _ := newLoader(testSession("u-42", "M1001"), repo)

	m, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if m.ID != "1" {
		t.Fatalf("unexpected member: %+v", m)
	}
}

func TestProfileLoader_ResolvesByAuthUserID(t *testing.T) {
	repo := &stubMemberRepo{rows: []*domain.Member{
		{ID: "2", MemberNumber: "OTHER", AuthUserID: "u-42"},
	}}
	loader, _, _ := newLoader(testSession("u-42", "M1001"), repo)

	m, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if m.ID != "2" {
		t.Fatalf("unexpected member: %+v", m)
	}
}

func TestProfileLoader_MemberNumberMissing_NoQuery(t *testing.T) {
	repo := &stubMemberRepo{}
	loader, _, _ := newLoader(testSession("u-42", ""), repo)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrMemberNumberMissing) {
		t.Fatalf("expected ErrMemberNumberMissing, got %v", err)
	}
	if repo.callCount() != 0 {
		t.Fatalf("expected no query, got %d", repo.callCount())
	}
}

func TestProfileLoader_NotFound(t *testing.T) {
	repo := &stubMemberRepo{}
	loader, _, _ := newLoader(testSession("u-42", "M1001"), repo)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestProfileLoader_Ambiguous_IsNotFound(t *testing.T) {
	repo := &stubMemberRepo{rows: []*domain.Member{
		{ID: "1", MemberNumber: "M1001"},
		{ID: "2", AuthUserID: "u-42"},
	}}
	loader, _, _ := newLoader(testSession("u-42", "M1001"), repo)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound for two rows, got %v", err)
	}
}

func TestProfileLoader_QueryFailed_RetriedOnce(t *testing.T) {
	cause := errors.New("permission denied for table members")
	repo := &stubMemberRepo{err: cause}
	loader, _, _ := newLoader(testSession("u-42", "M1001"), repo)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
	var qe *domain.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *domain.QueryError, got %T", err)
	}
	if repo.callCount() != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", repo.callCount())
	}
}

func TestProfileLoader_NoSession_ForcesLogout(t *testing.T) {
	repo := &stubMemberRepo{}
	loader, _, expirer := newLoader(nil, repo)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if len(expirer.reasons) != 1 {
		t.Fatalf("expected forced logout, got %d", len(expirer.reasons))
	}
	if repo.callCount() != 0 {
		t.Fatalf("loader must not execute without a session")
	}
}

func TestProfileLoader_CachesBySubject(t *testing.T) {
	repo := &stubMemberRepo{rows: []*domain.Member{{ID: "1", MemberNumber: "M1001"}}}
	loader, cache, _ := newLoader(testSession("u-42", "M1001"), repo)

	for i := 0; i < 3; i++ {
		if _, err := loader.Load(context.Background()); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if repo.callCount() != 1 {
		t.Fatalf("expected one fetch, got %d", repo.callCount())
	}
	if _, ok := cache.Get(ProfileKey("u-42")); !ok {
		t.Fatalf("expected cache entry keyed by subject")
	}

	loader.Invalidate("u-42")
	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if repo.callCount() != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", repo.callCount())
	}
	if cache.resetCount() != 0 {
		t.Fatalf("loader must never reset the shared cache")
	}
}

func TestProfileLoader_State(t *testing.T) {
	repo := &stubMemberRepo{rows: []*domain.Member{{ID: "1", MemberNumber: "M1001"}}}
	loader, _, _ := newLoader(testSession("u-42", "M1001"), repo)

	st := loader.State(context.Background())
	if st.IsError || st.IsLoading || st.Data == nil {
		t.Fatalf("unexpected state: %+v", st)
	}

	loading := NewProfileLoader(fixedSessions{snap: domain.SessionSnapshot{Loading: true}}, repo, newStubCache(), nil, 0, zerolog.Nop())
	if st := loading.State(context.Background()); !st.IsLoading {
		t.Fatalf("expected loading state while session resolves, got %+v", st)
	}
}

func TestProfileLoader_SignOutDuringFetch_NotCached(t *testing.T) {
	p := newStubProvider()
	p.session = testSession("u-42", "M1001")
	f := startManager(t, p)

	repo := &gatedMemberRepo{
		stubMemberRepo: stubMemberRepo{rows: []*domain.Member{{ID: "1", MemberNumber: "M1001"}}},
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	loader := NewProfileLoader(f.m, repo, f.cache, f.m, 0, zerolog.Nop())

	type result struct {
		m   *domain.Member
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := loader.Load(context.Background())
		done <- result{m, err}
	}()

	select {
	case <-repo.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not start")
	}
	if err := f.m.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	close(repo.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("load did not return")
	}
	if !errors.Is(res.err, domain.ErrNoSession) || res.m != nil {
		t.Fatalf("expected ErrNoSession for a load outliving its session, got %v, %v", res.m, res.err)
	}
	if f.m.Session() != nil {
		t.Fatalf("expected session cleared")
	}
	if _, ok := f.cache.Get(ProfileKey("u-42")); ok {
		t.Fatalf("signed-out profile was written back to the cache")
	}
}

func TestProfileLoader_RefreshDuringFetch_StillCached(t *testing.T) {
	p := newStubProvider()
	p.session = testSession("u-42", "M1001")
	f := startManager(t, p)

	repo := &gatedMemberRepo{
		stubMemberRepo: stubMemberRepo{rows: []*domain.Member{{ID: "1", MemberNumber: "M1001"}}},
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	loader := NewProfileLoader(f.m, repo, f.cache, f.m, 0, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background())
		done <- err
	}()

	<-repo.entered
	refreshed := testSession("u-42", "M1001")
	refreshed.AccessToken = "access-2"
	p.emit(domain.AuthEvent{Type: domain.EventTokenRefreshed, Session: refreshed})
	close(repo.release)

	if err := <-done; err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := f.cache.Get(ProfileKey("u-42")); !ok {
		t.Fatalf("a token refresh must not discard the fetched profile")
	}
}
