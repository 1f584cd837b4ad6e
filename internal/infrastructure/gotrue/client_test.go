package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
	"github.com/memberhub/memberdash/internal/infrastructure/memstore"
)

const testAPIKey = "anon-key"

func signedToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "member@example.org",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type fakeGoTrue struct {
	t         *testing.T
	refreshes atomic.Int32
	logouts   atomic.Int32
	token     string
	logoutErr int
}

func (f *fakeGoTrue) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "correct-horse" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
				return
			}
			writeJSON(w, map[string]any{
				"access_token":  f.token,
				"token_type":    "bearer",
				"refresh_token": "refresh-1",
				"user": map[string]any{
					"id":            "u-42",
					"email":         body["email"],
					"user_metadata": map[string]any{"member_number": "M-1001"},
				},
			})
		case "refresh_token":
			f.refreshes.Add(1)
			if body["refresh_token"] == "used" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
				return
			}
			time.Sleep(20 * time.Millisecond)
			writeJSON(w, map[string]any{
				"access_token":  f.token,
				"token_type":    "bearer",
				"expires_in":    3600,
				"refresh_token": "refresh-2",
				"user":          map[string]any{"id": "u-42"},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":403,"error_code":"bad_jwt","msg":"invalid JWT"}`))
			return
		}
		writeJSON(w, map[string]any{"id": "u-42", "email": "member@example.org"})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		if f.logoutErr != 0 {
			w.WriteHeader(f.logoutErr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type eventLog struct {
	mu  sync.Mutex
	got []domain.AuthEvent
}

func (e *eventLog) handle(ev domain.AuthEvent) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *eventLog) types() []domain.AuthEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.AuthEventType, 0, len(e.got))
	for _, ev := range e.got {
		out = append(out, ev.Type)
	}
	return out
}

func newTestClient(t *testing.T, f *fakeGoTrue) (*Client, *memstore.Store) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	store := memstore.New()
	return New(Config{URL: srv.URL + "/", APIKey: testAPIKey}, store, zerolog.Nop()), store
}

func TestClient_SignInPersistsSessionAndEmits(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	f := &fakeGoTrue{t: t}
	f.token = signedToken(t, "u-42", exp)
	c, store := newTestClient(t, f)

	events := &eventLog{}
	c.OnAuthStateChange(events.handle)

	sess, err := c.SignInWithPassword(context.Background(), "member@example.org", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !sess.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry from token claims %v, got %v", exp, sess.ExpiresAt)
	}
	if sess.User.MemberNumber() != "M-1001" {
		t.Fatalf("expected member number from metadata, got %q", sess.User.MemberNumber())
	}
	if _, err := store.Get(context.Background(), SessionKey); err != nil {
		t.Fatalf("expected persisted session: %v", err)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventSignedIn {
		t.Fatalf("expected SIGNED_IN, got %v", got)
	}

	persisted, err := c.GetSession(context.Background())
	if err != nil || persisted.Subject() != "u-42" {
		t.Fatalf("expected persisted session, got %+v %v", persisted, err)
	}
}

func TestClient_SignInInvalidCredentials(t *testing.T) {
	f := &fakeGoTrue{t: t, token: signedToken(t, "u-42", time.Now().Add(time.Hour))}
	c, _ := newTestClient(t, f)

	_, err := c.SignInWithPassword(context.Background(), "member@example.org", "wrong")
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if ae.Status != http.StatusBadRequest || ae.Code != "invalid_credentials" || ae.Message != "Invalid login credentials" {
		t.Fatalf("unexpected auth error: %+v", ae)
	}
	if domain.ClassifyAuthError(err) != domain.AuthErrorUnclassified {
		t.Fatalf("bad credentials must not be classified as a dead session")
	}
}

func TestClient_GetSessionWithoutPersistedSession(t *testing.T) {
	c, _ := newTestClient(t, &fakeGoTrue{t: t})

	sess, err := c.GetSession(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("expected no session, got %+v %v", sess, err)
	}
}

func TestClient_GetSessionDiscardsCorruptState(t *testing.T) {
	c, store := newTestClient(t, &fakeGoTrue{t: t})
	_ = store.Set(context.Background(), SessionKey, []byte("{not json"))

	sess, err := c.GetSession(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("expected corrupt session ignored, got %+v %v", sess, err)
	}
	if _, err := store.Get(context.Background(), SessionKey); !errors.Is(err, ports.ErrLocalKeyNotFound) {
		t.Fatalf("expected corrupt session deleted, got %v", err)
	}
}

func persist(t *testing.T, store *memstore.Store, sess domain.Session) {
	t.Helper()
	raw, _ := json.Marshal(sess)
	_ = store.Set(context.Background(), SessionKey, raw)
}

func TestClient_GetSessionRefreshesNearExpiry(t *testing.T) {
	f := &fakeGoTrue{t: t, token: signedToken(t, "u-42", time.Now().Add(time.Hour))}
	c, store := newTestClient(t, f)
	persist(t, store, domain.Session{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(5 * time.Second),
		User:         domain.User{ID: "u-42"},
	})

	events := &eventLog{}
	c.OnAuthStateChange(events.handle)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := c.GetSession(context.Background())
			if err != nil {
				t.Errorf("get session: %v", err)
				return
			}
			if sess.RefreshToken != "refresh-2" {
				t.Errorf("expected refreshed session, got %q", sess.RefreshToken)
			}
		}()
	}
	wg.Wait()

	if n := f.refreshes.Load(); n != 1 {
		t.Fatalf("expected concurrent refreshes to collapse into one request, got %d", n)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventTokenRefreshed {
		t.Fatalf("expected one TOKEN_REFRESHED, got %v", got)
	}
}

func TestClient_RefreshFailureIsSessionInvalid(t *testing.T) {
	f := &fakeGoTrue{t: t}
	c, store := newTestClient(t, f)
	persist(t, store, domain.Session{
		AccessToken:  "stale",
		RefreshToken: "used",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         domain.User{ID: "u-42"},
	})

	_, err := c.GetSession(context.Background())
	if err == nil {
		t.Fatalf("expected refresh error")
	}
	if domain.ClassifyAuthError(err) != domain.AuthErrorSessionInvalid {
		t.Fatalf("expected session invalid classification, got %v", err)
	}
}

func TestClient_GetUser(t *testing.T) {
	f := &fakeGoTrue{t: t, token: signedToken(t, "u-42", time.Now().Add(time.Hour))}
	c, store := newTestClient(t, f)

	if _, err := c.GetUser(context.Background()); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid without session, got %v", err)
	}

	persist(t, store, domain.Session{AccessToken: "forged", User: domain.User{ID: "u-42"}})
	_, err := c.GetUser(context.Background())
	var ae *domain.AuthError
	if !errors.As(err, &ae) || ae.Code != "bad_jwt" {
		t.Fatalf("expected bad_jwt auth error, got %v", err)
	}

	persist(t, store, domain.Session{AccessToken: f.token, User: domain.User{ID: "u-42"}})
	user, err := c.GetUser(context.Background())
	if err != nil || user.ID != "u-42" {
		t.Fatalf("expected verified user, got %+v %v", user, err)
	}
}

func TestClient_SignOut(t *testing.T) {
	f := &fakeGoTrue{t: t, token: signedToken(t, "u-42", time.Now().Add(time.Hour)), logoutErr: http.StatusUnauthorized}
	c, store := newTestClient(t, f)
	persist(t, store, domain.Session{AccessToken: f.token, User: domain.User{ID: "u-42"}})

	events := &eventLog{}
	sub := c.OnAuthStateChange(events.handle)

	if err := c.SignOut(context.Background()); err != nil {
		t.Fatalf("expected dead-token logout to be ignored, got %v", err)
	}
	if f.logouts.Load() != 1 {
		t.Fatalf("expected one logout request, got %d", f.logouts.Load())
	}
	if _, err := store.Get(context.Background(), SessionKey); !errors.Is(err, ports.ErrLocalKeyNotFound) {
		t.Fatalf("expected session forgotten, got %v", err)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventSignedOut {
		t.Fatalf("expected SIGNED_OUT, got %v", got)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	_ = c.SignOut(context.Background())
	if got := events.types(); len(got) != 1 {
		t.Fatalf("expected no events after unsubscribe, got %v", got)
	}
	if f.logouts.Load() != 1 {
		t.Fatalf("expected no logout request without a session")
	}
}

func TestClient_SignOutServerError(t *testing.T) {
	f := &fakeGoTrue{t: t, token: "tok", logoutErr: http.StatusInternalServerError}
	c, store := newTestClient(t, f)
	persist(t, store, domain.Session{AccessToken: "tok", User: domain.User{ID: "u-42"}})

	if err := c.SignOut(context.Background()); err == nil {
		t.Fatalf("expected revoke error to surface")
	}
	if _, err := store.Get(context.Background(), SessionKey); !errors.Is(err, ports.ErrLocalKeyNotFound) {
		t.Fatalf("expected session forgotten even on revoke failure")
	}
}

func TestParseClaims_Malformed(t *testing.T) {
	_, err := ParseClaims("not-a-jwt")
	if domain.ClassifyAuthError(err) != domain.AuthErrorSessionInvalid {
		t.Fatalf("expected malformed token to classify as session invalid, got %v", err)
	}
}
