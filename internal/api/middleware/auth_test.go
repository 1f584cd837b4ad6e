package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/memberhub/memberdash/internal/core/domain"
)

type fixedSessions struct {
	snap domain.SessionSnapshot
}

func (f fixedSessions) Snapshot() domain.SessionSnapshot { return f.snap }

func withToken(t *testing.T, secret string, claims jwt.MapClaims) fixedSessions {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return fixedSessions{snap: domain.SessionSnapshot{
		State:   domain.StateAuthenticated,
		Session: &domain.Session{AccessToken: signed, User: domain.User{ID: "u-42"}},
	}}
}

func runSession(t *testing.T, sessions fixedSessions, secret string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Session(sessions, secret)(next)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func mustNotReach(t *testing.T) echo.HandlerFunc {
	return func(c echo.Context) error {
		t.Fatalf("should not reach next")
		return nil
	}
}

func TestSessionMiddleware_ValidToken(t *testing.T) {
	sessions := withToken(t, "secret", jwt.MapClaims{
		"sub":   "u-42",
		"role":  "authenticated",
		"email": "member@example.org",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	called := false
	rec := runSession(t, sessions, "secret", func(c echo.Context) error {
		called = true
		if c.Get(CtxSubject) != "u-42" {
			t.Fatalf("subject not set")
		}
		if c.Get(CtxRole) != "authenticated" {
			t.Fatalf("role not set")
		}
		if c.Get(CtxEmail) != "member@example.org" {
			t.Fatalf("email not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected next called with 200, got %d", rec.Code)
	}
}

func TestSessionMiddleware_NoSession(t *testing.T) {
	rec := runSession(t, fixedSessions{}, "secret", mustNotReach(t))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionMiddleware_WrongSecret(t *testing.T) {
	sessions := withToken(t, "other", jwt.MapClaims{"sub": "u-42"})
	rec := runSession(t, sessions, "secret", mustNotReach(t))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionMiddleware_Expired(t *testing.T) {
	sessions := withToken(t, "secret", jwt.MapClaims{"sub": "u-42", "exp": time.Now().Add(-time.Minute).Unix()})
	rec := runSession(t, sessions, "secret", mustNotReach(t))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionMiddleware_SubjectMismatch(t *testing.T) {
	sessions := withToken(t, "secret", jwt.MapClaims{"sub": "someone-else"})
	rec := runSession(t, sessions, "secret", mustNotReach(t))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSessionMiddleware_UnverifiedDefaultsRole(t *testing.T) {
	sessions := withToken(t, "anything", jwt.MapClaims{"sub": "u-42"})

	rec := runSession(t, sessions, "", func(c echo.Context) error {
		if c.Get(CtxRole) != DefaultRole {
			t.Fatalf("expected default role, got %v", c.Get(CtxRole))
		}
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSessionMiddleware_MalformedToken(t *testing.T) {
	sessions := fixedSessions{snap: domain.SessionSnapshot{
		Session: &domain.Session{AccessToken: "not-a-token", User: domain.User{ID: "u-42"}},
	}}
	rec := runSession(t, sessions, "", mustNotReach(t))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
