package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MemberNumberKey is the user metadata attribute linking an identity to its member row.
const MemberNumberKey = "member_number"

// SessionState is the lifecycle state of the authoritative session.
type SessionState string

const (
	StateInitializing    SessionState = "initializing"
	StateAuthenticated   SessionState = "authenticated"
	StateUnauthenticated SessionState = "unauthenticated"
	StateSigningOut      SessionState = "signing_out"
)

// User is the authenticated principal as reported by the identity provider.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// MemberNumber returns the member_number metadata attribute, or "" when absent.
// Numeric values are accepted because the attribute is free-form JSON.
func (u *User) MemberNumber() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	switch v := u.UserMetadata[MemberNumberKey].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Session is the token bundle issued by the identity provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Subject returns the stable subject identifier of the session, "" for a nil session.
func (s *Session) Subject() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// ExpiresWithin reports whether the access token expires within d of now.
// A zero expiry is treated as non-expiring.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// SessionSnapshot is a consistent read of the session cell.
type SessionSnapshot struct {
	Session *Session
	State   SessionState
	Loading bool
	Version uint64
	// Epoch changes on every sign-out; Version also moves on refreshes.
	Epoch uint64
}

// AuthEventType names a provider-emitted auth state change.
type AuthEventType string

const (
	EventInitialSession   AuthEventType = "INITIAL_SESSION"
	EventSignedIn         AuthEventType = "SIGNED_IN"
	EventSignedOut        AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed   AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEventType = "USER_UPDATED"
	EventPasswordRecovery AuthEventType = "PASSWORD_RECOVERY"
)

// AuthEvent is a single auth state change pushed by the identity provider.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
	At      time.Time
}
