package ports

import (
	"context"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// SessionReader exposes the latest published session to consumers.
type SessionReader interface {
	Snapshot() domain.SessionSnapshot
}

// SessionExpirer performs the forced-logout path: teardown plus a "session expired" notice.
type SessionExpirer interface {
	ExpireSession(ctx context.Context, reason string)
}

// SessionService is what the presentation layer needs from the session manager.
type SessionService interface {
	SessionReader
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// AuthEventHandler processes one auth event to completion.
type AuthEventHandler interface {
	HandleAuthEvent(ctx context.Context, event domain.AuthEvent)
}

// AuthEventQueue delivers auth events to an AuthEventHandler one at a time, in
// arrival order. Enqueue reports false when the event was not accepted.
type AuthEventQueue interface {
	Enqueue(event domain.AuthEvent) bool
}
