package ports

import (
	"context"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// AuthStateHandler receives provider-emitted auth state changes. Implementations
// must not block: the provider calls handlers inline.
type AuthStateHandler func(event domain.AuthEvent)

// Subscription is returned by OnAuthStateChange; Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// IdentityProvider is the hosted authentication service.
type IdentityProvider interface {
	// GetSession returns the persisted session, refreshing it when close to expiry.
	// A nil session with a nil error means nobody is signed in.
	GetSession(ctx context.Context) (*domain.Session, error)
	// GetUser verifies the current access token against the provider.
	GetUser(ctx context.Context) (*domain.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	// SignOut revokes the session provider side and forgets it locally.
	SignOut(ctx context.Context) error
	OnAuthStateChange(handler AuthStateHandler) Subscription
}
