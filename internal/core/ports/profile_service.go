package ports

import (
	"context"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// ProfileState is the {data, isLoading, isError, error} view of one profile fetch.
type ProfileState struct {
	Data      *domain.Member
	IsLoading bool
	IsError   bool
	Err       error
}

// ProfileService resolves the member profile for the current session.
type ProfileService interface {
	Load(ctx context.Context) (*domain.Member, error)
	State(ctx context.Context) ProfileState
}
