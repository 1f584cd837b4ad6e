package ports

import (
	"context"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// MemberRepository is the relational query client for member rows.
type MemberRepository interface {
	// FindByMemberNumberOrAuthUser returns the rows whose member_number equals
	// memberNumber OR whose auth_user_id equals authUserID. Implementations cap the
	// result at two rows: callers only need to tell "one" from "not exactly one".
	FindByMemberNumberOrAuthUser(ctx context.Context, memberNumber, authUserID string) ([]*domain.Member, error)
}
