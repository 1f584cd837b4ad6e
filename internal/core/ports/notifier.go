package ports

import (
	"context"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// Notifier delivers user-visible notices to the presentation layer.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice)
}
