// Package notify holds user-visible notices until the presentation layer
// collects them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memberhub/memberdash/internal/core/domain"
)

const defaultCapacity = 32

// Board is a bounded FIFO of notices. When full, the oldest notice is dropped.
type Board struct {
	mu       sync.Mutex
	notices  []domain.Notice
	capacity int
	log      zerolog.Logger
}

// NewBoard returns a Board keeping at most capacity notices (defaultCapacity when <= 0).
func NewBoard(capacity int, log zerolog.Logger) *Board {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Board{capacity: capacity, log: log}
}

// Notify implements ports.Notifier.
func (b *Board) Notify(_ context.Context, n domain.Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Variant == "" {
		n.Variant = domain.VariantDefault
	}

	b.mu.Lock()
	if len(b.notices) == b.capacity {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, n)
	b.mu.Unlock()

	b.log.Info().
		Str("notice_id", n.ID).
		Str("title", n.Title).
		Str("variant", n.Variant).
		Msg("notice raised")
}

// Drain returns all pending notices, oldest first, and empties the board.
func (b *Board) Drain() []domain.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		return []domain.Notice{}
	}
	return out
}
