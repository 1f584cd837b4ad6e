package ports

import (
	"context"
	"errors"
)

// ErrLocalKeyNotFound is returned by LocalStore.Get for an absent key.
var ErrLocalKeyNotFound = errors.New("local key not found")

// LocalStore is the opaque key-value store for locally persisted client state.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by the store. There is no partial clearing.
	Clear(ctx context.Context) error
}
