// Package store persists serialized templates in named slots.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a slot holds no data.
var ErrNotFound = errors.New("slot not found")

// SlotInfo describes a stored slot without its payload.
type SlotInfo struct {
	Key       string
	Size      int
	Version   int
	UpdatedAt time.Time
}

// SlotStore abstracts slot persistence. Each Put overwrites the slot and
// bumps its version.
// Implementations: MemoryStore, SQLiteStore, FirestoreStore, and
// CachedStore wrapping any of them.
type SlotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]SlotInfo, error)
}
