// Package session holds per-call state keyed by call id, with a time-to-live
// refreshed on every write.
package session

import (
	"context"
	"time"
)

const DefaultTTL = time.Hour

// Meta is store-owned bookkeeping for a record.
type Meta struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the per-call state store. Values are copied in and out; callers
// never share a value across calls.
//
// Get returns a fresh zero value (and records it) when the id is absent or
// expired. Update serializes read-modify-write cycles for the same id.
type Store[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Set(ctx context.Context, id string, v T) error
	Update(ctx context.Context, id string, fn func(*T) error) error
	Delete(ctx context.Context, id string) error
	// Peek reads a live record without creating one.
	Peek(ctx context.Context, id string) (T, Meta, bool, error)
}
