package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get and Store.GetDelete for absent keys.
var ErrNotFound = errors.New("gatemux/pipeline: key not found")

// Store is the persisted key/value state shared by pipeline stages. It
// outlives worker restarts and is shared across stage instances, so
// per-key operations must be atomic: GetDelete exists because a plain
// check-then-delete is unsafe when two session-close events for the same key
// are processed concurrently.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	GetDelete(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}
