// Package counter abstracts the atomic primitives the fraud scorer and
// settlement accounting need: increment-with-expiry, set-cardinality
// tracking and a score-ordered index. All operations are server-side
// atomic; nothing here is read-then-write.
package counter

import (
	"context"
	"time"
)

// ScoredMember is one entry of a score-ordered index.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the injected atomic-primitive surface. The production
// implementation is Redis; tests use miniredis behind the same client.
type Store interface {
	// Incr atomically adds 1 to key and returns the new value. The TTL
	// is applied when the increment creates the key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// IncrBy behaves like Incr with an arbitrary positive delta.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// Get returns the current value of a counter, 0 when absent.
	Get(ctx context.Context, key string) (int64, error)
	// AddToSet records membership; the TTL is applied when the add
	// creates the set.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	// SetCard returns the distinct-member count of a set, 0 when absent.
	SetCard(ctx context.Context, key string) (int64, error)
	// UpsertScore inserts or updates member in a score-ordered index.
	UpsertScore(ctx context.Context, key, member string, score float64) error
	// TopK returns up to k members by descending score.
	TopK(ctx context.Context, key string, k int64) ([]ScoredMember, error)
}
