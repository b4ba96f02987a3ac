// Package dedup tracks which issues have already been delivered.
//
// The store is the only durable state in the system. Entries are
// append-only: a key is written once, after a positive delivery ack,
// and never updated or deleted.
package dedup

import (
	"context"
	"time"
)

// Store is the seen-set abstraction injected into the pipeline.
type Store interface {
	// HasSeen reports whether the key has already been delivered.
	HasSeen(ctx context.Context, key string) (bool, error)

	// MarkSeen records a successful delivery. Callers must only invoke
	// this after the notifier acknowledged the push.
	MarkSeen(ctx context.Context, key string, deliveredAt time.Time) error

	// Count returns the number of recorded deliveries.
	Count(ctx context.Context) (int, error)

	// Close flushes and releases the store.
	Close() error
}
