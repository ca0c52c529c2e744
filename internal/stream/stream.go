// Package stream provides the TTL-bounded registry that holds pending
// stream requests between submission and SSE materialization.
package stream

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
// Expiry and absence are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("stream: not found")

// keyPrefix namespaces registry rows so the backing table can be shared
// with other ephemeral keyspaces later.
const keyPrefix = "stream:"

// Registry is a TTL key-value store for serialized stream requests.
// Implementations are safe for concurrent use.
type Registry interface {
	// Put stores the payload under id, replacing any existing entry and
	// resetting its expiry to now+ttl.
	Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error

	// Get returns the payload for id, or ErrNotFound when the entry is
	// absent or expired. Expired entries are deleted on read.
	Get(ctx context.Context, id string) ([]byte, error)

	// Delete removes the entry for id. Deleting an absent id is not an
	// error.
	Delete(ctx context.Context, id string) error
}
