package interfaces

import "context"

// Durable hint keys consumed by the coordinator.
const (
	HintLastTimestamp   = "lastTimestamp"
	HintLastMissedCall  = "lastMissedCall"
	HintPendingDeepLink = "pendingDeepLink"
)

// HintStore is the local durable key-value store for cross-restart hints.
// Values are opaque strings; JSON encoding is the caller's concern.
type HintStore interface {
	// Get returns the stored value, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes or overwrites the value for a key.
	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying storage.
	Close() error
}
