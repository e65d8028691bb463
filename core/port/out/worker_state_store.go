package out

import "context"

// StateStore is the key-value store that holds per-stage pipeline state.
// Values are JSON-encoded by the implementation. Keys of different
// customers never overlap, so no cross-key locking is required.
type StateStore interface {
	Set(ctx context.Context, key string, value any) error
	// Get decodes the stored value into dest. found is false when the key
	// does not exist.
	Get(ctx context.Context, key string, dest any) (found bool, err error)
	Delete(ctx context.Context, key string) error
}
