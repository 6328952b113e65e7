package snapshot

import (
	"context"

	"shopledger/internal/kvstore"
)

// LocalBackend keeps bundles in the scalar store on this device.
type LocalBackend struct {
	store *kvstore.Store
}

// NewLocalBackend creates a new instance of LocalBackend on the scalar store.
func NewLocalBackend(store *kvstore.Store) *LocalBackend {
	return &LocalBackend{store: store}
}

// Put stores data under key in the scalar store.
func (b *LocalBackend) Put(_ context.Context, key string, data []byte) error {
	return b.store.Set(key, string(data))
}

// Get returns the data stored under key.
func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := b.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

// Driver reports DriverLocal.
func (b *LocalBackend) Driver() Driver { return DriverLocal }

// Close is a no-op; the scalar store is owned by the caller.
func (b *LocalBackend) Close() error { return nil }
