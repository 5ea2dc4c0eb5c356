package cache

import (
	"context"
	"sync"
)

// Backend is the durable key-value storage behind the cache.
type Backend interface {
	// LoadAll returns every stored key and value.
	LoadAll(ctx context.Context) (map[string][]byte, error)
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryBackend is a Backend that keeps values in memory.
type MemoryBackend struct {
	mu      sync.Mutex
	values  map[string][]byte
	saveErr error
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// LoadAll implements Backend.
func (b *MemoryBackend) LoadAll(context.Context) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(b.values))
	for k, v := range b.values {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// Raw returns the stored bytes for key.
func (b *MemoryBackend) Raw(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

// SetRaw stores bytes for key without validation.
func (b *MemoryBackend) SetRaw(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

// FailSaves makes every following Save return err; nil restores normal operation.
func (b *MemoryBackend) FailSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveErr = err
}
