package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sells-group/marketmap-cli/internal/jsonx"
)

// MemoryBackend keeps every bucket in memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]*jsonx.Object
	puts    int
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]*jsonx.Object)}
}

func (m *MemoryBackend) bucket(name string) *jsonx.Object {
	b, ok := m.buckets[name]
	if !ok {
		b = jsonx.NewObject()
		m.buckets[name] = b
	}
	return b
}

func (m *MemoryBackend) Get(_ context.Context, bucket, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.bucket(bucket).Get(key)
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), v...), nil
}

func (m *MemoryBackend) Put(_ context.Context, bucket, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucket).Set(key, append(json.RawMessage(nil), value...))
	m.puts++
	return nil
}

func (m *MemoryBackend) List(_ context.Context, bucket string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(bucket)
	out := make([]Record, 0, b.Len())
	for _, k := range b.Keys() {
		v, _ := b.Get(k)
		out = append(out, Record{Key: k, Value: append(json.RawMessage(nil), v...)})
	}
	return out, nil
}

// Puts returns how many writes the backend has received.
func (m *MemoryBackend) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *MemoryBackend) Migrate(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
