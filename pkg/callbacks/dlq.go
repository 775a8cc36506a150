package callbacks

import (
	"context"
	"sync"
)

// MemoryDLQStore stores failed notification deliveries in memory.
type MemoryDLQStore struct {
	mu      sync.RWMutex
	entries map[string]FailedEvent
}

// NewMemoryDLQStore creates an in-memory DLQ store.
func NewMemoryDLQStore() *MemoryDLQStore {
	return &MemoryDLQStore{entries: make(map[string]FailedEvent)}
}

func (m *MemoryDLQStore) SaveFailedEvent(ctx context.Context, entry FailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *MemoryDLQStore) ListFailedEvents(ctx context.Context, limit int) ([]FailedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FailedEvent, 0, len(m.entries))
	for _, entry := range m.entries {
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryDLQStore) DeleteFailedEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
