package docstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"sync"
)

// InMemoryRecordStore is a thread-safe, in-memory RecordStore. Records keep insertion order.
// Nothing survives a restart; it backs local runs and tests.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records []schema.Record
	ids     map[string]struct{}
}

// NewInMemoryRecordStore creates a new instance of InMemoryRecordStore.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{ids: make(map[string]struct{})}
}

// InsertMany appends the records, skipping ids that are already stored.
func (s *InMemoryRecordStore) InsertMany(ctx context.Context, records []schema.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		if _, ok := s.ids[r.ID]; ok {
			continue
		}
		s.ids[r.ID] = struct{}{}
		s.records = append(s.records, r)
		inserted++
	}
	return inserted, nil
}

// Scan calls fn for every record under a read lock. fn must not write to the store.
func (s *InMemoryRecordStore) Scan(ctx context.Context, fn func(schema.Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// CountBySource returns the number of records stored for sourceID.
func (s *InMemoryRecordStore) CountBySource(ctx context.Context, sourceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if r.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (s *InMemoryRecordStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// compile-time check to ensure InMemoryRecordStore implements the RecordStore interface
var _ interfaces.RecordStore = (*InMemoryRecordStore)(nil)
