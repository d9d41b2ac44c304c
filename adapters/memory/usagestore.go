package memory

import (
	"context"
	"sync"

	"github.com/svcgate/gateway/domain/usage"
	"github.com/svcgate/gateway/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore, used by
// tests and by the short-lived/FaaS deployment mode where there is no
// durable usage table.
type UsageStore struct {
	mu      sync.RWMutex
	records []usage.Record
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

// RecordBatch stores multiple usage records.
func (s *UsageStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// GetAll returns all records (for testing).
func (s *UsageStore) GetAll() []usage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]usage.Record{}, s.records...)
}

// Clear removes all records (for testing).
func (s *UsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

var _ ports.UsageStore = (*UsageStore)(nil)
