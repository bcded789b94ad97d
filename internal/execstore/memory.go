package execstore

import (
	"context"
	"sync"
	"time"

	"github.com/unicon/grader-go/internal/metrics"
	"github.com/unicon/grader-go/pkg/types"
)

// MemoryStore is an in-memory Store. Suitable for development and
// testing; data is lost on restart. Finished records past the TTL are
// expired lazily on access.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	config  *Config
}

type memoryRecord struct {
	rec       types.ExecutionRecord
	updatedAt time.Time
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		config:  cfg,
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &memoryRecord{rec: cp, updatedAt: time.Now()}
	metrics.StoreOperations.WithLabelValues("create", "success").Inc()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.ExecutionRecord, error) {
	s.mu.RLock()
	m, ok := s.records[id]
	s.mu.RUnlock()
	if !ok || s.expired(m) {
		metrics.StoreOperations.WithLabelValues("get", "error").Inc()
		return nil, ErrNotFound
	}
	cp := m.rec
	metrics.StoreOperations.WithLabelValues("get", "success").Inc()
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id, m := range s.records {
		if !s.expired(m) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Update(_ context.Context, rec *types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		metrics.StoreOperations.WithLabelValues("update", "error").Inc()
		return ErrNotFound
	}
	cp := *rec
	s.records[rec.ID] = &memoryRecord{rec: cp, updatedAt: time.Now()}
	metrics.StoreOperations.WithLabelValues("update", "success").Inc()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(m *memoryRecord) bool {
	if s.config.TTL <= 0 {
		return false
	}
	switch m.rec.Status {
	case types.ExecutionStatusCompleted, types.ExecutionStatusFailed:
		return time.Since(m.updatedAt) > s.config.TTL
	default:
		return false
	}
}
