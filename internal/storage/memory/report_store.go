// Package memory provides in-memory store implementations for tests and the
// no-infrastructure path.
package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-lab/internal/storage"
)

// ReportStore is an in-memory implementation of storage.ReportStore.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string]*storage.ReportRecord
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{data: make(map[string]*storage.ReportRecord)}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

// Insert archives a report. Returns ErrDuplicateKey if report_id exists.
func (s *ReportStore) Insert(_ context.Context, r *storage.ReportRecord) error {
	if r == nil || r.ReportID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ReportID]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *r
	s.data[r.ReportID] = &rec
	return nil
}

// GetByID retrieves a report by its ID. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByID(_ context.Context, reportID string) (*storage.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[reportID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec := *r
	return &rec, nil
}

// List retrieves up to limit reports, newest first.
func (s *ReportStore) List(_ context.Context, limit int) ([]*storage.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.ReportRecord, 0, len(s.data))
	for _, r := range s.data {
		rec := *r
		out = append(out, &rec)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ReportID < out[b].ReportID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
