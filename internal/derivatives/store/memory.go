// Package store persists derivative reports.
package store

import (
	"context"
	"sync"
	"time"

	"issuance/internal/derivatives/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
)

// InMemory keeps reports in a map under a single lock. Supersede touches two
// reports, so per-key locking would need ordered acquisition for no gain at
// reporting volumes.
type InMemory struct {
	mu      sync.Mutex
	reports map[id.UTI]*models.Report
}

func NewInMemory() *InMemory {
	return &InMemory{reports: make(map[id.UTI]*models.Report)}
}

// Create stores r. A reused UTI yields sentinel.ErrConflict.
func (s *InMemory) Create(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.UTI]; ok {
		return sentinel.ErrConflict
	}
	s.reports[r.UTI] = r.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, uti id.UTI) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[uti]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Update applies fn to a copy of the report and stores it if fn succeeds.
func (s *InMemory) Update(_ context.Context, uti id.UTI, now time.Time, fn func(*models.Report) error) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.reports[uti]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = now
	s.reports[uti] = working
	return working.Clone(), nil
}

// Supersede links next to prior and stores next. It fails with
// sentinel.ErrNotFound when prior is unknown, sentinel.ErrAlreadyUsed when
// prior was already corrected and sentinel.ErrConflict when next's UTI is
// taken. Nothing is written on failure.
func (s *InMemory) Supersede(_ context.Context, prior id.UTI, next *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.reports[prior]
	if !ok {
		return sentinel.ErrNotFound
	}
	if old.Superseded() {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.reports[next.UTI]; ok {
		return sentinel.ErrConflict
	}
	updated := old.Clone()
	updated.SupersededBy = next.UTI
	updated.UpdatedAt = next.SubmittedAt
	s.reports[prior] = updated

	stored := next.Clone()
	stored.PriorUTI = prior
	s.reports[next.UTI] = stored
	return nil
}
