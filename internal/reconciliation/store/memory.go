// Package store persists reconciliation records. Claim is the idempotency
// primitive: it succeeds once per (domain, reference).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"issuance/internal/reconciliation/models"
	"issuance/pkg/platform/sentinel"
)

type key struct {
	domain    models.Domain
	reference string
}

type InMemory struct {
	mu      sync.RWMutex
	records map[key]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[key]*models.Record)}
}

// Claim stores rec unless its reference is already claimed in the domain, in
// which case it returns sentinel.ErrAlreadyUsed.
func (s *InMemory) Claim(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{rec.Domain, rec.Reference}
	if _, ok := s.records[k]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.records[k] = rec.Clone()
	return nil
}

func (s *InMemory) Release(_ context.Context, domain models.Domain, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key{domain, reference})
	return nil
}

func (s *InMemory) Get(_ context.Context, domain models.Domain, reference string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key{domain, reference}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) SetStatus(_ context.Context, domain models.Domain, reference string, status models.Status, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key{domain, reference}]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Status = status
	rec.Detail = detail
	if status != models.StatusProcessed {
		t := at
		rec.ReconciledAt = &t
	}
	return nil
}

// List returns matching records ordered by processing time.
func (s *InMemory) List(_ context.Context, domain models.Domain, filter models.Filter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for k, rec := range s.records {
		if k.domain == domain && filter.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].Reference < out[j].Reference
		}
		return out[i].ProcessedAt.Before(out[j].ProcessedAt)
	})
	return out, nil
}
