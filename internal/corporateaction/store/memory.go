// Package store persists processed corporate action facts.
package store

import (
	"context"
	"sort"
	"sync"

	"issuance/internal/corporateaction/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	facts map[string]*models.Fact
}

func NewInMemory() *InMemory {
	return &InMemory{facts: make(map[string]*models.Fact)}
}

// Record appends f. A reference can be recorded once; a second attempt
// returns sentinel.ErrConflict.
func (s *InMemory) Record(_ context.Context, f *models.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[f.Reference]; ok {
		return sentinel.ErrConflict
	}
	c := *f
	s.facts[f.Reference] = &c
	return nil
}

func (s *InMemory) Get(_ context.Context, reference string) (*models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *f
	return &c, nil
}

// ListBySecurity returns the security's facts ordered by effective date.
func (s *InMemory) ListBySecurity(_ context.Context, securityID id.SecurityID) ([]*models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Fact
	for _, f := range s.facts {
		if f.SecurityID == securityID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
			return out[i].Reference < out[j].Reference
		}
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})
	return out, nil
}
