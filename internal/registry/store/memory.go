// Package store persists securities and their CSD mappings.
package store

import (
	"context"
	"sort"
	"sync"

	"issuance/internal/registry/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
)

// InMemory is a process-local registry store.
type InMemory struct {
	mu         sync.RWMutex
	securities map[id.SecurityID]*models.Security
	mappings   map[id.SecurityID]map[models.CSDSystem]models.CSDMapping
}

func NewInMemory() *InMemory {
	return &InMemory{
		securities: make(map[id.SecurityID]*models.Security),
		mappings:   make(map[id.SecurityID]map[models.CSDSystem]models.CSDMapping),
	}
}

// Create inserts a security. Returns sentinel.ErrConflict when the
// identifier is already registered.
func (s *InMemory) Create(_ context.Context, sec *models.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.securities[sec.ID]; ok {
		return sentinel.ErrConflict
	}
	s.securities[sec.ID] = sec.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, securityID id.SecurityID) (*models.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.securities[securityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sec.Clone(), nil
}

// List returns every security ordered by identifier.
func (s *InMemory) List(_ context.Context) ([]*models.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Security, 0, len(s.securities))
	for _, sec := range s.securities {
		out = append(out, sec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update applies fn to a copy of the security and stores it if fn succeeds.
func (s *InMemory) Update(_ context.Context, securityID id.SecurityID, fn func(*models.Security) error) (*models.Security, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.securities[securityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	updated := sec.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	s.securities[securityID] = updated
	return updated.Clone(), nil
}

func (s *InMemory) SetCSDMapping(_ context.Context, m models.CSDMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.securities[m.SecurityID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.mappings[m.SecurityID] == nil {
		s.mappings[m.SecurityID] = make(map[models.CSDSystem]models.CSDMapping)
	}
	s.mappings[m.SecurityID][m.System] = m
	return nil
}

func (s *InMemory) CSDMappings(_ context.Context, securityID id.SecurityID) ([]models.CSDMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CSDMapping, 0, len(s.mappings[securityID]))
	for _, m := range s.mappings[securityID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].System < out[j].System })
	return out, nil
}
