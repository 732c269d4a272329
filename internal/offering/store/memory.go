// Package store persists offerings.
package store

import (
	"context"
	"sort"
	"sync"

	"issuance/internal/offering/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/keylock"
	"issuance/pkg/platform/sentinel"
)

// InMemory keeps one offering per security.
type InMemory struct {
	mu        sync.RWMutex
	offerings map[id.SecurityID]*models.Offering
	locks     *keylock.Locker
}

func NewInMemory() *InMemory {
	return &InMemory{
		offerings: make(map[id.SecurityID]*models.Offering),
		locks:     keylock.New(),
	}
}

func (s *InMemory) Create(_ context.Context, o *models.Offering) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offerings[o.SecurityID]; ok {
		return sentinel.ErrConflict
	}
	s.offerings[o.SecurityID] = o.Clone()
	return nil
}

func (s *InMemory) FindBySecurity(_ context.Context, securityID id.SecurityID) (*models.Offering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offerings[securityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Offering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Offering, 0, len(s.offerings))
	for _, o := range s.offerings {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SecurityID < out[j].SecurityID })
	return out, nil
}

// Execute applies fn to a copy of the offering while holding the security
// lock and publishes the copy only if fn succeeds. Work fn does on other
// stores happens under this lock, which fixes the lock order to offering
// first.
func (s *InMemory) Execute(ctx context.Context, securityID id.SecurityID, fn func(ctx context.Context, o *models.Offering) error) (*models.Offering, error) {
	unlock := s.locks.Lock(string(securityID))
	defer unlock()

	s.mu.RLock()
	current, ok := s.offerings[securityID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := current.Clone()
	if err := fn(ctx, working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.offerings[securityID] = working
	s.mu.Unlock()
	return working.Clone(), nil
}
