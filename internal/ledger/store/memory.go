// Package store persists investor positions.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"issuance/internal/ledger/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/keylock"
	"issuance/pkg/platform/sentinel"
)

// InMemory keeps positions in a map. Execute serializes per investor; reads
// of other investors proceed in parallel.
type InMemory struct {
	mu        sync.RWMutex
	positions map[id.InvestorID]*models.Position
	locks     *keylock.Locker
}

func NewInMemory() *InMemory {
	return &InMemory{
		positions: make(map[id.InvestorID]*models.Position),
		locks:     keylock.New(),
	}
}

func (s *InMemory) FindByInvestor(_ context.Context, investor id.InvestorID) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[investor]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Investor < out[j].Investor })
	return out, nil
}

// Execute runs fn on a copy of the investor's position under the investor
// lock and stores the copy if fn succeeds. With create, a missing position
// starts empty; otherwise it yields sentinel.ErrNotFound.
func (s *InMemory) Execute(_ context.Context, investor id.InvestorID, create bool, now time.Time, fn func(*models.Position) error) (*models.Position, error) {
	unlock := s.locks.Lock(string(investor))
	defer unlock()

	s.mu.RLock()
	current, ok := s.positions[investor]
	s.mu.RUnlock()

	var working *models.Position
	switch {
	case ok:
		working = current.Clone()
	case create:
		working = models.NewPosition(investor, now)
	default:
		return nil, sentinel.ErrNotFound
	}

	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = now

	s.mu.Lock()
	s.positions[investor] = working
	s.mu.Unlock()
	return working.Clone(), nil
}
