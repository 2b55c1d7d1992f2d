package store

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/internal/ledger/models"
	"aidchain/pkg/domain"
)

// InMemoryStore keeps units in an id-indexed slice.
type InMemoryStore struct {
	mu       sync.RWMutex
	state    models.State
	balances map[common.Address]*big.Int
	units    []*models.Unit
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		state:    models.State{Pool: new(big.Int)},
		balances: make(map[common.Address]*big.Int),
	}
}

func (s *InMemoryStore) State(_ context.Context) (*models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &models.State{Pool: new(big.Int).Set(s.state.Pool), NextUnitID: s.state.NextUnitID}, nil
}

func (s *InMemoryStore) SaveState(_ context.Context, st *models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = models.State{Pool: new(big.Int).Set(st.Pool), NextUnitID: st.NextUnitID}
	return nil
}

func (s *InMemoryStore) Balance(_ context.Context, donor common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.balances[donor]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (s *InMemoryStore) SaveBalance(_ context.Context, donor common.Address, balance *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[donor] = new(big.Int).Set(balance)
	return nil
}

// CreateUnit appends u. Ids must be allocated densely from NextUnitID.
func (s *InMemoryStore) CreateUnit(_ context.Context, u *models.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(u.ID) != uint64(len(s.units)) {
		return ErrConflict
	}
	s.units = append(s.units, cloneUnit(u))
	return nil
}

func (s *InMemoryStore) FindUnit(_ context.Context, id domain.UnitID) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if uint64(id) >= uint64(len(s.units)) {
		return nil, ErrNotFound
	}
	return cloneUnit(s.units[id]), nil
}

// Assign sets the custodians once. A second call returns ErrConflict.
func (s *InMemoryStore) Assign(_ context.Context, id domain.UnitID, c models.Custodians, location string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(id) >= uint64(len(s.units)) {
		return ErrNotFound
	}
	u := s.units[id]
	if u.IsAssigned() {
		return ErrConflict
	}
	u.Custodians = c
	u.Location = location
	u.AssignedAt = &at
	return nil
}

func (s *InMemoryStore) ListUnits(_ context.Context, unassignedOnly bool) ([]*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Unit, 0, len(s.units))
	for _, u := range s.units {
		if unassignedOnly && u.IsAssigned() {
			continue
		}
		out = append(out, cloneUnit(u))
	}
	return out, nil
}

func cloneUnit(u *models.Unit) *models.Unit {
	c := *u
	c.Donors = append([]common.Address(nil), u.Donors...)
	if u.AssignedAt != nil {
		at := *u.AssignedAt
		c.AssignedAt = &at
	}
	return &c
}
