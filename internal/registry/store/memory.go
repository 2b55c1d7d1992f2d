package store

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/internal/registry/models"
)

// InMemoryStore keeps participants in a map and one insertion-ordered slice per role.
type InMemoryStore struct {
	mu           sync.RWMutex
	authority    common.Address
	participants map[common.Address]models.Participant
	byRole       map[models.Role][]common.Address
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		participants: make(map[common.Address]models.Participant),
		byRole:       make(map[models.Role][]common.Address),
	}
}

func (s *InMemoryStore) Authority(_ context.Context) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.authority == (common.Address{}) {
		return common.Address{}, ErrNotFound
	}
	return s.authority, nil
}

func (s *InMemoryStore) SetAuthority(_ context.Context, addr common.Address, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authority = addr
	return nil
}

// Save upserts the participant. A role change moves the address to the end of
// the new role's set; re-registering with the same role keeps its position.
func (s *InMemoryStore) Save(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.participants[p.Address]; ok && prev.Role != p.Role {
		s.byRole[prev.Role] = remove(s.byRole[prev.Role], p.Address)
		s.byRole[p.Role] = append(s.byRole[p.Role], p.Address)
	} else if !ok {
		s.byRole[p.Role] = append(s.byRole[p.Role], p.Address)
	}
	s.participants[p.Address] = *p
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, addr common.Address) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) ListByRole(_ context.Context, role models.Role) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.Address{}, s.byRole[role]...), nil
}

func remove(list []common.Address, addr common.Address) []common.Address {
	for i, a := range list {
		if a == addr {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
