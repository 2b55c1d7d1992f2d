package store

import (
	"context"
	"sync"

	"aidchain/internal/custody/models"
	"aidchain/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.UnitID]models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.UnitID]models.Record)}
}

func (s *InMemoryStore) Get(_ context.Context, id domain.UnitID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *InMemoryStore) GetMany(_ context.Context, ids []domain.UnitID) (map[domain.UnitID]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.UnitID]models.Record, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *InMemoryStore) Create(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UnitID]; ok {
		return ErrConflict
	}
	s.records[rec.UnitID] = *rec
	return nil
}

// Update replaces the record when its current status is from.
func (s *InMemoryStore) Update(_ context.Context, from models.Status, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.UnitID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrConflict
	}
	s.records[rec.UnitID] = *rec
	return nil
}
