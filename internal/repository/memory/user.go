package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// UserStore implements repository.UserStore in memory.
type UserStore struct {
	mu      sync.RWMutex
	records map[string]domain.UserRecord
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{records: make(map[string]domain.UserRecord)}
}

// Put seeds the record for userID from its JSON document.
func (s *UserStore) Put(userID string, doc string) error {
	var rec domain.UserRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[userID] = rec
	s.mu.Unlock()
	return nil
}

// FetchUser returns a copy of the record for userID.
func (s *UserStore) FetchUser(_ context.Context, userID string) (domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, apperrors.NotFound("user", userID)
	}
	return rec.Clone(), nil
}

// ReplaceUser overwrites the record for userID.
func (s *UserStore) ReplaceUser(_ context.Context, userID string, record domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		return apperrors.NotFound("user", userID)
	}
	s.records[userID] = record.Clone()
	return nil
}

// PatchUser overwrites the given fields of the record for userID.
func (s *UserStore) PatchUser(_ context.Context, userID string, fields domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return apperrors.NotFound("user", userID)
	}
	rec = rec.Clone()
	for k, v := range fields {
		rec[k] = v
	}
	s.records[userID] = rec
	return nil
}
