package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/you/paygate/internal/domain"
)

// MemStore is an in-memory Store with the same conditional-update
// semantics as the Postgres implementation. Used by tests.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemStore) Insert(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.PaymentHash]; exists {
		return errors.Errorf("duplicate payment hash %s", j.PaymentHash)
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	cp := *j
	s.jobs[j.PaymentHash] = &cp
	return nil
}

// Len reports the number of stored jobs.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *MemStore) GetByPaymentHash(_ context.Context, hash string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[hash]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemStore) MarkSettled(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[hash]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.Settled = true
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) Transition(_ context.Context, hash string, from, to domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[hash]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if j.State != from {
		return false, nil
	}
	j.State = to
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemStore) Complete(_ context.Context, hash string, state domain.Status, response json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[hash]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.RequestResponse != nil {
		return errors.Errorf("job %s already completed", hash)
	}
	j.State = state
	j.RequestResponse = append(json.RawMessage(nil), response...)
	j.UpdatedAt = time.Now().UTC()
	return nil
}
