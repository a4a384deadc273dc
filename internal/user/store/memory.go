// Package store persists the verification subset of the user entity. The
// user record is owned by the external user service; this store only
// mirrors the verification fields the pipeline fans out to.
package store

import (
	"context"
	"sync"
	"time"

	"storecred/internal/user/models"
	"storecred/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded map store, copies in and out.
type InMemory struct {
	mu     sync.RWMutex
	states map[string]*models.VerificationState
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemory {
	return &InMemory{states: make(map[string]*models.VerificationState)}
}

// Get returns the user's verification state, or ErrNotFound if the user has
// never submitted.
func (s *InMemory) Get(_ context.Context, userID string) (*models.VerificationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

// SetPending upserts the state for a fresh submission. Verified drops to
// false so the flag stays synchronized with the status.
func (s *InMemory) SetPending(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		state = &models.VerificationState{UserID: userID}
		s.states[userID] = state
	}
	state.Status = models.StatusPending
	state.Verified = false
	submitted := at
	state.LastSubmission = &submitted
	return nil
}

// ApplyDecision mirrors a terminal request decision onto the user record.
// Idempotent: re-applying the same decision produces the same state.
func (s *InMemory) ApplyDecision(_ context.Context, userID string, status models.VerificationStatus, decidedAt time.Time) error {
	if status != models.StatusApproved && status != models.StatusRejected {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		state = &models.VerificationState{UserID: userID}
		s.states[userID] = state
	}
	state.Status = status
	at := decidedAt
	if status == models.StatusApproved {
		state.Verified = true
		state.ApprovedAt = &at
	} else {
		state.Verified = false
		state.RejectedAt = &at
	}
	return nil
}
