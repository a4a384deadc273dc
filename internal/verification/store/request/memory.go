// Package request persists VerificationRequest records. Implementations are
// interface-driven (services declare the slice of methods they consume) so
// the in-memory store doubles as the test fake for every service.
package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storecred/internal/verification/models"
	"storecred/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded map store. Copies go in and out so callers
// can never mutate shared state.
type InMemory struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*models.VerificationRequest
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[uuid.UUID]*models.VerificationRequest)}
}

// Create stores a new request. The ID must be unique.
func (s *InMemory) Create(_ context.Context, req *models.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// FindByID returns a copy of the request.
func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// ListRecentByUser returns up to limit requests for the user, most recent
// submission first. This is the fuzzy matcher's candidate window and the
// claimant UI's history.
func (s *InMemory) ListRecentByUser(_ context.Context, userID string, limit int) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationRequest
	for _, req := range s.requests {
		if req.UserID == userID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByStatus returns up to limit requests in the given status, most recent
// submission first. Admin listings read pending through this.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationRequest
	for _, req := range s.requests {
		if req.Status == status {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MergeEnrichment writes the processor's fields onto the request without
// touching anything the claimant or an admin set. Re-applying an equivalent
// payload leaves the record unchanged.
func (s *InMemory) MergeEnrichment(_ context.Context, id uuid.UUID, e models.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.GPS != nil {
		gps := *e.GPS
		req.GPS = &gps
	}
	req.HasGPS = e.HasGPS
	if e.PhotoRedactedURL != "" {
		req.PhotoRedactedURL = e.PhotoRedactedURL
	}
	parsed := e.ExifParsedAt
	req.ExifParsedAt = &parsed
	return nil
}

// Decide transitions a pending request to a terminal status. Returns
// ErrInvalidState if the request was already decided, so double decisions
// fail atomically at the store.
func (s *InMemory) Decide(_ context.Context, id uuid.UUID, status models.Status, notes string, reviewedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	req.Status = status
	req.AdminNotes = notes
	at := reviewedAt
	req.ReviewedAt = &at
	return nil
}

// Delete removes the request permanently. No cascading effect on user state.
func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

// ListDecidedSince returns terminal requests reviewed at or after since,
// most recently reviewed first. The reconciler's scan window.
func (s *InMemory) ListDecidedSince(_ context.Context, since time.Time, limit int) ([]*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationRequest
	for _, req := range s.requests {
		if req.Status.Terminal() && req.ReviewedAt != nil && !req.ReviewedAt.Before(since) {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReviewedAt.After(*out[j].ReviewedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
