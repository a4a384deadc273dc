// Package service implements the admin review flow. A decision touches two
// records, the request and the user's mirrored state, and both must land
// together; the fan-out runs inside a transaction when the backing stores
// support one, with the reconciler as the backstop when they do not.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storecred/internal/audit"
	"storecred/internal/platform/metrics"
	usermodels "storecred/internal/user/models"
	"storecred/internal/verification/models"
	dErrors "storecred/pkg/domain-errors"
	"storecred/pkg/platform/sentinel"
	"storecred/pkg/requestcontext"
)

// RequestStore is the slice of the request store the review flow needs.
type RequestStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.VerificationRequest, error)
	Decide(ctx context.Context, id uuid.UUID, status models.Status, notes string, reviewedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserStateStore applies the decided status onto the user record.
type UserStateStore interface {
	ApplyDecision(ctx context.Context, userID string, status usermodels.VerificationStatus, decidedAt time.Time) error
}

// TxRunner runs the decision fan-out. Atomic reports whether a failed run
// rolls back; non-atomic runners lean on the reconciler to repair partial
// fan-outs.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Atomic() bool
}

// listLimit bounds the admin queue page.
const listLimit = 100

// Service handles admin decisions over verification requests.
type Service struct {
	requests RequestStore
	users    UserStateStore
	tx       TxRunner

	log     *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Publisher
}

// Option configures optional collaborators.
type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(requests RequestStore, users UserStateStore, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		users:    users,
		tx:       tx,
		log:      slog.Default(),
		auditor:  audit.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Approve marks the request approved and the user verified.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, notes string) (*models.VerificationRequest, error) {
	return s.decide(ctx, id, models.StatusApproved, notes)
}

// Reject marks the request rejected and clears the user's verified flag.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, notes string) (*models.VerificationRequest, error) {
	return s.decide(ctx, id, models.StatusRejected, notes)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, status models.Status, notes string) (*models.VerificationRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "verification request %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load verification request")
	}
	// Decided requests are immutable. Re-deciding, including repeating the
	// same decision, is rejected outright.
	if req.Status.Terminal() {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"verification request %s already %s", id, req.Status)
	}

	now := requestcontext.Now(ctx)
	action := audit.ActionApproved
	userStatus := usermodels.StatusApproved
	if status == models.StatusRejected {
		action = audit.ActionRejected
		userStatus = usermodels.StatusRejected
	}

	decided := false
	mirrored := false
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Decide(ctx, id, status, notes, now); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.Newf(dErrors.CodeNotFound, "verification request %s not found", id)
			case errors.Is(err, sentinel.ErrInvalidState):
				return dErrors.Newf(dErrors.CodeInvalidState, "verification request %s already decided", id)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "record decision")
		}
		decided = true
		if err := s.users.ApplyDecision(ctx, req.UserID, userStatus, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "mirror decision onto user")
		}
		mirrored = true
		return s.auditor.Publish(ctx, audit.Event{
			Action:    action,
			SubjectID: req.UserID,
			RequestID: id,
			Detail:    map[string]string{"notes": notes},
		})
	})
	if err != nil {
		switch {
		case decided && !s.tx.Atomic() && mirrored:
			// Both records landed and agree; only the audit append failed.
			// The trail is lossy here, the state is not, so the decision
			// stands.
			s.log.ErrorContext(ctx, "failed to publish audit event",
				"action", action, "request_id", id, "error", err)
		case decided && !s.tx.Atomic():
			// The request flipped but the mirror write did not land. The
			// reconciler closes the gap on its next pass.
			if s.metrics != nil {
				s.metrics.StateDivergenceTotal.Inc()
			}
			s.log.ErrorContext(ctx, "decision fan-out left records diverged",
				"request_id", id, "user_id", req.UserID, "decision", status, "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeStateDivergence,
				fmt.Sprintf("decision on %s partially applied", id))
		default:
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.DecisionsTotal.WithLabelValues(string(status)).Inc()
	}
	s.log.InfoContext(ctx, "verification request decided",
		"request_id", id, "user_id", req.UserID, "decision", status, "admin_id", requestcontext.UserID(ctx))
	return s.requests.FindByID(ctx, id)
}

// Delete removes a request outright. The user's mirrored state is left
// untouched; deleting the record is an erasure of the claim, not a decision
// about the claimant.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "verification request %s not found", id)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load verification request")
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete verification request")
	}
	if err := s.auditor.Publish(ctx, audit.Event{
		Action:    audit.ActionDeleted,
		SubjectID: req.UserID,
		RequestID: id,
	}); err != nil {
		s.log.ErrorContext(ctx, "failed to publish audit event", "action", audit.ActionDeleted, "error", err)
	}
	return nil
}

// List returns the admin queue for a status, newest first. An empty status
// defaults to the pending queue.
func (s *Service) List(ctx context.Context, status models.Status) ([]*models.VerificationRequest, error) {
	if status == "" {
		status = models.StatusPending
	}
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", status)
	}
	out, err := s.requests.ListByStatus(ctx, status, listLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list verification requests")
	}
	return out, nil
}
