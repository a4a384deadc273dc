// Package reconcile repairs divergence between decided verification
// requests and the mirrored user state. A decision fan-out that only half
// landed leaves the two records disagreeing; this job sweeps recent
// decisions and reapplies any that the user record missed.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storecred/internal/platform/metrics"
	usermodels "storecred/internal/user/models"
	"storecred/internal/verification/models"
	"storecred/pkg/platform/sentinel"
	"storecred/pkg/requestcontext"
)

// sweepLimit bounds one pass over the decided set.
const sweepLimit = 500

// RequestScanner lists recently decided requests.
type RequestScanner interface {
	ListDecidedSince(ctx context.Context, since time.Time, limit int) ([]*models.VerificationRequest, error)
}

// UserStateStore reads and repairs the mirrored state.
type UserStateStore interface {
	Get(ctx context.Context, userID string) (*usermodels.VerificationState, error)
	ApplyDecision(ctx context.Context, userID string, status usermodels.VerificationStatus, decidedAt time.Time) error
}

// Reconciler sweeps on a fixed cadence.
type Reconciler struct {
	requests RequestScanner
	users    UserStateStore

	interval time.Duration
	window   time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures optional collaborators.
type Option func(*Reconciler)

func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func New(requests RequestScanner, users UserStateStore, interval, window time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		requests: requests,
		users:    users,
		interval: interval,
		window:   window,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps until the context is cancelled. Sweep failures are logged and
// retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if repaired, err := r.Sweep(ctx); err != nil {
				r.log.ErrorContext(ctx, "reconcile sweep failed", "error", err)
			} else if repaired > 0 {
				r.log.InfoContext(ctx, "reconcile sweep repaired diverged states", "repaired", repaired)
			}
		}
	}
}

// Sweep runs one pass and returns how many user states it repaired.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	since := requestcontext.Now(ctx).Add(-r.window)
	decided, err := r.requests.ListDecidedSince(ctx, since, sweepLimit)
	if err != nil {
		return 0, err
	}

	// Only the latest decision per user is authoritative.
	latest := make(map[string]*models.VerificationRequest)
	for _, req := range decided {
		prev, ok := latest[req.UserID]
		if !ok || req.ReviewedAt.After(*prev.ReviewedAt) {
			latest[req.UserID] = req
		}
	}

	repaired := 0
	for userID, req := range latest {
		fixed, err := r.repair(ctx, userID, req)
		if err != nil {
			r.log.ErrorContext(ctx, "failed to repair user state", "user_id", userID, "error", err)
			continue
		}
		if fixed {
			repaired++
			if r.metrics != nil {
				r.metrics.ReconcileRepairs.Inc()
			}
		}
	}
	return repaired, nil
}

func (r *Reconciler) repair(ctx context.Context, userID string, req *models.VerificationRequest) (bool, error) {
	expected := usermodels.StatusApproved
	if req.Status == models.StatusRejected {
		expected = usermodels.StatusRejected
	}
	decidedAt := *req.ReviewedAt

	state, err := r.users.Get(ctx, userID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// Fall through to the repair.
	case err != nil:
		return false, err
	default:
		// A submission newer than the decision legitimately put the user
		// back into pending.
		if state.LastSubmission != nil && state.LastSubmission.After(decidedAt) {
			return false, nil
		}
		if state.Status == expected && state.Consistent() {
			return false, nil
		}
	}

	if err := r.users.ApplyDecision(ctx, userID, expected, decidedAt); err != nil {
		return false, err
	}
	r.log.WarnContext(ctx, "repaired diverged user state",
		"user_id", userID, "request_id", req.ID, "status", expected)
	return true, nil
}
