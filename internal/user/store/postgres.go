package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storecred/internal/user/models"
	"storecred/pkg/platform/sentinel"
	txcontext "storecred/pkg/platform/tx"
)

// Postgres persists user verification states. Writes honor a context-carried
// transaction so decision fan-out commits with the request update.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed state store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Get returns the user's verification state.
func (s *Postgres) Get(ctx context.Context, userID string) (*models.VerificationState, error) {
	var state models.VerificationState
	var status string
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT user_id, status, verified, approved_at, rejected_at, last_submission
		FROM user_verification_states WHERE user_id = $1
	`, userID).Scan(
		&state.UserID, &status, &state.Verified,
		&state.ApprovedAt, &state.RejectedAt, &state.LastSubmission,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user state: %w", err)
	}
	state.Status = models.VerificationStatus(status)
	return &state, nil
}

// SetPending upserts the state for a fresh submission.
func (s *Postgres) SetPending(ctx context.Context, userID string, at time.Time) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO user_verification_states (user_id, status, verified, last_submission)
		VALUES ($1, 'pending', FALSE, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET status = 'pending', verified = FALSE, last_submission = $2
	`, userID, at)
	if err != nil {
		return fmt.Errorf("set user state pending: %w", err)
	}
	return nil
}

// ApplyDecision mirrors a terminal decision onto the user record.
func (s *Postgres) ApplyDecision(ctx context.Context, userID string, status models.VerificationStatus, decidedAt time.Time) error {
	var query string
	switch status {
	case models.StatusApproved:
		query = `
			INSERT INTO user_verification_states (user_id, status, verified, approved_at)
			VALUES ($1, 'approved', TRUE, $2)
			ON CONFLICT (user_id) DO UPDATE
			SET status = 'approved', verified = TRUE, approved_at = $2
		`
	case models.StatusRejected:
		query = `
			INSERT INTO user_verification_states (user_id, status, verified, rejected_at)
			VALUES ($1, 'rejected', FALSE, $2)
			ON CONFLICT (user_id) DO UPDATE
			SET status = 'rejected', verified = FALSE, rejected_at = $2
		`
	default:
		return sentinel.ErrInvalidState
	}
	if _, err := s.execer(ctx).ExecContext(ctx, query, userID, decidedAt); err != nil {
		return fmt.Errorf("apply decision to user state: %w", err)
	}
	return nil
}
