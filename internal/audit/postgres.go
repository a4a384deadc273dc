package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "storecred/pkg/platform/tx"
)

// Postgres persists the outbox in PostgreSQL. Append honors a transaction
// carried in the context, which is what makes the outbox transactional with
// the decision it describes.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Append(ctx context.Context, event Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	query := `
		INSERT INTO audit_outbox (id, action, actor_id, subject_id, request_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID, string(event.Action), event.ActorID, event.SubjectID, event.RequestID, detail, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Postgres) FetchUnpublished(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, action, actor_id, subject_id, request_id, detail, occurred_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at
		LIMIT $1
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var action string
		var detail []byte
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &e.SubjectID, &e.RequestID, &detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE audit_outbox SET published_at = now() WHERE id = ANY($1)`
	if _, err := s.execer(ctx).ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark audit events published: %w", err)
	}
	return nil
}
