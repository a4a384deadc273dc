package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storecred/internal/verification/models"
	"storecred/pkg/platform/sentinel"
	txcontext "storecred/pkg/platform/tx"
)

// Postgres persists verification requests in PostgreSQL. Writes honor a
// transaction carried in the context so the decision fan-out can span this
// store and the user-state store atomically.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const requestColumns = `
	id, user_id, user_email, user_name, store_name,
	photo_url, photo_redacted_url, verification_code, brand_code, selected_brand,
	gps_lat, gps_lng, gps_source, has_gps,
	status, submitted_at, reviewed_at, admin_notes, exif_parsed_at
`

// Create inserts a new request row.
func (s *Postgres) Create(ctx context.Context, req *models.VerificationRequest) error {
	var lat, lng *float64
	var source *string
	if req.GPS != nil {
		lat, lng, source = &req.GPS.Lat, &req.GPS.Lng, &req.GPS.Source
	}
	query := `
		INSERT INTO verification_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		req.ID, req.UserID, req.UserEmail, req.UserName, req.StoreName,
		req.PhotoURL, req.PhotoRedactedURL, req.VerificationCode, req.BrandCode, req.SelectedBrand,
		lat, lng, source, req.HasGPS,
		string(req.Status), req.SubmittedAt, req.ReviewedAt, req.AdminNotes, req.ExifParsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

// FindByID loads one request.
func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// ListRecentByUser returns the matcher's candidate window, most recent first.
func (s *Postgres) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		 WHERE user_id = $1 ORDER BY submitted_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests by user: %w", err)
	}
	return scanRequests(rows)
}

// ListByStatus returns requests in a status, most recent first.
func (s *Postgres) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.VerificationRequest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		 WHERE status = $1 ORDER BY submitted_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list requests by status: %w", err)
	}
	return scanRequests(rows)
}

// MergeEnrichment updates only the processor-owned columns.
func (s *Postgres) MergeEnrichment(ctx context.Context, id uuid.UUID, e models.Enrichment) error {
	var lat, lng *float64
	var source *string
	if e.GPS != nil {
		lat, lng, source = &e.GPS.Lat, &e.GPS.Lng, &e.GPS.Source
	}
	query := `
		UPDATE verification_requests
		SET gps_lat = COALESCE($2, gps_lat),
		    gps_lng = COALESCE($3, gps_lng),
		    gps_source = COALESCE($4, gps_source),
		    has_gps = $5,
		    photo_redacted_url = CASE WHEN $6 <> '' THEN $6 ELSE photo_redacted_url END,
		    exif_parsed_at = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		id, lat, lng, source, e.HasGPS, e.PhotoRedactedURL, e.ExifParsedAt)
	if err != nil {
		return fmt.Errorf("merge enrichment: %w", err)
	}
	return requireRow(res)
}

// Decide transitions pending → terminal as a conditional update, so a
// concurrent or repeated decision loses at the database.
func (s *Postgres) Decide(ctx context.Context, id uuid.UUID, status models.Status, notes string, reviewedAt time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $2, admin_notes = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), notes, reviewedAt)
	if err != nil {
		return fmt.Errorf("decide request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decide request: %w", err)
	}
	if n == 0 {
		// Distinguish missing from already decided.
		var existing string
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT status FROM verification_requests WHERE id = $1`, id).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("decide request: %w", err)
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// Delete removes the row permanently.
func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM verification_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return requireRow(res)
}

// ListDecidedSince returns terminal requests reviewed in the window, most
// recently reviewed first.
func (s *Postgres) ListDecidedSince(ctx context.Context, since time.Time, limit int) ([]*models.VerificationRequest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		 WHERE status IN ('approved', 'rejected') AND reviewed_at >= $1
		 ORDER BY reviewed_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list decided requests: %w", err)
	}
	return scanRequests(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.VerificationRequest, error) {
	var req models.VerificationRequest
	var status string
	var lat, lng *float64
	var source *string
	err := row.Scan(
		&req.ID, &req.UserID, &req.UserEmail, &req.UserName, &req.StoreName,
		&req.PhotoURL, &req.PhotoRedactedURL, &req.VerificationCode, &req.BrandCode, &req.SelectedBrand,
		&lat, &lng, &source, &req.HasGPS,
		&status, &req.SubmittedAt, &req.ReviewedAt, &req.AdminNotes, &req.ExifParsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan verification request: %w", err)
	}
	req.Status = models.Status(status)
	if lat != nil && lng != nil {
		gps := models.GPS{Lat: *lat, Lng: *lng}
		if source != nil {
			gps.Source = *source
		}
		req.GPS = &gps
	}
	return &req, nil
}

func scanRequests(rows *sql.Rows) ([]*models.VerificationRequest, error) {
	defer rows.Close()
	var out []*models.VerificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification requests: %w", err)
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
