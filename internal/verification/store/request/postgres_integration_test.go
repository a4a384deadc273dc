//go:build integration

package request

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecred/internal/verification/models"
	"storecred/pkg/platform/sentinel"
	txcontext "storecred/pkg/platform/tx"
	"storecred/pkg/testutil"
)

func TestPostgresRequestStore(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := NewPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newReq := func(userID string, at time.Time) *models.VerificationRequest {
		return &models.VerificationRequest{
			ID:               uuid.New(),
			UserID:           userID,
			UserEmail:        userID + "@example.com",
			StoreName:        "Main Street 12",
			PhotoURL:         "verification/" + userID + "/1_verification.jpg?alt=media&token=tok",
			VerificationCode: models.DailyCode(at),
			Status:           models.StatusPending,
			SubmittedAt:      at,
		}
	}

	t.Run("create and find round trip", func(t *testing.T) {
		req := newReq("user-1", now)
		require.NoError(t, store.Create(ctx, req))

		got, err := store.FindByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		assert.Equal(t, req.PhotoURL, got.PhotoURL)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.True(t, req.SubmittedAt.Equal(got.SubmittedAt))

		_, err = store.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("recent listing is newest first", func(t *testing.T) {
		older := newReq("user-2", now.Add(-time.Hour))
		newer := newReq("user-2", now)
		require.NoError(t, store.Create(ctx, older))
		require.NoError(t, store.Create(ctx, newer))

		recent, err := store.ListRecentByUser(ctx, "user-2", 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, newer.ID, recent[0].ID)
		assert.Equal(t, older.ID, recent[1].ID)
	})

	t.Run("enrichment merge touches only processor fields", func(t *testing.T) {
		req := newReq("user-3", now)
		req.AdminNotes = "keep me"
		require.NoError(t, store.Create(ctx, req))

		require.NoError(t, store.MergeEnrichment(ctx, req.ID, models.Enrichment{
			GPS:              &models.GPS{Lat: 40.7128, Lng: -74.0060, Source: "exif"},
			HasGPS:           true,
			PhotoRedactedURL: "verification-redacted/user-3/1_verification.jpg?alt=media&token=tok2",
			ExifParsedAt:     now,
		}))

		got, err := store.FindByID(ctx, req.ID)
		require.NoError(t, err)
		require.NotNil(t, got.GPS)
		assert.InDelta(t, 40.7128, got.GPS.Lat, 1e-9)
		assert.True(t, got.HasGPS)
		assert.Equal(t, "keep me", got.AdminNotes)
		assert.Equal(t, req.PhotoURL, got.PhotoURL)
	})

	t.Run("decide flips pending only", func(t *testing.T) {
		req := newReq("user-4", now)
		require.NoError(t, store.Create(ctx, req))

		require.NoError(t, store.Decide(ctx, req.ID, models.StatusApproved, "ok", now))
		assert.ErrorIs(t, store.Decide(ctx, req.ID, models.StatusRejected, "flip", now), sentinel.ErrInvalidState)
		assert.ErrorIs(t, store.Decide(ctx, uuid.New(), models.StatusApproved, "", now), sentinel.ErrNotFound)
	})

	t.Run("context transaction rolls back a decision", func(t *testing.T) {
		req := newReq("user-5", now)
		require.NoError(t, store.Create(ctx, req))

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		txCtx := txcontext.WithTx(ctx, tx)
		require.NoError(t, store.Decide(txCtx, req.ID, models.StatusApproved, "", now))
		require.NoError(t, tx.Rollback())

		got, err := store.FindByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("decided scan honors the window", func(t *testing.T) {
		req := newReq("user-6", now.Add(-time.Minute))
		require.NoError(t, store.Create(ctx, req))
		require.NoError(t, store.Decide(ctx, req.ID, models.StatusRejected, "", now))

		decided, err := store.ListDecidedSince(ctx, now.Add(-time.Hour), 100)
		require.NoError(t, err)
		ids := make(map[uuid.UUID]bool, len(decided))
		for _, d := range decided {
			ids[d.ID] = true
		}
		assert.True(t, ids[req.ID])

		none, err := store.ListDecidedSince(ctx, now.Add(time.Hour), 100)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
