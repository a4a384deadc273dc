package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecred/internal/objectstore"
	"storecred/internal/verification/models"
	verificationstore "storecred/internal/verification/store/request"
	"storecred/pkg/platform/sentinel"
)

func seedRequest(t *testing.T, store *verificationstore.InMemory, userID string, photoURL string, status models.Status, at time.Time) uuid.UUID {
	t.Helper()
	req := models.VerificationRequest{
		ID:          uuid.New(),
		UserID:      userID,
		PhotoURL:    photoURL,
		Status:      status,
		SubmittedAt: at,
	}
	require.NoError(t, store.Create(context.Background(), &req))
	return req.ID
}

func TestPhotoURLMatcher(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("matches the record whose url contains the object path", func(t *testing.T) {
		store := verificationstore.NewInMemory()
		path := "verification/user-1/1700000000000_verification.jpg"
		seedRequest(t, store, "user-1", "https://cdn.example.com/other.jpg", models.StatusPending, base.Add(2*time.Minute))
		want := seedRequest(t, store, "user-1", objectstore.TokenURL(path, "tok"), models.StatusPending, base)

		m := NewPhotoURLMatcher(store, nil)
		got, err := m.FindCandidate(ctx, "user-1", path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("matches percent-encoded urls", func(t *testing.T) {
		store := verificationstore.NewInMemory()
		path := "verification/user-2/1700000000000_verification.jpg"
		want := seedRequest(t, store, "user-2",
			"https://storage.example.com/v0/b/app/o/verification%2Fuser-2%2F1700000000000_verification.jpg?alt=media",
			models.StatusPending, base)

		m := NewPhotoURLMatcher(store, nil)
		got, err := m.FindCandidate(ctx, "user-2", path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("falls back to most recent pending record", func(t *testing.T) {
		store := verificationstore.NewInMemory()
		seedRequest(t, store, "user-3", "https://cdn.example.com/a.jpg", models.StatusPending, base)
		want := seedRequest(t, store, "user-3", "https://cdn.example.com/b.jpg", models.StatusPending, base.Add(time.Minute))

		m := NewPhotoURLMatcher(store, nil)
		got, err := m.FindCandidate(ctx, "user-3", "verification/user-3/999_verification.jpg")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("decided records never match", func(t *testing.T) {
		store := verificationstore.NewInMemory()
		path := "verification/user-4/1700000000000_verification.jpg"
		seedRequest(t, store, "user-4", objectstore.TokenURL(path, "tok"), models.StatusApproved, base)

		m := NewPhotoURLMatcher(store, nil)
		_, err := m.FindCandidate(ctx, "user-4", path)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("no records at all", func(t *testing.T) {
		store := verificationstore.NewInMemory()
		m := NewPhotoURLMatcher(store, nil)
		_, err := m.FindCandidate(ctx, "nobody", "verification/nobody/1_verification.jpg")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
