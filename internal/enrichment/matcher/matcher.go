// Package matcher resolves a finalized storage object back to the
// verification request it belongs to. Uploads and record creation are not
// atomic, so the link is recovered by inspecting the user's recent pending
// records.
package matcher

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"storecred/internal/verification/models"
	"storecred/pkg/platform/sentinel"
)

// candidateWindow bounds how far back in a user's history we search. Stale
// pending records beyond it never win a match.
const candidateWindow = 10

// Matcher links an object path to a verification request for a user.
type Matcher interface {
	FindCandidate(ctx context.Context, userID string, objectPath string) (uuid.UUID, error)
}

// RequestLister is the slice of the request store the matcher needs.
type RequestLister interface {
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error)
}

// PhotoURLMatcher matches by textual containment of the object path in the
// stored photo URL, checking both the raw path and its percent-encoded form
// since download URLs encode the slash. When no URL matches it falls back
// to the most recent pending record.
type PhotoURLMatcher struct {
	requests RequestLister
	log      *slog.Logger
}

func NewPhotoURLMatcher(requests RequestLister, log *slog.Logger) *PhotoURLMatcher {
	if log == nil {
		log = slog.Default()
	}
	return &PhotoURLMatcher{requests: requests, log: log}
}

func (m *PhotoURLMatcher) FindCandidate(ctx context.Context, userID string, objectPath string) (uuid.UUID, error) {
	recent, err := m.requests.ListRecentByUser(ctx, userID, candidateWindow)
	if err != nil {
		return uuid.Nil, err
	}

	var fallback uuid.UUID
	encoded := url.QueryEscape(objectPath)
	for _, req := range recent {
		if req.Status != models.StatusPending {
			continue
		}
		if strings.Contains(req.PhotoURL, objectPath) || strings.Contains(req.PhotoURL, encoded) {
			return req.ID, nil
		}
		if fallback == uuid.Nil {
			fallback = req.ID
		}
	}

	if fallback != uuid.Nil {
		m.log.DebugContext(ctx, "no photo url match, using most recent pending record",
			"user_id", userID, "object_path", objectPath, "request_id", fallback)
		return fallback, nil
	}
	return uuid.Nil, sentinel.ErrNotFound
}
