// Package service implements the claimant-facing submission flow: validate
// the claim, upload the photo, create the pending record, and flip the
// user's mirrored state to pending. Enrichment happens later, off the
// storage finalize event.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storecred/internal/audit"
	"storecred/internal/objectstore"
	"storecred/internal/platform/metrics"
	usermodels "storecred/internal/user/models"
	"storecred/internal/verification/models"
	dErrors "storecred/pkg/domain-errors"
	"storecred/pkg/platform/sentinel"
	"storecred/pkg/requestcontext"
)

// RequestStore is the slice of the request store the submission flow needs.
type RequestStore interface {
	Create(ctx context.Context, req *models.VerificationRequest) error
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error)
}

// UserStateStore mirrors submissions onto the user record.
type UserStateStore interface {
	Get(ctx context.Context, userID string) (*usermodels.VerificationState, error)
	SetPending(ctx context.Context, userID string, at time.Time) error
}

// Overview is what the claimant sees about their own standing: the mirrored
// user state plus their recent submissions, newest first.
type Overview struct {
	State    *usermodels.VerificationState `json:"state"`
	Requests []*models.VerificationRequest `json:"requests"`
}

// overviewLimit bounds how much history the claimant view returns.
const overviewLimit = 10

// Service handles claim submission and the claimant's own view.
type Service struct {
	requests RequestStore
	users    UserStateStore
	objects  objectstore.Store

	log            *slog.Logger
	metrics        *metrics.Metrics
	auditor        audit.Publisher
	maxUploadBytes int64
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

func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func New(requests RequestStore, users UserStateStore, objects objectstore.Store, opts ...Option) *Service {
	s := &Service{
		requests:       requests,
		users:          users,
		objects:        objects,
		log:            slog.Default(),
		auditor:        audit.Nop{},
		maxUploadBytes: models.MaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the claim and creates the pending record. Resubmission
// is allowed while earlier claims are still pending; each attempt gets its
// own record and its own upload.
func (s *Service) Submit(ctx context.Context, claim models.Claim) (*models.VerificationRequest, error) {
	if err := claim.Validate(s.maxUploadBytes); err != nil {
		if s.metrics != nil {
			s.metrics.SubmissionFailuresTotal.Inc()
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	req := &models.VerificationRequest{
		ID:               uuid.New(),
		UserID:           claim.UserID,
		UserEmail:        claim.UserEmail,
		UserName:         claim.UserName,
		StoreName:        claim.StoreName,
		VerificationCode: models.DailyCode(now),
		SelectedBrand:    claim.SelectedBrand,
		BrandCode:        claim.BrandCode,
		Status:           models.StatusPending,
		SubmittedAt:      now,
	}

	if claim.HasPhoto() {
		url, err := s.uploadPhoto(ctx, claim, now)
		if err != nil {
			return nil, err
		}
		req.PhotoURL = url
	}

	// The upload is already durable at this point. If the record insert
	// fails the object is orphaned; that is accepted, the claimant simply
	// retries and storage is cleaned up out of band.
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create verification request")
	}
	if err := s.users.SetPending(ctx, claim.UserID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark user pending")
	}

	method := "code"
	if claim.HasPhoto() {
		method = "photo"
	}
	if err := s.auditor.Publish(ctx, audit.Event{
		Action:    audit.ActionSubmitted,
		SubjectID: claim.UserID,
		RequestID: req.ID,
		Detail:    map[string]string{"method": method},
	}); err != nil {
		s.log.ErrorContext(ctx, "failed to publish audit event", "action", audit.ActionSubmitted, "error", err)
	}
	if s.metrics != nil {
		s.metrics.SubmissionsTotal.Inc()
	}
	s.log.InfoContext(ctx, "verification claim submitted",
		"request_id", req.ID, "user_id", claim.UserID, "method", method)
	return req, nil
}

func (s *Service) uploadPhoto(ctx context.Context, claim models.Claim, now time.Time) (string, error) {
	token, err := objectstore.NewAccessToken()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "mint access token")
	}
	path := objectstore.UploadPath(claim.UserID, now)
	if err := s.objects.Put(ctx, objectstore.Object{
		Path:        path,
		ContentType: claim.ImageType,
		Data:        claim.Image,
		AccessToken: token,
	}); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "store claim photo")
	}
	return objectstore.TokenURL(path, token), nil
}

// Current returns the claimant's mirrored state and recent submissions. A
// user who never submitted gets the zero state rather than an error.
func (s *Service) Current(ctx context.Context, userID string) (*Overview, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}

	state, err := s.users.Get(ctx, userID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		state = &usermodels.VerificationState{
			UserID: userID,
			Status: usermodels.StatusNotSubmitted,
		}
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("load state for user %s", userID))
	}

	requests, err := s.requests.ListRecentByUser(ctx, userID, overviewLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list recent submissions")
	}
	return &Overview{State: state, Requests: requests}, nil
}
