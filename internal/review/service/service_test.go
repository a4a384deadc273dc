package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"storecred/internal/audit"
	usermodels "storecred/internal/user/models"
	userstore "storecred/internal/user/store"
	"storecred/internal/verification/models"
	requeststore "storecred/internal/verification/store/request"
	dErrors "storecred/pkg/domain-errors"
	"storecred/pkg/requestcontext"
)

type ReviewSuite struct {
	suite.Suite

	ctx      context.Context
	now      time.Time
	requests *requeststore.InMemory
	users    *userstore.InMemory
	outbox   *audit.InMemory
	svc      *Service
}

func TestReviewSuite(t *testing.T) {
	suite.Run(t, new(ReviewSuite))
}

func (s *ReviewSuite) SetupTest() {
	s.now = time.Date(2026, time.April, 20, 16, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithUserID(s.ctx, "admin-1")
	s.requests = requeststore.NewInMemory()
	s.users = userstore.NewInMemory()
	s.outbox = audit.NewInMemory()
	s.svc = New(s.requests, s.users, NewMemoryTxRunner(),
		WithAuditPublisher(audit.NewOutboxPublisher(s.outbox)))
}

func (s *ReviewSuite) seedPending(userID string) uuid.UUID {
	req := models.VerificationRequest{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      models.StatusPending,
		SubmittedAt: s.now.Add(-time.Hour),
	}
	s.Require().NoError(s.requests.Create(s.ctx, &req))
	s.Require().NoError(s.users.SetPending(s.ctx, userID, req.SubmittedAt))
	return req.ID
}

func (s *ReviewSuite) TestApprove() {
	id := s.seedPending("user-1")

	req, err := s.svc.Approve(s.ctx, id, "store visit checks out")
	s.Require().NoError(err)

	s.Equal(models.StatusApproved, req.Status)
	s.Equal("store visit checks out", req.AdminNotes)
	s.Require().NotNil(req.ReviewedAt)
	s.Equal(s.now, *req.ReviewedAt)

	state, err := s.users.Get(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusApproved, state.Status)
	s.True(state.Verified)
	s.Require().NotNil(state.ApprovedAt)
	s.Equal(s.now, *state.ApprovedAt)
	s.True(state.Consistent())

	events := s.outbox.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionApproved, events[0].Action)
	s.Equal("admin-1", events[0].ActorID)
	s.Equal("user-1", events[0].SubjectID)
}

func (s *ReviewSuite) TestReject() {
	id := s.seedPending("user-2")

	req, err := s.svc.Reject(s.ctx, id, "photo does not show the store")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, req.Status)

	state, err := s.users.Get(s.ctx, "user-2")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusRejected, state.Status)
	s.False(state.Verified)
	s.NotNil(state.RejectedAt)
	s.True(state.Consistent())
}

func (s *ReviewSuite) TestDecidedRequestsAreImmutable() {
	id := s.seedPending("user-3")
	_, err := s.svc.Approve(s.ctx, id, "")
	s.Require().NoError(err)

	for _, attempt := range []func() error{
		func() error { _, err := s.svc.Approve(s.ctx, id, "again"); return err },
		func() error { _, err := s.svc.Reject(s.ctx, id, "changed my mind"); return err },
	} {
		err := attempt()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	}

	// The flip-flop attempt left the user state alone.
	state, err := s.users.Get(s.ctx, "user-3")
	s.Require().NoError(err)
	s.True(state.Verified)
}

func (s *ReviewSuite) TestDecideUnknownRequest() {
	_, err := s.svc.Approve(s.ctx, uuid.New(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type failingUserStore struct {
	err error
}

func (f *failingUserStore) ApplyDecision(context.Context, string, usermodels.VerificationStatus, time.Time) error {
	return f.err
}

func (s *ReviewSuite) TestPartialFanOutIsFlagged() {
	id := s.seedPending("user-4")
	svc := New(s.requests, &failingUserStore{err: errors.New("user service down")}, NewMemoryTxRunner())

	_, err := svc.Approve(s.ctx, id, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStateDivergence))

	// The request side landed; the reconciler is expected to repair the
	// user side.
	req, findErr := s.requests.FindByID(s.ctx, id)
	s.Require().NoError(findErr)
	s.Equal(models.StatusApproved, req.Status)
}

type failingAuditor struct {
	err error
}

func (f *failingAuditor) Publish(context.Context, audit.Event) error {
	return f.err
}

func (s *ReviewSuite) TestAuditFailureDoesNotFailTheDecision() {
	id := s.seedPending("user-8")
	svc := New(s.requests, s.users, NewMemoryTxRunner(),
		WithAuditPublisher(&failingAuditor{err: errors.New("outbox unavailable")}))

	// Both records landed and agree; losing the audit append alone is not a
	// divergence.
	req, err := svc.Approve(s.ctx, id, "")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, req.Status)

	state, err := s.users.Get(s.ctx, "user-8")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusApproved, state.Status)
	s.True(state.Consistent())
}

func (s *ReviewSuite) TestDelete() {
	id := s.seedPending("user-5")
	s.Require().NoError(s.svc.Delete(s.ctx, id))

	_, err := s.requests.FindByID(s.ctx, id)
	s.Require().Error(err)

	// Deleting the claim is not a decision; the mirrored state stays.
	state, err := s.users.Get(s.ctx, "user-5")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusPending, state.Status)

	events := s.outbox.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionDeleted, events[0].Action)

	err = s.svc.Delete(s.ctx, id)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ReviewSuite) TestList() {
	pending := s.seedPending("user-6")
	approvedID := s.seedPending("user-7")
	_, err := s.svc.Approve(s.ctx, approvedID, "")
	s.Require().NoError(err)

	s.Run("defaults to the pending queue", func() {
		out, err := s.svc.List(s.ctx, "")
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(pending, out[0].ID)
	})

	s.Run("filters by status", func() {
		out, err := s.svc.List(s.ctx, models.StatusApproved)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(approvedID, out[0].ID)
	})

	s.Run("rejects unknown statuses", func() {
		_, err := s.svc.List(s.ctx, models.Status("archived"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
