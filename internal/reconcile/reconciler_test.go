package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	usermodels "storecred/internal/user/models"
	userstore "storecred/internal/user/store"
	"storecred/internal/verification/models"
	requeststore "storecred/internal/verification/store/request"
	"storecred/pkg/requestcontext"
)

type ReconcilerSuite struct {
	suite.Suite

	ctx      context.Context
	now      time.Time
	requests *requeststore.InMemory
	users    *userstore.InMemory
	rec      *Reconciler
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.now = time.Date(2026, time.May, 11, 8, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.requests = requeststore.NewInMemory()
	s.users = userstore.NewInMemory()
	s.rec = New(s.requests, s.users, time.Minute, 24*time.Hour)
}

func (s *ReconcilerSuite) seedDecided(userID string, status models.Status, reviewedAt time.Time) *models.VerificationRequest {
	req := &models.VerificationRequest{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      status,
		SubmittedAt: reviewedAt.Add(-time.Hour),
		ReviewedAt:  &reviewedAt,
	}
	s.Require().NoError(s.requests.Create(s.ctx, req))
	return req
}

func (s *ReconcilerSuite) TestRepairsDivergedState() {
	decidedAt := s.now.Add(-time.Hour)
	s.seedDecided("user-1", models.StatusApproved, decidedAt)
	// The fan-out never reached the user record; it is still pending.
	s.Require().NoError(s.users.SetPending(s.ctx, "user-1", decidedAt.Add(-time.Hour)))

	repaired, err := s.rec.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, repaired)

	state, err := s.users.Get(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusApproved, state.Status)
	s.True(state.Verified)
	s.True(state.Consistent())
}

func (s *ReconcilerSuite) TestRepairsMissingState() {
	s.seedDecided("user-2", models.StatusRejected, s.now.Add(-time.Hour))

	repaired, err := s.rec.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, repaired)

	state, err := s.users.Get(s.ctx, "user-2")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusRejected, state.Status)
	s.False(state.Verified)
}

func (s *ReconcilerSuite) TestConsistentStateUntouched() {
	decidedAt := s.now.Add(-time.Hour)
	s.seedDecided("user-3", models.StatusApproved, decidedAt)
	s.Require().NoError(s.users.ApplyDecision(s.ctx, "user-3", usermodels.StatusApproved, decidedAt))

	repaired, err := s.rec.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(repaired)
}

func (s *ReconcilerSuite) TestNewerSubmissionWins() {
	decidedAt := s.now.Add(-2 * time.Hour)
	s.seedDecided("user-4", models.StatusRejected, decidedAt)
	// The user resubmitted after the rejection; pending is correct.
	s.Require().NoError(s.users.SetPending(s.ctx, "user-4", s.now.Add(-time.Hour)))

	repaired, err := s.rec.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(repaired)

	state, err := s.users.Get(s.ctx, "user-4")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusPending, state.Status)
}

func (s *ReconcilerSuite) TestLatestDecisionPerUserWins() {
	s.seedDecided("user-5", models.StatusRejected, s.now.Add(-3*time.Hour))
	s.seedDecided("user-5", models.StatusApproved, s.now.Add(-time.Hour))

	repaired, err := s.rec.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, repaired)

	state, err := s.users.Get(s.ctx, "user-5")
	s.Require().NoError(err)
	s.Equal(usermodels.StatusApproved, state.Status)
	s.True(state.Verified)
}

func (s *ReconcilerSuite) TestOldDecisionsOutsideWindowIgnored() {
	s.seedDecided("user-6", models.StatusApproved, s.now.Add(-48*time.Hour))

	repaired, err := s.rec.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(repaired)
}
