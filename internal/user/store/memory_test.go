package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"storecred/internal/user/models"
	"storecred/pkg/platform/sentinel"
)

type StateStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *StateStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestStateStoreSuite(t *testing.T) {
	suite.Run(t, new(StateStoreSuite))
}

func (s *StateStoreSuite) TestGetUnknownUser() {
	_, err := s.store.Get(s.ctx, "nobody")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StateStoreSuite) TestSetPending() {
	now := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)

	s.Run("creates state on first submission", func() {
		s.Require().NoError(s.store.SetPending(s.ctx, "user-1", now))
		state, err := s.store.Get(s.ctx, "user-1")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, state.Status)
		s.False(state.Verified)
		s.Require().NotNil(state.LastSubmission)
		s.True(state.LastSubmission.Equal(now))
	})

	s.Run("resubmission after approval drops verified", func() {
		s.Require().NoError(s.store.ApplyDecision(s.ctx, "user-2", models.StatusApproved, now))
		s.Require().NoError(s.store.SetPending(s.ctx, "user-2", now.Add(time.Hour)))

		state, err := s.store.Get(s.ctx, "user-2")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, state.Status)
		s.False(state.Verified)
		s.True(state.Consistent())
	})
}

func (s *StateStoreSuite) TestApplyDecision() {
	now := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)

	s.Run("approve sets verified and stamps approvedAt", func() {
		s.Require().NoError(s.store.SetPending(s.ctx, "user-1", now))
		s.Require().NoError(s.store.ApplyDecision(s.ctx, "user-1", models.StatusApproved, now.Add(time.Hour)))

		state, err := s.store.Get(s.ctx, "user-1")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, state.Status)
		s.True(state.Verified)
		s.Require().NotNil(state.ApprovedAt)
		s.True(state.Consistent())
	})

	s.Run("reject clears verified and stamps rejectedAt", func() {
		s.Require().NoError(s.store.SetPending(s.ctx, "user-2", now))
		s.Require().NoError(s.store.ApplyDecision(s.ctx, "user-2", models.StatusRejected, now.Add(time.Hour)))

		state, err := s.store.Get(s.ctx, "user-2")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, state.Status)
		s.False(state.Verified)
		s.Require().NotNil(state.RejectedAt)
		s.True(state.Consistent())
	})

	s.Run("re-applying the same decision is idempotent", func() {
		s.Require().NoError(s.store.ApplyDecision(s.ctx, "user-3", models.StatusApproved, now))
		s.Require().NoError(s.store.ApplyDecision(s.ctx, "user-3", models.StatusApproved, now))
		state, err := s.store.Get(s.ctx, "user-3")
		s.Require().NoError(err)
		s.True(state.Verified)
	})

	s.Run("non-terminal status is invalid", func() {
		err := s.store.ApplyDecision(s.ctx, "user-4", models.StatusPending, now)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}
