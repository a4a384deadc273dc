package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecred/internal/platform/middleware"
	reviewservice "storecred/internal/review/service"
	usermodels "storecred/internal/user/models"
	userstore "storecred/internal/user/store"
	"storecred/internal/verification/models"
	requeststore "storecred/internal/verification/store/request"
)

type staticValidator struct {
	claims *middleware.Claims
}

func (v *staticValidator) ValidateToken(string) (*middleware.Claims, error) {
	if v.claims == nil {
		return nil, errors.New("invalid token")
	}
	return v.claims, nil
}

type fixture struct {
	router   *chi.Mux
	requests *requeststore.InMemory
	users    *userstore.InMemory
}

func newFixture(t *testing.T, claims *middleware.Claims) *fixture {
	t.Helper()
	requests := requeststore.NewInMemory()
	users := userstore.NewInMemory()
	svc := reviewservice.New(requests, users, reviewservice.NewMemoryTxRunner())
	h := New(svc, slog.Default(), &staticValidator{claims: claims})
	r := chi.NewRouter()
	h.Register(r)
	return &fixture{router: r, requests: requests, users: users}
}

func (f *fixture) seedPending(t *testing.T, userID string) uuid.UUID {
	t.Helper()
	req := models.VerificationRequest{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      models.StatusPending,
		SubmittedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.requests.Create(context.Background(), &req))
	require.NoError(t, f.users.SetPending(context.Background(), userID, req.SubmittedAt))
	return req.ID
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

var adminClaims = &middleware.Claims{UserID: "admin-1", Admin: true}

func TestListEndpoint(t *testing.T) {
	f := newFixture(t, adminClaims)
	id := f.seedPending(t, "user-1")

	w := f.do(http.MethodGet, "/api/admin/verifications/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out []models.VerificationRequest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].ID)

	w = f.do(http.MethodGet, "/api/admin/verifications/?status=approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Empty(t, out)

	w = f.do(http.MethodGet, "/api/admin/verifications/?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveEndpoint(t *testing.T) {
	f := newFixture(t, adminClaims)
	id := f.seedPending(t, "user-2")

	w := f.do(http.MethodPost, "/api/admin/verifications/"+id.String()+"/approve", map[string]string{"notes": "looks legit"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var decided models.VerificationRequest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decided))
	assert.Equal(t, models.StatusApproved, decided.Status)
	assert.Equal(t, "looks legit", decided.AdminNotes)

	state, err := f.users.Get(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, usermodels.StatusApproved, state.Status)
	assert.True(t, state.Verified)

	// Second decision on the same request conflicts.
	w = f.do(http.MethodPost, "/api/admin/verifications/"+id.String()+"/reject", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectEndpoint(t *testing.T) {
	f := newFixture(t, adminClaims)
	id := f.seedPending(t, "user-3")

	w := f.do(http.MethodPost, "/api/admin/verifications/"+id.String()+"/reject", map[string]string{"notes": "blurry photo"})
	require.Equal(t, http.StatusOK, w.Code)

	var decided models.VerificationRequest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decided))
	assert.Equal(t, models.StatusRejected, decided.Status)

	state, err := f.users.Get(context.Background(), "user-3")
	require.NoError(t, err)
	assert.False(t, state.Verified)
}

func TestDeleteEndpoint(t *testing.T) {
	f := newFixture(t, adminClaims)
	id := f.seedPending(t, "user-4")

	w := f.do(http.MethodDelete, "/api/admin/verifications/"+id.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodDelete, "/api/admin/verifications/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecisionValidation(t *testing.T) {
	f := newFixture(t, adminClaims)

	w := f.do(http.MethodPost, "/api/admin/verifications/not-a-uuid/approve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/admin/verifications/"+uuid.NewString()+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminGate(t *testing.T) {
	t.Run("non-admin principal", func(t *testing.T) {
		f := newFixture(t, &middleware.Claims{UserID: "user-5"})
		w := f.do(http.MethodGet, "/api/admin/verifications/", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(http.MethodGet, "/api/admin/verifications/", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
