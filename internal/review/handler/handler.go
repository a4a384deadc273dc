// Package handler exposes the admin review endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storecred/internal/platform/middleware"
	"storecred/internal/verification/models"
	dErrors "storecred/pkg/domain-errors"
	"storecred/pkg/platform/httputil"
)

// Service defines the review operations the handler fronts.
type Service interface {
	List(ctx context.Context, status models.Status) ([]*models.VerificationRequest, error)
	Approve(ctx context.Context, id uuid.UUID, notes string) (*models.VerificationRequest, error)
	Reject(ctx context.Context, id uuid.UUID, notes string) (*models.VerificationRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler handles the admin review endpoints.
type Handler struct {
	logger         *slog.Logger
	review         Service
	tokenValidator middleware.TokenValidator
}

// New creates a new review Handler.
func New(review Service, logger *slog.Logger, tokenValidator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:         logger,
		review:         review,
		tokenValidator: tokenValidator,
	}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/admin/verifications", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.tokenValidator, h.logger))
		r.Use(middleware.RequireAdmin(h.logger))
		r.Get("/", h.handleList)
		r.Post("/{id}/approve", h.decisionHandler(h.review.Approve))
		r.Post("/{id}/reject", h.decisionHandler(h.review.Reject))
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	out, err := h.review.List(r.Context(), models.Status(r.URL.Query().Get("status")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if out == nil {
		out = []*models.VerificationRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type decisionBody struct {
	Notes string `json:"notes"`
}

func (h *Handler) decisionHandler(decide func(ctx context.Context, id uuid.UUID, notes string) (*models.VerificationRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requestID(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		var body decisionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
			return
		}

		req, err := decide(r.Context(), id, body.Notes)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, req)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.review.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid request id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}
