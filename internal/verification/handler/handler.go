// Package handler exposes the claimant-facing verification endpoints.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storecred/internal/platform/middleware"
	"storecred/internal/verification/models"
	"storecred/internal/verification/service"
	dErrors "storecred/pkg/domain-errors"
	"storecred/pkg/platform/httputil"
	"storecred/pkg/requestcontext"
)

// formOverheadBytes is the request-size headroom over the image cap for
// multipart boundaries, part headers and the text form fields.
const formOverheadBytes = 64 * 1024

// Service defines the submission operations the handler fronts.
type Service interface {
	Submit(ctx context.Context, claim models.Claim) (*models.VerificationRequest, error)
	Current(ctx context.Context, userID string) (*service.Overview, error)
}

// Handler handles claimant verification endpoints.
type Handler struct {
	logger         *slog.Logger
	verification   Service
	tokenValidator middleware.TokenValidator
	maxUploadBytes int64
}

// New creates a new verification Handler.
func New(verification Service, logger *slog.Logger, tokenValidator middleware.TokenValidator, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = models.MaxUploadBytes
	}
	return &Handler{
		logger:         logger,
		verification:   verification,
		tokenValidator: tokenValidator,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register registers the claimant routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/verification", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.tokenValidator, h.logger))
		r.Post("/", h.handleSubmit)
		r.Get("/me", h.handleCurrent)
	})
}

// handleSubmit accepts a multipart claim: an optional "photo" file plus the
// storeName, selectedBrand and brandCode form fields. The claimant identity
// comes from the token, never from the form.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The headroom covers multipart boundaries, part headers and the
	// non-file form fields around a cap-sized photo; the service enforces
	// the exact image cap.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed multipart request"))
		return
	}

	claim := models.Claim{
		UserID:        requestcontext.UserID(ctx),
		UserEmail:     requestcontext.UserEmail(ctx),
		UserName:      requestcontext.UserName(ctx),
		StoreName:     r.FormValue("storeName"),
		SelectedBrand: r.FormValue("selectedBrand"),
		BrandCode:     r.FormValue("brandCode"),
	}

	file, header, err := r.FormFile("photo")
	switch err {
	case nil:
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			httputil.WriteError(w, dErrors.Wrap(readErr, dErrors.CodeBadRequest, "read photo upload"))
			return
		}
		claim.Image = data
		claim.ImageType = header.Header.Get("Content-Type")
	case http.ErrMissingFile:
		// Brand-code only claims are valid without an upload.
	default:
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "read photo upload"))
		return
	}

	req, err := h.verification.Submit(ctx, claim)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overview, err := h.verification.Current(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}
