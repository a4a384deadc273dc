// Package objectstore abstracts the binary store holding raw uploads and
// redacted derivatives. Implementations emit a finalize event per completed
// upload; the enrichment pipeline consumes those events independently of
// the request that triggered the write.
package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Storage layout shared with every collaborator. Raw uploads are private;
// the redacted derivative is reachable through a token-bearing URL.
const (
	VerificationPrefix = "verification/"
	RedactedPrefix     = "verification-redacted/"
)

// Object is one stored blob. AccessToken is set for derivatives retrieved
// via the ?alt=media&token= URL convention, empty for private objects.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
	AccessToken string
}

// Info describes a stored object without its payload.
type Info struct {
	Path        string
	ContentType string
	Size        int64
	AccessToken string
}

// FinalizeEvent is the descriptor the store emits once per completed
// upload. Name is the full object path; consumers must early-return for
// paths outside their prefix.
type FinalizeEvent struct {
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	FinalizedAt time.Time `json:"finalizedAt"`
}

// Store is the binary storage contract. Interface-driven so the memory
// implementation carries tests and local runs without a cloud backend.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, path string) (Object, error)
	Stat(ctx context.Context, path string) (Info, error)
	Delete(ctx context.Context, path string) error
}

// Emitter receives the finalize event for a completed upload.
type Emitter interface {
	Finalize(ctx context.Context, event FinalizeEvent) error
}

// UploadPath builds the raw-object path for a claimant upload.
func UploadPath(userID string, submittedAt time.Time) string {
	return fmt.Sprintf("%s%s/%d_verification.jpg", VerificationPrefix, userID, submittedAt.UnixMilli())
}

// RedactedPath maps a raw path to its parallel redacted path.
func RedactedPath(rawPath string) string {
	return RedactedPrefix + strings.TrimPrefix(rawPath, VerificationPrefix)
}

// UserIDFromPath extracts the {userId} segment from an object path under
// either prefix. The fuzzy matcher's only reliable input.
func UserIDFromPath(path string) (string, error) {
	rest := path
	switch {
	case strings.HasPrefix(path, VerificationPrefix):
		rest = strings.TrimPrefix(path, VerificationPrefix)
	case strings.HasPrefix(path, RedactedPrefix):
		rest = strings.TrimPrefix(path, RedactedPrefix)
	default:
		return "", fmt.Errorf("path %q is not under a verification prefix", path)
	}
	userID, _, ok := strings.Cut(rest, "/")
	if !ok || userID == "" {
		return "", fmt.Errorf("path %q has no user segment", path)
	}
	return userID, nil
}

// TokenURL renders the token-gated retrieval URL for a derivative.
func TokenURL(path, token string) string {
	return path + "?alt=media&token=" + token
}
