package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "storecred/pkg/domain-errors"
)

// Status is the lifecycle state of a verification request. Transitions are
// pending → approved or pending → rejected only; terminal states never
// revert.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the request has been decided.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// GPS is the coordinate pair extracted from EXIF tags. Source records where
// the fix came from; "exif" is the only producer today.
type GPS struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Source string  `json:"source"`
}

// VerificationRequest is one employment-verification claim. Claim metadata
// is immutable after creation; enrichment fields are set only by the storage
// event processor; decision fields only by the review service. The json
// field names are the wire contract shared with the admin and claimant UIs.
type VerificationRequest struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	UserEmail string    `json:"userEmail"`
	UserName  string    `json:"userName"`
	StoreName string    `json:"storeName"`

	PhotoURL         string `json:"photoURL,omitempty"`
	PhotoRedactedURL string `json:"photoRedactedUrl,omitempty"`

	// VerificationCode is a daily rotating human-written audit string. It is
	// not a security control and is never verified server-side.
	VerificationCode string `json:"verificationCode"`
	BrandCode        string `json:"brandCode,omitempty"`
	SelectedBrand    string `json:"selectedBrand,omitempty"`

	GPS    *GPS `json:"gps,omitempty"`
	HasGPS bool `json:"hasGps"`

	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	AdminNotes  string     `json:"adminNotes,omitempty"`

	ExifParsedAt *time.Time `json:"exifParsedAt,omitempty"`
}

// Enrichment is the merge payload the storage event processor writes onto a
// matched request. Stores apply it with merge semantics: only these fields
// change, and re-applying the same payload is a no-op.
type Enrichment struct {
	GPS              *GPS
	HasGPS           bool
	PhotoRedactedURL string
	ExifParsedAt     time.Time
}

// MaxUploadBytes is the hard cap on claim images, checked before any write.
const MaxUploadBytes = 10 << 20

// Claim is a submission attempt. Image is optional; when present ImageType
// and ImageSize describe it before upload so validation fails fast.
type Claim struct {
	UserID    string
	UserEmail string
	UserName  string
	StoreName string

	Image     []byte
	ImageType string // MIME type as declared by the client

	SelectedBrand string
	BrandCode     string
}

// HasPhoto reports whether the claim carries an image.
func (c *Claim) HasPhoto() bool {
	return len(c.Image) > 0
}

// HasCode reports whether the claim carries the brand-code method.
func (c *Claim) HasCode() bool {
	return strings.TrimSpace(c.SelectedBrand) != "" && strings.TrimSpace(c.BrandCode) != ""
}

// Validate enforces the pre-write constraints: at least one method, image
// MIME type, and size cap. All violations are CodeValidation so they reach
// the claimant synchronously and block every write.
func (c *Claim) Validate(maxUploadBytes int64) error {
	if c.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if !c.HasPhoto() && !c.HasCode() {
		return dErrors.New(dErrors.CodeValidation, "provide a photo or a brand code")
	}
	if c.HasPhoto() {
		if !strings.HasPrefix(c.ImageType, "image/") {
			return dErrors.Newf(dErrors.CodeValidation, "unsupported file type %q", c.ImageType)
		}
		if int64(len(c.Image)) > maxUploadBytes {
			return dErrors.Newf(dErrors.CodeValidation, "image exceeds %d byte limit", maxUploadBytes)
		}
	}
	return nil
}

// DailyCode computes the rotating audit code for the given day. The format
// encodes day and month; staff write it on the photographed note. It carries
// no access-control weight.
func DailyCode(t time.Time) string {
	return fmt.Sprintf("SC-%02d%02d", t.Day(), int(t.Month()))
}
