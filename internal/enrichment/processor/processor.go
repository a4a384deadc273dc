// Package processor consumes storage finalize events and enriches the
// matched verification request: extracts a GPS fix from EXIF, writes a
// metadata-stripped derivative, and merges both onto the record. Events are
// delivered at least once; every step is written to tolerate replays.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"storecred/internal/enrichment/exif"
	"storecred/internal/enrichment/matcher"
	"storecred/internal/objectstore"
	"storecred/internal/platform/metrics"
	"storecred/internal/verification/models"
	"storecred/pkg/platform/sentinel"
	"storecred/pkg/requestcontext"
)

// RequestEnricher is the slice of the request store the processor writes to.
type RequestEnricher interface {
	MergeEnrichment(ctx context.Context, id uuid.UUID, e models.Enrichment) error
}

// Processor handles finalize events for raw verification uploads.
type Processor struct {
	objects  objectstore.Store
	requests RequestEnricher
	match    matcher.Matcher

	marker   Marker
	log      *slog.Logger
	metrics  *metrics.Metrics
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures optional collaborators.
type Option func(*Processor)

func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) { p.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithMarker enables cross-process replay suppression, typically backed by
// Redis. Without it the store-level merge semantics alone keep replays safe.
func WithMarker(m Marker) Option {
	return func(p *Processor) { p.marker = m }
}

// WithRetry tunes the bounded wait for the event-before-record race.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

func New(objects objectstore.Store, requests RequestEnricher, match matcher.Matcher, opts ...Option) *Processor {
	p := &Processor{
		objects:  objects,
		requests: requests,
		match:    match,
		log:      slog.Default(),
		attempts: 5,
		backoff:  200 * time.Millisecond,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleFinalize runs one enrichment pass. Returning nil acknowledges the
// event; only errors worth redelivering propagate.
func (p *Processor) HandleFinalize(ctx context.Context, event objectstore.FinalizeEvent) error {
	if !strings.HasPrefix(event.Name, objectstore.VerificationPrefix) {
		p.skip("foreign_prefix")
		return nil
	}

	userID, err := objectstore.UserIDFromPath(event.Name)
	if err != nil {
		p.skip("malformed_path")
		p.log.WarnContext(ctx, "finalize event with malformed path", "path", event.Name, "error", err)
		return nil
	}

	if p.marker != nil {
		first, err := p.marker.SetIfAbsent(ctx, markerKey(event.Name))
		if err != nil {
			return fmt.Errorf("idempotency marker for %s: %w", event.Name, err)
		}
		if !first {
			p.skip("duplicate")
			return nil
		}
	}

	err = p.enrich(ctx, event, userID)
	if err != nil && p.marker != nil {
		// Release the marker so a redelivery can retry the whole pass.
		if clearErr := p.marker.Clear(ctx, markerKey(event.Name)); clearErr != nil {
			p.log.ErrorContext(ctx, "failed to clear idempotency marker",
				"path", event.Name, "error", clearErr)
		}
	}
	return err
}

func (p *Processor) enrich(ctx context.Context, event objectstore.FinalizeEvent, userID string) error {
	start := time.Now()

	raw, err := p.objects.Get(ctx, event.Name)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", event.Name, err)
	}

	var (
		loc        *exif.Location
		redacted   []byte
		redactedCT string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A photo without EXIF is a normal submission, not a failure.
		l, exifErr := exif.ExtractGPS(raw.Data)
		if exifErr != nil {
			p.log.DebugContext(gctx, "no gps fix in upload", "path", event.Name, "error", exifErr)
			return nil
		}
		loc = l
		return nil
	})
	g.Go(func() error {
		data, ct, redactErr := exif.Redact(raw.Data, raw.ContentType)
		if redactErr != nil {
			return fmt.Errorf("redact %s: %w", event.Name, redactErr)
		}
		redacted, redactedCT = data, ct
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	redactedPath := objectstore.RedactedPath(event.Name)
	token, err := p.derivativeToken(ctx, redactedPath)
	if err != nil {
		return err
	}
	if err := p.objects.Put(ctx, objectstore.Object{
		Path:        redactedPath,
		ContentType: redactedCT,
		Data:        redacted,
		AccessToken: token,
	}); err != nil {
		return fmt.Errorf("store redacted %s: %w", redactedPath, err)
	}

	requestID, err := p.matchWithRetry(ctx, userID, event.Name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			p.skip("no_matching_record")
			p.log.WarnContext(ctx, "no pending record found for upload",
				"user_id", userID, "path", event.Name)
			return nil
		}
		return err
	}

	enrichment := models.Enrichment{
		HasGPS:           loc != nil,
		PhotoRedactedURL: objectstore.TokenURL(redactedPath, token),
		ExifParsedAt:     requestcontext.Now(ctx),
	}
	if loc != nil {
		enrichment.GPS = &models.GPS{Lat: loc.Lat, Lng: loc.Lng, Source: "exif"}
	}
	if err := p.requests.MergeEnrichment(ctx, requestID, enrichment); err != nil {
		return fmt.Errorf("merge enrichment onto %s: %w", requestID, err)
	}

	if p.metrics != nil {
		p.metrics.EnrichmentProcessedTotal.Inc()
		p.metrics.EnrichmentDurationSeconds.Observe(time.Since(start).Seconds())
	}
	p.log.InfoContext(ctx, "enriched verification request",
		"request_id", requestID, "user_id", userID, "has_gps", loc != nil)
	return nil
}

// derivativeToken reuses the token of an existing derivative so a replay
// does not invalidate a URL already written onto the record.
func (p *Processor) derivativeToken(ctx context.Context, redactedPath string) (string, error) {
	info, err := p.objects.Stat(ctx, redactedPath)
	if err == nil && info.AccessToken != "" {
		return info.AccessToken, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return "", fmt.Errorf("stat %s: %w", redactedPath, err)
	}
	return objectstore.NewAccessToken()
}

// matchWithRetry tolerates the upload finalizing before the record row is
// visible. Linear backoff, bounded by the configured attempt budget.
func (p *Processor) matchWithRetry(ctx context.Context, userID, objectPath string) (uuid.UUID, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		id, err := p.match.FindCandidate(ctx, userID, objectPath)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return uuid.Nil, err
		}
		lastErr = err
		if attempt < p.attempts {
			if err := p.sleep(ctx, time.Duration(attempt)*p.backoff); err != nil {
				return uuid.Nil, err
			}
		}
	}
	return uuid.Nil, lastErr
}

func (p *Processor) skip(reason string) {
	if p.metrics != nil {
		p.metrics.EnrichmentSkippedTotal.WithLabelValues(reason).Inc()
	}
}

func markerKey(objectPath string) string {
	return "enrich:" + objectPath
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
