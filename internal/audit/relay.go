package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	relayBatchSize = 100
	relayInterval  = 2 * time.Second
)

// Producer is the broker surface the relay needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay drains the outbox to the audit topic. Publishing is at-least-once:
// a crash between produce and mark republishes the batch, so consumers key
// on the event id.
type Relay struct {
	store    Store
	producer Producer
	topic    string
	log      *slog.Logger

	interval time.Duration
	batch    int
}

func NewRelay(store Store, producer Producer, topic string, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		store:    store,
		producer: producer,
		topic:    topic,
		log:      log,
		interval: relayInterval,
		batch:    relayBatchSize,
	}
}

// Run drains on a fixed cadence until the context is cancelled. Drain
// failures are logged and retried on the next tick rather than stopping the
// loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.log.ErrorContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of unpublished events.
func (r *Relay) Drain(ctx context.Context) error {
	events, err := r.store.FetchUnpublished(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal audit event %s: %w", event.ID, err)
		}
		if err := r.producer.Produce(ctx, r.topic, []byte(event.SubjectID), value); err != nil {
			// Mark what made it out; the rest stays for the next tick.
			if markErr := r.store.MarkPublished(ctx, ids); markErr != nil {
				r.log.ErrorContext(ctx, "failed to mark published audit events", "error", markErr)
			}
			return err
		}
		ids = append(ids, event.ID)
	}
	return r.store.MarkPublished(ctx, ids)
}
