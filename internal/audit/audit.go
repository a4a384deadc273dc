// Package audit records who did what to a verification claim. Events are
// appended to an outbox in the same transaction as the state change they
// describe; a relay drains the outbox to the audit topic so a broker outage
// never blocks or loses a decision.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storecred/pkg/requestcontext"
)

// Action identifies the audited operation.
type Action string

const (
	ActionSubmitted Action = "verification_submitted"
	ActionApproved  Action = "verification_approved"
	ActionRejected  Action = "verification_rejected"
	ActionDeleted   Action = "verification_deleted"
)

// Event is one audit record. SubjectID is the claimant whose record changed;
// ActorID is whoever triggered the change (the claimant on submit, the
// reviewing admin on decisions).
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Action     Action            `json:"action"`
	ActorID    string            `json:"actorId"`
	SubjectID  string            `json:"subjectId"`
	RequestID  uuid.UUID         `json:"requestId"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Publisher is what services emit events through.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Store is the outbox. Append participates in any transaction carried by the
// context; the relay calls the other two outside of one.
type Store interface {
	Append(ctx context.Context, event Event) error
	FetchUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// OutboxPublisher stamps and appends events to the outbox.
type OutboxPublisher struct {
	store Store
}

func NewOutboxPublisher(store Store) *OutboxPublisher {
	return &OutboxPublisher{store: store}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.UserID(ctx)
	}
	return p.store.Append(ctx, event)
}

// Nop discards events. Used when auditing is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
