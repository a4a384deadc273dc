package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecred/pkg/requestcontext"
)

func TestOutboxPublisherStampsEvents(t *testing.T) {
	now := time.Date(2026, time.July, 4, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithUserID(ctx, "admin-1")

	store := NewInMemory()
	pub := NewOutboxPublisher(store)

	require.NoError(t, pub.Publish(ctx, Event{
		Action:    ActionApproved,
		SubjectID: "user-1",
		RequestID: uuid.New(),
	}))

	events := store.Events()
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.Equal(t, "admin-1", events[0].ActorID)
	assert.Equal(t, now, events[0].OccurredAt)
}

type recordingProducer struct {
	topics []string
	keys   []string
	failAt int // produce call index to fail on, -1 for never
	calls  int
}

func (p *recordingProducer) Produce(_ context.Context, topic string, key, _ []byte) error {
	p.calls++
	if p.failAt >= 0 && p.calls == p.failAt {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	return nil
}

func TestRelayDrain(t *testing.T) {
	ctx := context.Background()

	appendEvent := func(t *testing.T, store *InMemory, subject string) uuid.UUID {
		t.Helper()
		id := uuid.New()
		require.NoError(t, store.Append(ctx, Event{
			ID: id, Action: ActionSubmitted, SubjectID: subject, OccurredAt: time.Now(),
		}))
		return id
	}

	t.Run("publishes and marks a batch", func(t *testing.T) {
		store := NewInMemory()
		appendEvent(t, store, "user-1")
		appendEvent(t, store, "user-2")

		producer := &recordingProducer{failAt: -1}
		relay := NewRelay(store, producer, "audit.events", nil)
		require.NoError(t, relay.Drain(ctx))

		assert.Equal(t, []string{"audit.events", "audit.events"}, producer.topics)
		assert.Equal(t, []string{"user-1", "user-2"}, producer.keys)

		left, err := store.FetchUnpublished(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("a produce failure leaves the tail for the next tick", func(t *testing.T) {
		store := NewInMemory()
		appendEvent(t, store, "user-1")
		second := appendEvent(t, store, "user-2")

		producer := &recordingProducer{failAt: 2}
		relay := NewRelay(store, producer, "audit.events", nil)
		require.Error(t, relay.Drain(ctx))

		left, err := store.FetchUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, second, left[0].ID)

		producer.failAt = -1
		require.NoError(t, relay.Drain(ctx))
		left, err = store.FetchUnpublished(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		producer := &recordingProducer{failAt: -1}
		relay := NewRelay(NewInMemory(), producer, "audit.events", nil)
		require.NoError(t, relay.Drain(ctx))
		assert.Zero(t, producer.calls)
	})
}
