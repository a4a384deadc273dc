// Package consumer provides a Kafka group consumer with manual commits.
// Records are committed only after the handler returns nil, giving
// at-least-once delivery; handlers must be idempotent.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"storecred/internal/platform/config"
)

// Message is the transport-independent view of a consumed record that
// handlers receive.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes a single message. Returning an error leaves the record
// uncommitted so it is redelivered.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

const (
	defaultHandleAttempts = 5
	defaultHandleBackoff  = 500 * time.Millisecond
)

// Consumer polls a consumer group and dispatches records to a handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger

	attempts int
	backoff  time.Duration
	sleep    func(context.Context, time.Duration) error
}

// New joins the configured group on the given topics.
func New(cfg config.Kafka, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}
	return &Consumer{
		client:   client,
		handler:  handler,
		logger:   logger,
		attempts: defaultHandleAttempts,
		backoff:  defaultHandleBackoff,
		sleep:    sleepContext,
	}, nil
}

// Run polls until ctx is cancelled. A failing record is retried in place:
// once polled, franz-go will not re-return it in this session, so skipping
// ahead would let a later commit advance the group offset past it. If the
// retries exhaust, Run commits the records handled so far and returns the
// error; the group offset still points at the failed record, and the next
// session resumes from it.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var recs []*kgo.Record
		iter := fetches.RecordIter()
		for !iter.Done() {
			recs = append(recs, iter.Next())
		}
		done, err := c.process(ctx, recs)
		if len(done) > 0 {
			if cErr := c.client.CommitRecords(ctx, done...); cErr != nil {
				c.logger.ErrorContext(ctx, "commit failed", "error", cErr)
			}
		}
		if err != nil {
			return err
		}
	}
}

// process handles records in order, stopping at the first record whose
// retries exhaust. It returns the prefix that succeeded, safe to commit.
func (c *Consumer) process(ctx context.Context, recs []*kgo.Record) ([]*kgo.Record, error) {
	var done []*kgo.Record
	for _, rec := range recs {
		msg := &Message{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
			Key:       rec.Key,
			Value:     rec.Value,
			Timestamp: rec.Timestamp,
		}
		if err := c.handleWithRetry(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "handler failed, stopping at uncommitted record",
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"error", err,
			)
			return done, fmt.Errorf("handle %s[%d]@%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
		}
		done = append(done, rec)
	}
	return done, nil
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg *Message) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = c.handler.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt < c.attempts {
			c.logger.WarnContext(ctx, "handler error, retrying record",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempt", attempt,
				"error", err,
			)
			if sErr := c.sleep(ctx, time.Duration(attempt)*c.backoff); sErr != nil {
				return sErr
			}
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
