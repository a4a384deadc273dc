package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// FinalizeHandler consumes finalize events. The enrichment processor is the
// one production implementation.
type FinalizeHandler interface {
	HandleFinalize(ctx context.Context, event FinalizeEvent) error
}

// ChannelEmitter decouples uploads from enrichment inside a single process:
// Finalize enqueues, Run drains into the handler. Delivery is at-least-once
// from the handler's point of view because Run retries nothing and the
// handler is idempotent anyway.
type ChannelEmitter struct {
	events  chan FinalizeEvent
	handler FinalizeHandler
	logger  *slog.Logger
}

// NewChannelEmitter builds an emitter with a buffered inbox.
func NewChannelEmitter(handler FinalizeHandler, buffer int, logger *slog.Logger) *ChannelEmitter {
	return &ChannelEmitter{
		events:  make(chan FinalizeEvent, buffer),
		handler: handler,
		logger:  logger,
	}
}

// Finalize enqueues the event, blocking when the inbox is full.
func (e *ChannelEmitter) Finalize(ctx context.Context, event FinalizeEvent) error {
	select {
	case e.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events until ctx is cancelled. Handler errors are logged and
// the event dropped; enrichment failure never surfaces to the uploader.
func (e *ChannelEmitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-e.events:
			if err := e.handler.HandleFinalize(ctx, event); err != nil {
				e.logger.ErrorContext(ctx, "finalize handler failed",
					"object", event.Name,
					"error", err,
				)
			}
		}
	}
}

// Producer is the slice of the Kafka producer the emitter needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaEmitter publishes finalize events to a topic, keyed by object path
// so redeliveries of the same object land on the same partition.
type KafkaEmitter struct {
	producer Producer
	topic    string
}

// NewKafkaEmitter builds an emitter over the shared producer.
func NewKafkaEmitter(producer Producer, topic string) *KafkaEmitter {
	return &KafkaEmitter{producer: producer, topic: topic}
}

// Finalize publishes the event.
func (e *KafkaEmitter) Finalize(ctx context.Context, event FinalizeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal finalize event: %w", err)
	}
	return e.producer.Produce(ctx, e.topic, []byte(event.Name), payload)
}
