package processor

import (
	"context"
	"encoding/json"
	"log/slog"

	"storecred/internal/objectstore"
	"storecred/internal/platform/kafka/consumer"
)

// FinalizeConsumer adapts the processor onto the Kafka consumer loop,
// decoding finalize events from the storage topic.
type FinalizeConsumer struct {
	processor *Processor
	log       *slog.Logger
}

func NewFinalizeConsumer(p *Processor, log *slog.Logger) *FinalizeConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &FinalizeConsumer{processor: p, log: log}
}

func (c *FinalizeConsumer) Handle(ctx context.Context, msg *consumer.Message) error {
	var event objectstore.FinalizeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// A poison message never becomes parseable; log and acknowledge.
		c.log.ErrorContext(ctx, "undecodable finalize event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	return c.processor.HandleFinalize(ctx, event)
}
