package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resource-management-service/internal/core"
	"resource-management-service/internal/platform/logger"

	"github.com/segmentio/kafka-go"
)

// DefaultExportKey is the message key used for bulk export batches.
const DefaultExportKey = "bulk-export"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the producer's connection to the broker.
type Config struct {
	Brokers                []string
	Topic                  string
	ExportKey              string
	BatchTimeout           time.Duration
	AllowAutoTopicCreation bool
}

// Producer publishes resource events to Kafka. Writes are asynchronous: delivery
// results are only observed by the completion callback, which logs them.
type Producer struct {
	writer    messageWriter
	exportKey string
	log       *logger.Logger
}

func NewProducer(cfg Config, log *logger.Logger) *Producer {
	p := &Producer{exportKey: cfg.ExportKey, log: log}
	if p.exportKey == "" {
		p.exportKey = DefaultExportKey
	}

	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{}, // same resource id, same partition
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
		Async:                  true,
		Completion:             p.onCompletion,
	}
	return p
}

func (p *Producer) Publish(ctx context.Context, event core.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.log.Debug("sending resource event", "event_type", event.EventType, "resource_id", event.ResourceID)
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ResourceID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.EventType)},
		},
	})
}

// PublishBatch sends events as consecutive messages of at most batchSize envelopes each.
// A failing batch does not stop the remaining ones; all failures are returned joined.
func (p *Producer) PublishBatch(ctx context.Context, events []core.Event, batchSize int) error {
	batches := core.Batches(events, batchSize)
	p.log.Info("sending bulk export", "total", len(events), "batches", len(batches))

	var errs []error
	for i, batch := range batches {
		value, err := json.Marshal(batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal batch %d: %w", i, err))
			continue
		}

		err = p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(p.exportKey),
			Value: value,
			Headers: []kafka.Header{
				{Key: "eventType", Value: []byte(core.EventResourceExported)},
			},
		})
		if err != nil {
			p.log.Error("failed to send export batch", "batch", i, "size", len(batch), "error", err)
			errs = append(errs, fmt.Errorf("batch %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) onCompletion(messages []kafka.Message, err error) {
	for _, m := range messages {
		if err != nil {
			p.log.Error("failed to deliver message", "key", string(m.Key), "topic", m.Topic, "error", err)
			continue
		}
		p.log.Debug("delivered message", "key", string(m.Key), "partition", m.Partition, "offset", m.Offset)
	}
}

// NoOpProducer discards events. It is used when Kafka is disabled.
type NoOpProducer struct {
	log *logger.Logger
}

func NewNoOpProducer(log *logger.Logger) *NoOpProducer {
	return &NoOpProducer{log: log}
}

func (p *NoOpProducer) Publish(ctx context.Context, event core.Event) error {
	p.log.Debug("kafka disabled, dropping event", "event_type", event.EventType, "resource_id", event.ResourceID)
	return nil
}

func (p *NoOpProducer) PublishBatch(ctx context.Context, events []core.Event, batchSize int) error {
	p.log.Debug("kafka disabled, dropping export", "total", len(events))
	return nil
}

func (p *NoOpProducer) Close() error {
	return nil
}
