// Package kafka publishes newly inserted disaster events to a Kafka topic so
// downstream consumers see the same stream as websocket subscribers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/isdelr/disaster-tracker-be/internal/config"
	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/observability"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per new event.
// It implements ingest.Notifier.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
}

// NewPublisher creates an asynchronous producer for the configured topic.
// Delivery failures are logged and counted, never returned to the caller.
func NewPublisher(cfg config.KafkaConfig, metrics *observability.Metrics) *Publisher {
	p := &Publisher{metrics: metrics}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		WriteTimeout: writeTimeout,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

// Notify serializes ev and hands it to the writer without blocking.
func (p *Publisher) Notify(ev models.Event) {
	msg, err := serializeToMessage(ev)
	if err != nil {
		p.metrics.FanoutDropped.WithLabelValues("kafka").Inc()
		log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to serialize event for Kafka")
		return
	}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.metrics.FanoutDropped.WithLabelValues("kafka").Inc()
		log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to publish event to Kafka")
	}
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) completed(msgs []kafkago.Message, err error) {
	if err == nil {
		return
	}
	p.metrics.FanoutDropped.WithLabelValues("kafka").Add(float64(len(msgs)))
	log.Error().Err(err).Int("messages", len(msgs)).Msg("Kafka delivery failed")
}

// serializeToMessage marshals an Event into a Kafka message keyed by its ID.
func serializeToMessage(ev models.Event) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "source", Value: []byte(ev.Source)},
			{Key: "severity", Value: []byte(ev.Severity)},
		},
	}, nil
}
