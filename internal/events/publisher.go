// Package events publishes dialogue events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-dialogue-service/internal/models"
	"voice-dialogue-service/internal/observability/metrics"
	"voice-dialogue-service/internal/schema"
)

// Publisher publishes final transcripts and completed turns to separate Kafka topics.
type Publisher struct {
	writerTranscripts *kafka.Writer
	writerTurns       *kafka.Writer
	principal         string
	topicTranscripts  string
	topicTurns        string
	enabled           bool
	validator         *schema.Validator
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTranscripts string
	TopicTurns       string
	Principal        string
	Enabled          bool
}

// New creates a Kafka event publisher. A nil or disabled config yields a
// publisher that only logs.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{validator: v, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicTranscripts: cfg.TopicTranscripts,
			topicTurns:       cfg.TopicTurns,
			validator:        v,
			metrics:          m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("topicTurns", cfg.TopicTurns).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTranscripts: newWriter(cfg.Brokers, cfg.TopicTranscripts, transport),
		writerTurns:       newWriter(cfg.Brokers, cfg.TopicTurns, transport),
		principal:         cfg.Principal,
		topicTranscripts:  cfg.TopicTranscripts,
		topicTurns:        cfg.TopicTurns,
		enabled:           true,
		validator:         v,
		metrics:           m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishTranscript publishes a final transcript keyed by session id.
func (p *Publisher) PublishTranscript(ctx context.Context, ev models.TranscriptFinal) error {
	if err := p.validator.Validate(ev); err != nil {
		return err
	}
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, ev.EventType, ev.SessionID, ev)
}

// PublishTurn publishes a completed turn keyed by session id.
func (p *Publisher) PublishTurn(ctx context.Context, ev models.DialogueTurn) error {
	if err := p.validator.Validate(ev); err != nil {
		return err
	}
	return p.publish(ctx, p.writerTurns, p.topicTurns, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTranscripts != nil {
		if e := p.writerTranscripts.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcripts writer")
			err = e
		}
	}
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	return err
}
