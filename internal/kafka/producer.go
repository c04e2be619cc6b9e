package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"journalread/config"
	"journalread/internal/model"
)

type RecordProducer interface {
	Produce(ctx context.Context, docs []model.JournalDocument) error
	Close() error
}

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaRecordProducer struct {
	writer MessageWriter
	topic  string
}

func NewKafkaRecordProducer(lc fx.Lifecycle, cfg *config.Config) (RecordProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		log.Error().Msg("Kafka brokers or topic is not configured.")
		return nil, errors.New("kafka configuration missing")
	}
	p := NewRecordProducer(NewWriter(cfg), cfg.Kafka.Topic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Kafka producer")
			return p.Close()
		},
	})
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka producer initialized")
	return p, nil
}

// writeBatchTimeout bounds how long a synchronous WriteMessages call waits for
// a partition batch to fill.
const writeBatchTimeout = 10 * time.Millisecond

// NewWriter builds a synchronous writer that hashes message keys onto
// partitions.
func NewWriter(cfg *config.Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.Forward.BatchSize,
		BatchTimeout: writeBatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewRecordProducer(writer MessageWriter, topic string) RecordProducer {
	return &kafkaRecordProducer{writer: writer, topic: topic}
}

// Produce writes one message per document, keyed by unit so that records of
// a unit stay in one partition.
func (p *kafkaRecordProducer) Produce(ctx context.Context, docs []model.JournalDocument) error {
	if len(docs) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(docs))

	for _, doc := range docs {
		value, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal journal document for Kafka: %w", err)
		}
		msg := kafka.Message{Value: value}
		if doc.Unit != "" {
			msg.Key = []byte(doc.Unit)
		}
		messages = append(messages, msg)
	}

	err := p.writer.WriteMessages(ctx, messages...)
	if err != nil {
		log.Error().Err(err).Int("message_count", len(messages)).Msg("Failed to write messages to Kafka")
		return fmt.Errorf("failed to write to kafka topic %s: %w", p.topic, err)
	}

	log.Debug().Int("message_count", len(messages)).Str("topic", p.topic).Msg("Successfully produced messages to Kafka")
	return nil
}

func (p *kafkaRecordProducer) Close() error {
	return p.writer.Close()
}
