package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
	"github.com/DeafMist/api-directory/internal/processing"
)

// RecordMessage is the payload published for every record of a refreshed snapshot.
type RecordMessage struct {
	Record    models.APIRecord `json:"record"`
	Position  int              `json:"position"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// MessageWriter is the subset of kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher fans a dataset out onto a Kafka topic, one message per record.
type Publisher struct {
	w         MessageWriter
	batchSize int
	log       *slog.Logger
}

// NewWriter builds the kafka writer used in production.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewPublisher wraps w. batchSize bounds how many messages go into one write.
func NewPublisher(w MessageWriter, batchSize int, log *slog.Logger) *Publisher {
	if batchSize <= 0 {
		batchSize = 500
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{w: w, batchSize: batchSize, log: log}
}

// Encode builds the kafka message for a record, keyed by its document id.
func Encode(rec models.APIRecord, position int, fetchedAt time.Time) (kafka.Message, error) {
	payload, err := json.Marshal(RecordMessage{Record: rec, Position: position, FetchedAt: fetchedAt.UTC()})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal record %q: %w", rec.Name, err)
	}
	return kafka.Message{
		Key:   []byte(processing.BuildDocumentID(rec)),
		Value: payload,
	}, nil
}

// Decode parses a message produced by Encode.
func Decode(msg kafka.Message) (RecordMessage, error) {
	var out RecordMessage
	if err := json.Unmarshal(msg.Value, &out); err != nil {
		return RecordMessage{}, fmt.Errorf("decode record message: %w", err)
	}
	return out, nil
}

// PublishDataset writes every record of ds and returns how many were published.
func (p *Publisher) PublishDataset(ctx context.Context, ds *models.Dataset) (int, error) {
	batch := make([]kafka.Message, 0, p.batchSize)
	published := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.w.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("write messages: %w", err)
		}
		published += len(batch)
		batch = batch[:0]
		return nil
	}

	for pos, rec := range ds.Records {
		if rec.Name == "" {
			p.log.Warn("skipping record without name", slog.Int("position", pos))
			continue
		}
		msg, err := Encode(rec, pos, ds.FetchedAt)
		if err != nil {
			return published, err
		}
		batch = append(batch, msg)
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return published, err
			}
		}
	}
	if err := flush(); err != nil {
		return published, err
	}

	p.log.Info("published dataset", slog.Int("records", published), slog.Time("fetched_at", ds.FetchedAt))
	return published, nil
}
