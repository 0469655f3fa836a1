package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/api-directory/internal/config"
	"github.com/DeafMist/api-directory/internal/dedupe"
	"github.com/DeafMist/api-directory/internal/elasticsearch"
	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
	"github.com/DeafMist/api-directory/internal/processing"
	"github.com/DeafMist/api-directory/internal/stream"
)

type apiIndexer interface {
	IndexAPI(ctx context.Context, doc models.APIDocument) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// seenKey scopes deduplication to one snapshot so a refreshed record is reindexed with its new fetched_at.
type seenKey struct {
	id        string
	fetchedAt int64
}

var errMissingName = errors.New("record without name")

func main() {
	log := logger.New("worker")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache[seenKey](cfg.DedupeCapacity, cfg.DedupeTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Commit only after the DLQ accepted the message; otherwise it is reprocessed on restart.
			if !deadLetter(ctx, log, dlqWriter, msg, err, time.Second) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
			if err := reader.CommitMessages(ctx, msg); err != nil {
				log.Error("commit failed message to dlq", slog.Any("err", err))
			}
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// deadLetter writes msg with failure headers to w, retrying with exponential backoff.
func deadLetter(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, baseBackoff time.Duration) bool {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := 0; attempt < 5; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := baseBackoff * time.Duration(1<<uint(attempt))
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

func processMessage(ctx context.Context, log *slog.Logger, indexer apiIndexer, cache *dedupe.Cache[seenKey], cfg *config.Worker, msg kafka.Message) error {
	payload, err := stream.Decode(msg)
	if err != nil {
		return err
	}

	rec := payload.Record
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return errMissingName
	}

	fetchedAt := payload.FetchedAt.UTC()
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	doc := buildDocument(rec, payload.Position, fetchedAt, cfg)
	key := seenKey{id: doc.ID, fetchedAt: fetchedAt.UnixNano()}
	if cache.IsSeen(key) {
		log.Debug("duplicate record", slog.String("id", doc.ID), slog.String("name", doc.Name))
		return nil
	}

	if err := indexer.IndexAPI(ctx, doc); err != nil {
		return err
	}

	cache.MarkSeen(key)
	log.Info("indexed api", slog.String("id", doc.ID), slog.String("name", doc.Name))
	return nil
}

func buildDocument(rec models.APIRecord, position int, fetchedAt time.Time, cfg *config.Worker) models.APIDocument {
	projected := models.Project(rec, 0)

	description := strings.TrimSpace(rec.Description)
	corpus := rec.Name + " " + processing.CleanText(description) + " " + strings.Join(projected.Categories, " ")

	return models.APIDocument{
		ID:          processing.BuildDocumentID(rec),
		Name:        rec.Name,
		Description: description,
		URL:         strings.TrimSpace(rec.URL),
		Categories:  projected.Categories,
		HTTPS:       projected.HTTPS,
		Auth:        projected.Auth,
		CORS:        projected.CORS,
		Keywords:    processing.ExtractKeywords(corpus, cfg.KeywordLimit, cfg.KeywordMinLength),
		Position:    position,
		FetchedAt:   fetchedAt,
	}
}
