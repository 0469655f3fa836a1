package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/api-directory/internal/config"
	"github.com/DeafMist/api-directory/internal/elasticsearch"
	"github.com/DeafMist/api-directory/internal/fetcher"
	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
	"github.com/DeafMist/api-directory/internal/snapshot"
	"github.com/DeafMist/api-directory/internal/stream"
)

type datasetRefresher interface {
	Refresh(ctx context.Context) (*models.Dataset, error)
}

type datasetPublisher interface {
	PublishDataset(ctx context.Context, ds *models.Dataset) (int, error)
}

type indexPruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

type job struct {
	log       *slog.Logger
	cfg       *config.Refresher
	cache     datasetRefresher
	publisher datasetPublisher
	pruner    indexPruner
}

func main() {
	log := logger.New("refresher")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadRefresher()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := fetcher.New(fetcher.Config{
		APIURL:  cfg.GitHubAPIURL,
		Token:   cfg.GitHubToken,
		Owner:   cfg.DatasetOwner,
		Repo:    cfg.DatasetRepo,
		Dir:     cfg.DatasetDir,
		Timeout: cfg.FetchTimeout,
	}, log.With(slog.String("component", "fetcher")))

	j := &job{
		log: log,
		cfg: cfg,
		cache: snapshot.New(client, snapshot.Options{
			Path:       cfg.CacheFile,
			Resource:   cfg.DatasetResource,
			TTL:        cfg.CacheTTL,
			ServeStale: cfg.CacheServeStale,
		}, log.With(slog.String("component", "snapshot"))),
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := stream.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer writer.Close()
		j.publisher = stream.NewPublisher(writer, 100, log.With(slog.String("component", "stream")))
	}

	if cfg.Prune {
		esClient := connectElasticsearch(ctx, log, cfg)
		if esClient == nil {
			log.Error("failed to connect to elasticsearch after retries")
			os.Exit(1)
		}
		j.pruner = esClient
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("refresher running",
		slog.Duration("interval", cfg.Interval),
		slog.Bool("publish", j.publisher != nil),
		slog.Bool("prune", j.pruner != nil),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// Run immediately on start; failures are retried on the next tick.
	j.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// connectElasticsearch retries with exponential backoff and returns nil when it gives up.
func connectElasticsearch(ctx context.Context, log *slog.Logger, cfg *config.Refresher) *elasticsearch.Client {
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Warn("failed to create elasticsearch client, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pingErr := esClient.Ping(pingCtx)
			cancel()
			if pingErr == nil {
				log.Info("connected to elasticsearch")
				return esClient
			}
			log.Warn("elasticsearch ping failed, retrying",
				slog.Any("err", pingErr),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_in", retryDelay),
			)
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			log.Info("shutdown signal received during startup")
			os.Exit(0)
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil
}

func (j *job) runOnce(ctx context.Context) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	ds, err := j.cache.Refresh(subCtx)
	if err != nil {
		j.log.Warn("refresh failed (will retry on next interval)", slog.Any("err", err))
	} else {
		j.log.Info("snapshot refreshed",
			slog.Int("records", len(ds.Records)),
			slog.Time("fetched_at", ds.FetchedAt),
		)
		if j.publisher != nil {
			published, err := j.publisher.PublishDataset(subCtx, ds)
			if err != nil {
				j.log.Warn("publish failed (will retry on next interval)",
					slog.Any("err", err),
					slog.Int("published", published),
				)
			} else {
				j.log.Info("dataset published", slog.Int("published", published))
			}
		}
	}

	if j.pruner == nil {
		return
	}
	deleted, err := j.pruner.DeleteOlderThan(subCtx, j.cfg.MaxAge, j.cfg.PruneBatchSize)
	if err != nil {
		j.log.Warn("prune failed (will retry on next interval)", slog.Any("err", err))
		return
	}
	if deleted > 0 {
		j.log.Info("prune completed", slog.Int64("deleted", deleted))
	} else {
		j.log.Debug("prune completed, no old documents found")
	}
}
