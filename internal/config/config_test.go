package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/api-directory/internal/config"
)

func TestLoadAPIDefaults(t *testing.T) {
	for _, key := range []string{
		"CACHE_FILE", "CACHE_TTL", "CACHE_SERVE_STALE", "GITHUB_API_URL", "DATASET_RESOURCE",
		"API_BIND_ADDR", "SEARCH_BACKEND", "SEARCH_LIMIT", "SEARCH_MAX_LIMIT", "SEARCH_THRESHOLD",
		"SEARCH_DISTANCE", "SEARCH_IGNORE_LOCATION", "AGENT_NAME", "FETCH_TIMEOUT",
		"SEARCH_CACHE_SIZE", "CORS_ALLOWED_ORIGINS", "SEARCH_ES_MAX_DISTANCE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "cache/apis.json", cfg.CacheFile)
	require.Equal(t, 24*time.Hour, cfg.CacheTTL)
	require.True(t, cfg.CacheServeStale)
	require.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	require.Equal(t, "marcelscruz", cfg.DatasetOwner)
	require.Equal(t, "dev-resources", cfg.DatasetRepo)
	require.Equal(t, "db", cfg.DatasetDir)
	require.Equal(t, "resources", cfg.DatasetResource)
	require.Equal(t, 20*time.Second, cfg.FetchTimeout)
	require.Equal(t, "0.0.0.0:8080", cfg.BindAddr)
	require.Equal(t, config.BackendMemory, cfg.SearchBackend)
	require.Equal(t, 10, cfg.DefaultLimit)
	require.Equal(t, 50, cfg.MaxLimit)
	require.InDelta(t, 0.1, cfg.SearchThreshold, 1e-9)
	require.Equal(t, 100, cfg.SearchDistance)
	require.False(t, cfg.SearchIgnoreLocation)
	require.Equal(t, "apiDirectoryAgent", cfg.AgentName)
	require.Equal(t, 256, cfg.ResultCacheSize)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.InDelta(t, 0.9, cfg.ESMaxDistance, 1e-9)
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("CACHE_FILE", "/tmp/apis.json")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("CACHE_SERVE_STALE", "false")
	t.Setenv("GITHUB_API_URL", "http://github.local/")
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("SEARCH_BACKEND", "Elasticsearch")
	t.Setenv("SEARCH_LIMIT", "5")
	t.Setenv("SEARCH_MAX_LIMIT", "20")
	t.Setenv("SEARCH_THRESHOLD", "0.3")
	t.Setenv("SEARCH_IGNORE_LOCATION", "true")
	t.Setenv("SEARCH_CACHE_SIZE", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, "/tmp/apis.json", cfg.CacheFile)
	require.Equal(t, time.Hour, cfg.CacheTTL)
	require.False(t, cfg.CacheServeStale)
	require.Equal(t, "http://github.local", cfg.GitHubAPIURL)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, config.BackendElasticsearch, cfg.SearchBackend)
	require.Equal(t, 5, cfg.DefaultLimit)
	require.Equal(t, 20, cfg.MaxLimit)
	require.InDelta(t, 0.3, cfg.SearchThreshold, 1e-9)
	require.True(t, cfg.SearchIgnoreLocation)
	require.Zero(t, cfg.ResultCacheSize)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadAPIValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown backend", key: "SEARCH_BACKEND", val: "solr"},
		{name: "threshold above one", key: "SEARCH_THRESHOLD", val: "1.5"},
		{name: "limit above max", key: "SEARCH_LIMIT", val: "500"},
		{name: "negative ttl", key: "CACHE_TTL", val: "-1h"},
		{name: "negative result cache", key: "SEARCH_CACHE_SIZE", val: "-1"},
		{name: "zero es cutoff", key: "SEARCH_ES_MAX_DISTANCE", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SEARCH_MAX_LIMIT", "")
			t.Setenv(tt.key, tt.val)
			_, err := config.LoadAPI()
			require.Error(t, err)
		})
	}
}

func TestLoadRefresher(t *testing.T) {
	t.Setenv("REFRESH_INTERVAL", "12h")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "records")
	t.Setenv("INDEX_PRUNE", "false")
	t.Setenv("INDEX_MAX_AGE", "36h")
	t.Setenv("INDEX_PRUNE_BATCH_SIZE", "123")
	t.Setenv("ELASTICSEARCH_INDEX", "ret-index")

	cfg, err := config.LoadRefresher()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.KafkaBrokers)
	require.Equal(t, "records", cfg.KafkaTopic)
	require.False(t, cfg.Prune)
	require.Equal(t, 36*time.Hour, cfg.MaxAge)
	require.Equal(t, 123, cfg.PruneBatchSize)
	require.Equal(t, "ret-index", cfg.ElasticsearchIndex)
}

func TestLoadRefresherWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	cfg, err := config.LoadRefresher()
	require.NoError(t, err)
	require.Empty(t, cfg.KafkaBrokers)
}

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("ELASTICSEARCH_INDEX", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")
	t.Setenv("WORKER_DEDUPE_TTL", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "apis", cfg.ElasticsearchIndex)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "api_records", cfg.KafkaTopic)
	require.Equal(t, "api-indexer", cfg.KafkaConsumer)
	require.Equal(t, time.Hour, cfg.DedupeTTL)
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_KEYWORD_LIMIT", "12")
	t.Setenv("WORKER_KEYWORD_MIN_LEN", "5")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_BATCH_SIZE", "3")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Len(t, cfg.KafkaBrokers, 2)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 12, cfg.KeywordLimit)
	require.Equal(t, 5, cfg.KeywordMinLength)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 3, cfg.BatchSize)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOTENV_PROBE=from-file\n"), 0o644))
	t.Setenv("DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("DOTENV_PROBE"))

	require.NoError(t, config.LoadDotEnv(path))
	require.Equal(t, "from-file", os.Getenv("DOTENV_PROBE"))

	require.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env")))
}
