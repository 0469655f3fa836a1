package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Search backends understood by the API binary.
const (
	BackendMemory        = "memory"
	BackendElasticsearch = "elasticsearch"
)

// Common contains the dataset, cache and Elasticsearch parameters shared by every service.
type Common struct {
	CacheFile          string
	CacheTTL           time.Duration
	CacheServeStale    bool
	GitHubAPIURL       string
	GitHubToken        string
	DatasetOwner       string
	DatasetRepo        string
	DatasetDir         string
	DatasetResource    string
	FetchTimeout       time.Duration
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr             string
	SearchBackend        string
	DefaultLimit         int
	MaxLimit             int
	SearchThreshold      float64
	SearchDistance       int
	SearchIgnoreLocation bool
	AgentName            string
	ResultCacheSize      int
	CORSAllowedOrigins   []string
	ESMaxDistance        float64
}

// Refresher configures the periodic snapshot refresh and index pruning loop.
type Refresher struct {
	Common
	Interval       time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	Prune          bool
	MaxAge         time.Duration
	PruneBatchSize int
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// LoadDotEnv populates the environment from the given files (".env" by default).
// Missing files are not an error; variables already set are never overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func loadCommon() (Common, error) {
	c := Common{
		CacheFile:          getEnv("CACHE_FILE", "cache/apis.json"),
		CacheTTL:           getDuration("CACHE_TTL", "24h"),
		CacheServeStale:    getBool("CACHE_SERVE_STALE", true),
		GitHubAPIURL:       strings.TrimRight(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),
		GitHubToken:        getEnv("GITHUB_ACCESS_TOKEN", ""),
		DatasetOwner:       getEnv("DATASET_OWNER", "marcelscruz"),
		DatasetRepo:        getEnv("DATASET_REPO", "dev-resources"),
		DatasetDir:         getEnv("DATASET_DIR", "db"),
		DatasetResource:    getEnv("DATASET_RESOURCE", "resources"),
		FetchTimeout:       getDuration("FETCH_TIMEOUT", "20s"),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "apis"),
	}

	if c.CacheTTL <= 0 {
		return Common{}, fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return Common{}, fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:               common,
		BindAddr:             getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		SearchBackend:        strings.ToLower(getEnv("SEARCH_BACKEND", BackendMemory)),
		DefaultLimit:         getInt("SEARCH_LIMIT", 10),
		MaxLimit:             getInt("SEARCH_MAX_LIMIT", 50),
		SearchThreshold:      getFloat("SEARCH_THRESHOLD", 0.1),
		SearchDistance:       getInt("SEARCH_DISTANCE", 100),
		SearchIgnoreLocation: getBool("SEARCH_IGNORE_LOCATION", false),
		AgentName:            getEnv("AGENT_NAME", "apiDirectoryAgent"),
		ResultCacheSize:      getInt("SEARCH_CACHE_SIZE", 256),
		CORSAllowedOrigins:   splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ESMaxDistance:        getFloat("SEARCH_ES_MAX_DISTANCE", 0.9),
	}

	switch c.SearchBackend {
	case BackendMemory, BackendElasticsearch:
	default:
		return nil, fmt.Errorf("SEARCH_BACKEND must be %q or %q", BackendMemory, BackendElasticsearch)
	}
	if c.DefaultLimit <= 0 {
		return nil, fmt.Errorf("SEARCH_LIMIT must be positive")
	}
	if c.MaxLimit <= 0 {
		return nil, fmt.Errorf("SEARCH_MAX_LIMIT must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return nil, fmt.Errorf("SEARCH_LIMIT cannot exceed SEARCH_MAX_LIMIT")
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return nil, fmt.Errorf("SEARCH_THRESHOLD must be within [0, 1]")
	}
	if c.SearchDistance <= 0 {
		return nil, fmt.Errorf("SEARCH_DISTANCE must be positive")
	}
	if c.ESMaxDistance <= 0 || c.ESMaxDistance > 1 {
		return nil, fmt.Errorf("SEARCH_ES_MAX_DISTANCE must be within (0, 1]")
	}
	if c.ResultCacheSize < 0 {
		return nil, fmt.Errorf("SEARCH_CACHE_SIZE cannot be negative")
	}

	return c, nil
}

// LoadRefresher builds a Refresher config from environment variables.
func LoadRefresher() (*Refresher, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Refresher{
		Common:         common,
		Interval:       getDuration("REFRESH_INTERVAL", "24h"),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "api_records"),
		Prune:          getBool("INDEX_PRUNE", true),
		MaxAge:         getDuration("INDEX_MAX_AGE", "72h"),
		PruneBatchSize: getInt("INDEX_PRUNE_BATCH_SIZE", 500),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("INDEX_MAX_AGE must be positive")
	}
	if c.PruneBatchSize <= 0 {
		return nil, fmt.Errorf("INDEX_PRUNE_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:           common,
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "api_records"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "api-indexer"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "1h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
