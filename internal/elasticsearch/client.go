package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
)

// Field boosts keep the same 5:3:2 ratio as the in-memory engine weights.
var searchFields = []string{"name^5", "description^3", "categories^2"}

// Client wraps go-elasticsearch with helpers for the API directory index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
	// maxDistance drops hits whose relative distance from the best hit exceeds it.
	maxDistance float64
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Client{es: es, index: index, log: log, maxDistance: 1}, nil
}

// WithMaxDistance sets the relevance cutoff applied to search hits. Values outside (0, 1] disable it.
func (c *Client) WithMaxDistance(d float64) *Client {
	if d <= 0 || d > 1 {
		d = 1
	}
	c.maxDistance = d
	return c
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// IndexAPI writes a directory document into Elasticsearch.
func (c *Client) IndexAPI(ctx context.Context, doc models.APIDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// Search runs a fuzzy multi-field query and returns projected results, best first.
// A blank query returns an empty slice without contacting Elasticsearch.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 200 {
		limit = 200
	}

	payload, err := json.Marshal(BuildSearchBody(query, limit))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			MaxScore float64 `json:"max_score"`
			Hits     []struct {
				Score  float64            `json:"_score"`
				Source models.APIDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	maxScore := parsed.Hits.MaxScore
	for _, hit := range parsed.Hits.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	items := make([]models.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		d := distance(hit.Score, maxScore)
		if d > c.maxDistance {
			continue
		}
		items = append(items, models.ProjectDocument(hit.Source, d))
	}

	return items, nil
}

// BuildSearchBody assembles the query DSL for a directory search. Ties on relevance
// fall back to dataset position so repeated queries return the same order.
func BuildSearchBody(query string, limit int) map[string]any {
	return map[string]any{
		"size":         limit,
		"track_scores": true,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{
						"term": map[string]any{
							"name.keyword": map[string]any{
								"value":            query,
								"case_insensitive": true,
								"boost":            100,
							},
						},
					},
					{
						"multi_match": map[string]any{
							"query":     query,
							"fields":    searchFields,
							"fuzziness": "AUTO",
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []any{
			"_score",
			map[string]any{"position": map[string]any{"order": "asc"}},
		},
	}
}

// distance maps Elasticsearch relevance onto the 0 (best) .. 1 (worst) scale used by search results.
func distance(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 1
	}
	d := 1 - score/maxScore
	if d < 0 {
		return 0
	}
	return d
}

// DeleteOlderThan removes documents whose snapshot is older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					"fetched_at": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	c.log.Debug("pruned index", slog.Int64("deleted", totalDeleted), slog.String("cutoff", cutoff))
	return totalDeleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
