package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/DeafMist/api-directory/internal/fuzzy"
	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 10

// exactScore stands in for a zero distance inside the weighted product so that
// an exact hit on a heavier field still outranks one on a lighter field.
const exactScore = 2.220446049250313e-16

// DatasetSource yields the current dataset snapshot.
type DatasetSource interface {
	Dataset(ctx context.Context) (*models.Dataset, error)
}

// Weights sets the relative importance of each indexed field.
type Weights struct {
	Name        float64
	Description float64
	Categories  float64
}

// DefaultWeights favour the API name over its description and categories.
var DefaultWeights = Weights{Name: 0.5, Description: 0.3, Categories: 0.2}

// Options configure ranking.
type Options struct {
	Fuzzy        fuzzy.Options
	Weights      Weights
	DefaultLimit int
	// ResultCacheSize bounds the per-snapshot query result cache; 0 disables it.
	ResultCacheSize int
}

// Engine ranks dataset records against free-text queries.
type Engine struct {
	src  DatasetSource
	opts Options
	log  *slog.Logger

	mu  sync.Mutex
	idx *index

	results *lru.ARCCache
}

type resultKey struct {
	fetchedAt int64
	query     string
	limit     int
}

type entry struct {
	record      models.APIRecord
	name        string
	description string
	categories  []string
}

type index struct {
	fetchedAt time.Time
	entries   []entry
}

type hit struct {
	pos   int
	score float64
}

// NewEngine creates an Engine over src.
func NewEngine(src DatasetSource, opts Options, log *slog.Logger) *Engine {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if opts.Fuzzy == (fuzzy.Options{}) {
		opts.Fuzzy = fuzzy.DefaultOptions
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if log == nil {
		log = logger.Discard()
	}
	e := &Engine{src: src, opts: opts, log: log}
	if opts.ResultCacheSize > 0 {
		e.results, _ = lru.NewARC(opts.ResultCacheSize)
	}
	return e
}

// Search returns at most limit results ordered from best to worst match.
// A blank query returns an empty slice without touching the dataset.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}

	ds, err := e.src.Dataset(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	key := resultKey{fetchedAt: ds.FetchedAt.UnixNano(), query: strings.ToLower(query), limit: limit}
	if cached, ok := e.cachedResults(key); ok {
		return cached, nil
	}

	idx := e.indexFor(ds)
	hits := e.rank(idx, query)

	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.Project(idx.entries[h.pos].record, h.score))
	}

	e.log.Debug("search completed",
		slog.String("query", query),
		slog.Int("results", len(results)),
		slog.Bool("stale", ds.Stale),
	)
	if e.results != nil {
		e.results.Add(key, results)
	}
	return cloneResults(results), nil
}

func (e *Engine) cachedResults(key resultKey) ([]models.SearchResult, bool) {
	if e.results == nil {
		return nil, false
	}
	v, ok := e.results.Get(key)
	if !ok {
		return nil, false
	}
	return cloneResults(v.([]models.SearchResult)), true
}

func cloneResults(in []models.SearchResult) []models.SearchResult {
	out := make([]models.SearchResult, len(in))
	copy(out, in)
	return out
}

// indexFor returns the index for ds, rebuilding it when the snapshot changed.
func (e *Engine) indexFor(ds *models.Dataset) *index {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.idx != nil && e.idx.fetchedAt.Equal(ds.FetchedAt) && len(e.idx.entries) == len(ds.Records) {
		return e.idx
	}

	idx := &index{fetchedAt: ds.FetchedAt, entries: make([]entry, 0, len(ds.Records))}
	for _, rec := range ds.Records {
		cats := make([]string, 0, len(rec.Categories))
		for _, c := range rec.Categories {
			cats = append(cats, strings.ToLower(strings.TrimSpace(c)))
		}
		idx.entries = append(idx.entries, entry{
			record:      rec,
			name:        strings.ToLower(strings.TrimSpace(rec.Name)),
			description: strings.ToLower(strings.TrimSpace(rec.Description)),
			categories:  cats,
		})
	}

	e.log.Debug("search index rebuilt", slog.Int("records", len(idx.entries)), slog.Time("fetched_at", ds.FetchedAt))
	e.idx = idx
	return idx
}

func (e *Engine) rank(idx *index, query string) []hit {
	m := fuzzy.NewMatcher(query, e.opts.Fuzzy)
	pattern := m.Pattern()

	w := e.opts.Weights
	total := w.Name + w.Description + w.Categories

	hits := make([]hit, 0)
	for pos, ent := range idx.entries {
		if ent.name == pattern {
			hits = append(hits, hit{pos: pos, score: 0})
			continue
		}

		score, matched := 1.0, false
		if s, ok := bestField(m, ent.name); ok {
			score *= weighted(s, w.Name/total)
			matched = true
		}
		if s, ok := bestField(m, ent.description); ok {
			score *= weighted(s, w.Description/total)
			matched = true
		}
		if s, ok := bestField(m, ent.categories...); ok {
			score *= weighted(s, w.Categories/total)
			matched = true
		}
		if !matched {
			continue
		}
		hits = append(hits, hit{pos: pos, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score < hits[j].score
	})
	return hits
}

// bestField returns the lowest score of the matcher over values.
func bestField(m *fuzzy.Matcher, values ...string) (float64, bool) {
	best, found := 1.0, false
	for _, v := range values {
		if v == "" {
			continue
		}
		if res, ok := m.Score(v); ok && res.Score <= best {
			best, found = res.Score, true
		}
	}
	return best, found
}

func weighted(score, weight float64) float64 {
	if weight <= 0 {
		return 1
	}
	return math.Pow(math.Max(score, exactScore), weight)
}
