package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/models"
)

// ErrMalformed reports dataset content, cached or fetched, that does not parse into records.
var ErrMalformed = errors.New("malformed dataset")

// Fetcher retrieves the raw dataset document from the remote host.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (json.RawMessage, error)
}

// Options tune the cache policy.
type Options struct {
	Path     string
	Resource string
	TTL      time.Duration
	// ServeStale returns an expired snapshot when a refresh fails instead of the error.
	ServeStale bool
}

// Status describes the snapshot on disk.
type Status struct {
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Fresh     bool      `json:"fresh"`
}

// Cache keeps the last fetched dataset on disk and refetches it once it is older than the TTL.
// Concurrent refreshes are coalesced so only one fetch is in flight at a time.
type Cache struct {
	opts    Options
	fetcher Fetcher
	log     *slog.Logger
	group   singleflight.Group
	now     func() time.Time
	// createTemp is swapped in tests to inject write faults.
	createTemp func(dir, pattern string) (tempFile, error)
}

type tempFile interface {
	io.Writer
	Name() string
	Sync() error
	Close() error
}

// New creates a cache over fetcher. A zero TTL defaults to 24h.
func New(fetcher Fetcher, opts Options, log *slog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{
		opts:    opts,
		fetcher: fetcher,
		log:     log,
		now:     time.Now,
		createTemp: func(dir, pattern string) (tempFile, error) {
			return os.CreateTemp(dir, pattern)
		},
	}
}

// Dataset returns the cached dataset while it is fresh and fetches a new one otherwise.
func (c *Cache) Dataset(ctx context.Context) (*models.Dataset, error) {
	cached, err := c.load()
	switch {
	case err == nil && c.fresh(cached.FetchedAt):
		c.log.Debug("using cached dataset", slog.Time("fetched_at", cached.FetchedAt))
		return cached, nil
	case errors.Is(err, fs.ErrNotExist):
		cached = nil
	case err != nil:
		c.log.Warn("discarding unreadable snapshot", slog.String("path", c.opts.Path), slog.Any("err", err))
		cached = nil
	}

	fresh, err := c.refresh(ctx)
	if err == nil {
		return fresh, nil
	}

	if cached != nil && c.opts.ServeStale {
		c.log.Warn("refresh failed, serving stale dataset",
			slog.Any("err", err),
			slog.Time("fetched_at", cached.FetchedAt),
		)
		cached.Stale = true
		return cached, nil
	}
	return nil, err
}

// Refresh fetches the dataset unconditionally and replaces the snapshot.
func (c *Cache) Refresh(ctx context.Context) (*models.Dataset, error) {
	return c.refresh(ctx)
}

// Status reports whether a snapshot exists and is still fresh.
func (c *Cache) Status() Status {
	st := Status{Path: c.opts.Path}
	info, err := os.Stat(c.opts.Path)
	if err != nil {
		return st
	}
	st.Exists = true
	st.FetchedAt = info.ModTime()
	st.Fresh = c.fresh(st.FetchedAt)
	return st
}

func (c *Cache) fresh(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.opts.TTL
}

func (c *Cache) refresh(ctx context.Context) (*models.Dataset, error) {
	ch := c.group.DoChan(c.opts.Path, func() (any, error) {
		// Detach from the first caller's cancellation so joined callers are not failed by it.
		fetchCtx := context.WithoutCancel(ctx)
		c.log.Info("fetching dataset", slog.String("resource", c.opts.Resource))

		raw, err := c.fetcher.Fetch(fetchCtx, c.opts.Resource)
		if err != nil {
			return nil, fmt.Errorf("fetch dataset: %w", err)
		}

		records, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode fetched dataset: %w", err)
		}

		if err := c.write(raw); err != nil {
			return nil, fmt.Errorf("write snapshot: %w", err)
		}

		fetchedAt := c.now()
		if info, err := os.Stat(c.opts.Path); err == nil {
			fetchedAt = info.ModTime()
		}

		c.log.Info("cached dataset", slog.Int("records", len(records)), slog.String("path", c.opts.Path))
		return &models.Dataset{Records: records, FetchedAt: fetchedAt}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		ds := res.Val.(*models.Dataset)
		// Callers get their own header so Stale marks do not leak between them.
		out := *ds
		return &out, nil
	}
}

func (c *Cache) load() (*models.Dataset, error) {
	info, err := os.Stat(c.opts.Path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(c.opts.Path)
	if err != nil {
		return nil, err
	}
	records, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &models.Dataset{Records: records, FetchedAt: info.ModTime()}, nil
}

// write replaces the snapshot atomically: readers see either the old file or the new one.
func (c *Cache) write(raw []byte) (err error) {
	dir := filepath.Dir(c.opts.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := c.createTemp(dir, "."+filepath.Base(c.opts.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(raw); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), c.opts.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func decode(raw []byte) ([]models.APIRecord, error) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf(`%w: missing "data" array`, ErrMalformed)
	}
	return doc.Data, nil
}
