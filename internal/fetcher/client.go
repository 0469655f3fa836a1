package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/DeafMist/api-directory/internal/logger"
)

const maxDocumentSize = 64 << 20

// Config points the client at a repository hosted behind a GitHub-compatible contents API.
type Config struct {
	APIURL  string
	Token   string
	Owner   string
	Repo    string
	Dir     string
	Timeout time.Duration
}

// Client resolves a logical resource name to a JSON document in two hops:
// a contents-metadata lookup that yields a download URL, then the download itself.
type Client struct {
	cfg        Config
	gh         *github.Client
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a Client. A zero Timeout defaults to 20s and an empty APIURL to api.github.com.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	gh := github.NewClient(httpClient)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if apiURL := strings.TrimRight(cfg.APIURL, "/"); apiURL != "" {
		if base, err := url.Parse(apiURL + "/"); err == nil {
			gh.BaseURL = base
		} else {
			log.Warn("ignoring invalid github api url", slog.String("url", cfg.APIURL), slog.Any("err", err))
		}
	}

	return &Client{cfg: cfg, gh: gh, httpClient: httpClient, log: log}
}

// Fetch returns the raw JSON document stored under resource.
func (c *Client) Fetch(ctx context.Context, resource string) (json.RawMessage, error) {
	downloadURL, err := c.resolve(ctx, resource)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, resource, downloadURL)
}

func (c *Client) resolve(ctx context.Context, resource string) (string, error) {
	filePath := path.Join(c.cfg.Dir, resource+".json")
	c.log.Info("resolving resource",
		slog.String("resource", resource),
		slog.String("repo", c.cfg.Owner+"/"+c.cfg.Repo),
		slog.String("path", filePath),
	)

	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, c.cfg.Owner, c.cfg.Repo, filePath, nil)
	if err != nil {
		return "", metadataError(resource, resp, err)
	}
	if dir != nil || file == nil || file.GetType() == "dir" {
		return "", &Error{Stage: StageMetadata, Resource: resource, Kind: ErrAmbiguousResource}
	}
	if file.GetDownloadURL() == "" {
		return "", &Error{Stage: StageMetadata, Resource: resource, Kind: ErrNotFound,
			Err: errors.New("download url missing")}
	}

	return file.GetDownloadURL(), nil
}

// metadataError classifies a contents lookup failure. A response that arrived with a 2xx
// status but could not be decoded is a serialization problem; anything else without a 404 is transport.
func metadataError(resource string, resp *github.Response, err error) error {
	switch {
	case resp == nil:
		return &Error{Stage: StageMetadata, Resource: resource, Kind: ErrTransport, Err: err}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Stage: StageMetadata, Resource: resource, Kind: ErrNotFound, Err: err}
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return &Error{Stage: StageMetadata, Resource: resource, Kind: ErrSerialization, Err: err}
	default:
		return &Error{Stage: StageMetadata, Resource: resource, Kind: ErrTransport, Err: err}
	}
}

func (c *Client) download(ctx context.Context, resource, downloadURL string) (json.RawMessage, error) {
	c.log.Info("downloading resource", slog.String("resource", resource), slog.String("url", downloadURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, &Error{Stage: StageDownload, Resource: resource, Kind: ErrTransport, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Stage: StageDownload, Resource: resource, Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{Stage: StageDownload, Resource: resource, Kind: ErrTransport,
			Err: fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, &Error{Stage: StageDownload, Resource: resource, Kind: ErrTransport, Err: err}
	}
	if !json.Valid(body) {
		return nil, &Error{Stage: StageDownload, Resource: resource, Kind: ErrSerialization,
			Err: fmt.Errorf("%d bytes are not valid json", len(body))}
	}

	c.log.Info("resource downloaded", slog.String("resource", resource), slog.Int("bytes", len(body)))
	return json.RawMessage(body), nil
}
