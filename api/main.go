package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/DeafMist/api-directory/internal/a2a"
	"github.com/DeafMist/api-directory/internal/agent"
	"github.com/DeafMist/api-directory/internal/config"
	"github.com/DeafMist/api-directory/internal/elasticsearch"
	"github.com/DeafMist/api-directory/internal/fetcher"
	"github.com/DeafMist/api-directory/internal/fuzzy"
	"github.com/DeafMist/api-directory/internal/logger"
	"github.com/DeafMist/api-directory/internal/search"
	"github.com/DeafMist/api-directory/internal/snapshot"
)

func main() {
	log := logger.New("api")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	srv, err := newServer(cfg, log)
	if err != nil {
		log.Error("init server", slog.Any("err", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("backend", cfg.SearchBackend),
			slog.String("agent", cfg.AgentName),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	cache    *snapshot.Cache
	searcher agent.Searcher
	es       *elasticsearch.Client
	tasks    *a2a.Handler
}

func newServer(cfg *config.API, log *slog.Logger) (*server, error) {
	client := fetcher.New(fetcher.Config{
		APIURL:  cfg.GitHubAPIURL,
		Token:   cfg.GitHubToken,
		Owner:   cfg.DatasetOwner,
		Repo:    cfg.DatasetRepo,
		Dir:     cfg.DatasetDir,
		Timeout: cfg.FetchTimeout,
	}, log.With(slog.String("component", "fetcher")))

	cache := snapshot.New(client, snapshot.Options{
		Path:       cfg.CacheFile,
		Resource:   cfg.DatasetResource,
		TTL:        cfg.CacheTTL,
		ServeStale: cfg.CacheServeStale,
	}, log.With(slog.String("component", "snapshot")))

	srv := &server{log: log, cfg: cfg, cache: cache}

	switch cfg.SearchBackend {
	case config.BackendElasticsearch:
		es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log.With(slog.String("component", "elasticsearch")))
		if err != nil {
			return nil, err
		}
		srv.es = es.WithMaxDistance(cfg.ESMaxDistance)
		srv.searcher = srv.es
	default:
		srv.searcher = search.NewEngine(cache, search.Options{
			Fuzzy: fuzzy.Options{
				Threshold:      cfg.SearchThreshold,
				Distance:       cfg.SearchDistance,
				IgnoreLocation: cfg.SearchIgnoreLocation,
			},
			DefaultLimit:    cfg.DefaultLimit,
			ResultCacheSize: cfg.ResultCacheSize,
		}, log.With(slog.String("component", "search")))
	}

	registry := agent.NewRegistry()
	tool := agent.NewSearchTool(srv.searcher, cfg.DefaultLimit)
	registry.Register(cfg.AgentName, agent.NewDirectoryAgent(tool, cfg.DefaultLimit, log.With(slog.String("component", "agent"))))
	srv.tasks = a2a.NewHandler(registry, log.With(slog.String("component", "a2a")))

	return srv, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/apis", s.handleSearch)
	s.tasks.Mount(r)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Backend  string          `json:"backend"`
	Snapshot snapshot.Status `json:"snapshot"`
	Error    string          `json:"error,omitempty"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Count   int    `json:"count"`
	Results any    `json:"results"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Backend: s.cfg.SearchBackend, Snapshot: s.cache.Status()}
	if s.es != nil {
		if err := s.es.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultLimit, s.cfg.MaxLimit)

	results, err := s.searcher.Search(ctx, query, limit)
	if err != nil {
		s.log.Error("search failed", slog.String("query", query), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: query, Count: len(results), Results: results})
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
