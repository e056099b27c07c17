// Package server provides the HTTP surface of the asset cache: it
// serves optimized artifacts from the disk store, accepts uploads from
// pipeline instances and exposes flush and introspection endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	assetcache "github.com/reducekit/asset-cache"
	"github.com/reducekit/asset-cache/backend"
	"github.com/reducekit/asset-cache/index"
	"github.com/reducekit/asset-cache/store"
	"github.com/reducekit/asset-cache/telemetry"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// StoragePath is the root directory for stored artifacts.
	StoragePath string

	// VirtualPath is the URL prefix artifacts are served under.
	// Default: "/rr"
	VirtualPath string

	// IndexPath is the path of the persistent reduction index
	// database. Empty keeps the index in memory.
	IndexPath string

	// EnableWatcher installs the storage-root change watcher so the
	// index follows files written by sibling instances.
	EnableWatcher bool

	// MaxUploadBytes caps the accepted artifact size on uploads.
	// Default: 32 MiB.
	MaxUploadBytes int64

	// AuthToken enables Bearer token authentication for all endpoints
	// except /health and /metrics. Empty disables authentication.
	AuthToken string

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the asset cache.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger

	kinds *assetcache.KindSet
	codec *assetcache.URIBuilder
	repo  index.Repository
	bolt  *index.Bolt
	store *store.DiskStore
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./cache"
	}
	if cfg.VirtualPath == "" {
		cfg.VirtualPath = "/rr"
	}
	cfg.VirtualPath = strings.TrimSuffix(cfg.VirtualPath, "/")
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}

	kinds := assetcache.DefaultKinds()
	codec := assetcache.NewURIBuilder(cfg.VirtualPath, kinds)

	var (
		repo index.Repository
		bolt *index.Bolt
	)
	if cfg.IndexPath != "" {
		bolt = index.NewBolt(index.WithLogger(cfg.Logger.With("component", "index")))
		if err := bolt.Open(cfg.IndexPath); err != nil {
			return nil, fmt.Errorf("opening reduction index: %w", err)
		}
		repo = bolt
	} else {
		repo = index.NewMemory()
	}

	diskStore, err := store.New(store.Config{
		Root:          cfg.StoragePath,
		Codec:         codec,
		Kinds:         kinds,
		Repository:    repo,
		Files:         backend.NewInstrumented(backend.NewLocal(), "local"),
		EnableWatcher: cfg.EnableWatcher,
		Logger:        cfg.Logger.With("component", "store"),
	})
	if err != nil {
		if bolt != nil {
			_ = bolt.Close()
		}
		return nil, fmt.Errorf("creating disk store: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger,
		kinds:  kinds,
		codec:  codec,
		repo:   repo,
		bolt:   bolt,
		store:  diskStore,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.loggingMiddleware(s.authMiddleware(gzhttp.GzipHandler(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Cache stats
	mux.HandleFunc("GET /stats", s.handleStats)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	// Reduction management
	mux.HandleFunc("GET /api/reductions", s.handleListReductions)
	mux.HandleFunc("DELETE /api/reductions/{key}", s.handleFlush)
	mux.HandleFunc("DELETE /api/reductions", s.handleFlushAll)

	// Artifact serving and upload under the virtual path
	prefix := s.config.VirtualPath
	mux.HandleFunc("GET "+prefix+"/{name...}", s.handleGetArtifact)
	mux.HandleFunc("HEAD "+prefix+"/{name...}", s.handleGetArtifact)
	mux.HandleFunc("PUT "+prefix+"/{name...}", s.handlePutArtifact)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleStats reports the number of active artifacts on disk and
// indexed reductions.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	saved, err := s.store.SavedURLs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	indexed, err := s.repo.All(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"active_artifacts":%d,"indexed_reductions":%d}`,
		len(saved), len(indexed))
}

// handleGetArtifact serves an artifact through the store, falling back
// to the expired variant when the active file was just flushed. A
// double miss is a 404: the caller regenerates and uploads again.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	sink := &httpSink{w: w, r: r}

	found, err := s.store.SendContent(r.Context(), r.URL.Path, sink)
	if err != nil {
		s.logger.Error("sending artifact", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
	}
}

// handlePutArtifact accepts generated artifact bytes from a pipeline
// instance. The filename must carry a parsable key and a registered
// kind suffix.
func (s *Server) handlePutArtifact(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Path

	if _, ok := s.kinds.Match(url); !ok {
		http.Error(w, "unrecognised artifact kind", http.StatusBadRequest)
		return
	}
	if s.codec.ParseKey(url).IsNil() {
		http.Error(w, "missing artifact key", http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	// Names carrying a full-length signature are verified against the
	// body; short or legacy signature tokens pass through.
	if sig := s.codec.ParseSignature(url); len(sig) == assetcache.SignatureLength &&
		!strings.EqualFold(sig, assetcache.Signature(content)) {
		http.Error(w, "content signature mismatch", http.StatusUnprocessableEntity)
		return
	}

	if err := s.store.Save(r.Context(), content, url, r.Header.Get("X-Original-Urls")); err != nil {
		s.logger.Error("saving artifact", "url", url, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// handleListReductions returns the active artifacts keyed by artifact
// key.
func (s *Server) handleListReductions(w http.ResponseWriter, r *http.Request) {
	saved, err := s.store.SavedURLs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make(map[string]string, len(saved))
	for key, url := range saved {
		out[key.String()] = url
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleFlush expires all artifacts for one key.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	key, err := assetcache.ParseKey(r.PathValue("key"))
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}

	if err := s.store.Flush(r.Context(), key); err != nil {
		s.logger.Error("flushing key", "key", key.String(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleFlushAll expires every active artifact.
func (s *Server) handleFlushAll(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Flush(r.Context(), assetcache.NilKey); err != nil {
		s.logger.Error("flushing all keys", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		telemetry.RecordHTTP(r.Context(), wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start warms the reduction index from the artifacts already on disk,
// then begins serving. A restarted instance resumes serving existing
// artifacts without waiting for re-uploads.
func (s *Server) Start() error {
	if err := s.warmIndex(context.Background()); err != nil {
		return fmt.Errorf("warming reduction index: %w", err)
	}

	s.logger.Info("starting server",
		"address", s.config.Address,
		"storage", s.config.StoragePath,
		"virtual_path", s.config.VirtualPath,
	)
	return s.httpServer.ListenAndServe()
}

func (s *Server) warmIndex(ctx context.Context) error {
	saved, err := s.store.SavedURLs(ctx)
	if err != nil {
		return err
	}
	for key, url := range saved {
		if err := s.repo.Add(ctx, key, url); err != nil {
			return err
		}
	}
	if len(saved) > 0 {
		s.logger.Info("warmed reduction index", "entries", len(saved))
	}
	return nil
}

// Shutdown gracefully shuts down the server and releases the store's
// watch handle and the index database.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	err := s.httpServer.Shutdown(ctx)

	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.bolt != nil {
		if cerr := s.bolt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code
// and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
