package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"playmusic/internal/core"
	"playmusic/internal/flood"
	"playmusic/pkg/text"
)

const (
	shutdownTimeout = 10 * time.Second

	// maxResolveBody caps the text accepted by POST /resolve
	maxResolveBody = 64 << 10
)

// Catalog is what the server needs from the catalog service.
type Catalog interface {
	core.CatalogService
	IsAuthenticated() bool
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
	limiter *flood.Limiter
}

// Metrics holds the service's collectors in a registry of its own, so several
// servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	ResolvesTotal      *prometheus.CounterVec
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	AdaptErrorsTotal   *prometheus.CounterVec
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		ResolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playmusic_resolves_total",
				Help: "Total number of links classified, by media type",
			},
			[]string{"type"},
		),
		RemoteCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playmusic_remote_calls_total",
				Help: "Total number of catalog API calls",
			},
			[]string{"operation", "status"},
		),
		RemoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playmusic_remote_call_duration_seconds",
				Help:    "Time spent waiting for the catalog API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		AdaptErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playmusic_adapt_errors_total",
				Help: "Total number of catalog records that could not be adapted",
			},
			[]string{"entity"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playmusic_cache_hits_total",
				Help: "Total number of lookups served from memory",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playmusic_cache_misses_total",
				Help: "Total number of lookups that needed the catalog API",
			},
			[]string{"kind"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playmusic_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"route", "code"},
		),
	}

	metrics.registry.MustRegister(
		metrics.ResolvesTotal,
		metrics.RemoteCallsTotal,
		metrics.RemoteCallDuration,
		metrics.AdaptErrorsTotal,
		metrics.CacheHitsTotal,
		metrics.CacheMissesTotal,
		metrics.RequestsTotal,
	)

	return metrics
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordResolve(mediaType string) {
	m.ResolvesTotal.WithLabelValues(mediaType).Inc()
}

func (m *Metrics) RecordRemoteCall(operation, status string, duration time.Duration) {
	m.RemoteCallsTotal.WithLabelValues(operation, status).Inc()
	m.RemoteCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordAdaptError(entity string) {
	m.AdaptErrorsTotal.WithLabelValues(entity).Inc()
}

func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHitsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

var _ core.MetricsRecorder = (*Metrics)(nil)

// WatchLimiter exposes the number of clients the limiter is tracking.
func (m *Metrics) WatchLimiter(limiter *flood.Limiter) error {
	return m.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "playmusic_rate_limit_active_clients",
			Help: "Number of clients with requests in the rate limit window",
		},
		func() float64 { return float64(limiter.Stats().ActiveClients) },
	))
}

// WatchCaches exposes what the catalog service holds in memory, by kind.
func (m *Metrics) WatchCaches(stats func() core.CacheStats) error {
	kinds := map[string]func(core.CacheStats) int{
		"track":   func(s core.CacheStats) int { return s.Tracks },
		"album":   func(s core.CacheStats) int { return s.Albums },
		"missing": func(s core.CacheStats) int { return s.Missing },
	}
	for kind, field := range kinds {
		gauge := prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "playmusic_cache_entries",
				Help:        "Number of entries held in memory",
				ConstLabels: prometheus.Labels{"kind": kind},
			},
			func() float64 { return float64(field(stats())) },
		)
		if err := m.registry.Register(gauge); err != nil {
			return err
		}
	}
	return nil
}

// cacheReporter is implemented by catalogs that cache records.
type cacheReporter interface {
	CacheStats() core.CacheStats
}

func NewServer(config *core.ServerConfig, catalog Catalog, metrics *Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}

	var limiter *flood.Limiter
	if config.RateLimitPerMinute > 0 {
		limiter = flood.NewLimiter(config.RateLimitPerMinute)
		if err := metrics.WatchLimiter(limiter); err != nil {
			logger.Warn("Failed to register rate limit metrics", zap.Error(err))
		}
	}
	if reporter, ok := catalog.(cacheReporter); ok {
		if err := metrics.WatchCaches(reporter.CacheStats); err != nil {
			logger.Warn("Failed to register cache metrics", zap.Error(err))
		}
	}

	mux := setupRoutes(catalog, metrics, limiter, logger)

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, mux),
		metrics: metrics,
		limiter: limiter,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

// setupRoutes registers every endpoint. Lookup routes go through limiter unless it is nil.
func setupRoutes(catalog Catalog, metrics *Metrics, limiter *flood.Limiter, logger *zap.Logger) *http.ServeMux {
	h := &handlers{catalog: catalog, logger: logger, extractor: text.NewExtractor()}
	mux := http.NewServeMux()

	route := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, metrics, handler))
	}
	limited := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, metrics, rateLimit(limiter, logger, handler)))
	}

	route("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok", "service": "playmusic"})
	})
	route("GET /readyz", h.ready)
	route("GET /resolve", h.resolve)
	limited("POST /resolve", h.resolveText)
	limited("GET /tracks/{id}", h.track)
	limited("GET /tracks/{id}/stream", h.stream)
	limited("GET /albums/{id}", h.album)
	limited("GET /playlists/{id}", h.playlist)

	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", homeHandler(logger))

	return mux
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(indexPage)); err != nil {
			logger.Debug("Failed to write index page", zap.Error(err))
		}
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
    <title>Play Music</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">Play Music</h1>
    <p>Google Play Music catalog lookups</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
    <div class="endpoint">/resolve?url=... - Classify a Play Music link</div>
    <div class="endpoint">POST /resolve - Classify every link in a text body</div>
    <div class="endpoint">/tracks/{id}, /albums/{id}, /playlists/{id} - Catalog lookups</div>
    <div class="endpoint">/tracks/{id}/stream - Download location for a track</div>
</body>
</html>`

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(route string, metrics *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// rateLimit rejects requests from clients over their per-minute allowance.
func rateLimit(limiter *flood.Limiter, logger *zap.Logger, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		allowed, retryAfter := limiter.Allow(client)
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			logger.Debug("Rate limited client",
				zap.String("client", client),
				zap.Int("retryAfterSecs", seconds))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, logger, http.StatusTooManyRequests, errorView{Error: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type handlers struct {
	catalog   Catalog
	logger    *zap.Logger
	extractor *text.Extractor
}

func (h *handlers) ready(w http.ResponseWriter, _ *http.Request) {
	if !h.catalog.IsAuthenticated() {
		writeJSON(w, h.logger, http.StatusServiceUnavailable,
			map[string]string{"status": "not ready", "service": "playmusic", "reason": "not signed in"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ready", "service": "playmusic"})
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorView{Error: "url parameter is required"})
		return
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		writeJSON(w, h.logger, http.StatusBadRequest, errorView{Error: "url must be absolute"})
		return
	}

	result := h.catalog.ParseURL(u)
	if result == nil {
		writeJSON(w, h.logger, http.StatusNotFound, errorView{Error: "no match"})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, newResolveView(result))
}

// resolveText classifies every link found in the request body.
func (h *handlers) resolveText(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResolveBody))
	if err != nil {
		writeJSON(w, h.logger, http.StatusRequestEntityTooLarge, errorView{Error: "body too large"})
		return
	}

	links := h.extractor.ExtractLinks(string(body))
	results := make([]resolveView, 0, len(links))
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if result := h.catalog.ParseURL(u); result != nil {
			results = append(results, newResolveView(result))
		}
	}

	writeJSON(w, h.logger, http.StatusOK, resolveListView{Links: len(links), Results: results})
}

func (h *handlers) track(w http.ResponseWriter, r *http.Request) {
	track, err := h.catalog.GetTrack(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "track", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newTrackView(track))
}

func (h *handlers) album(w http.ResponseWriter, r *http.Request) {
	album, err := h.catalog.GetAlbum(r.Context(), r.PathValue("id"), true)
	if err != nil {
		h.writeError(w, "album", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newAlbumView(album))
}

func (h *handlers) playlist(w http.ResponseWriter, r *http.Request) {
	playlist, err := h.catalog.GetPlaylist(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "playlist", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newPlaylistView(playlist))
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	track, err := h.catalog.GetTrack(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "stream", err)
		return
	}

	file, err := h.catalog.GetDownloadableTrack(r.Context(), track)
	if err != nil {
		h.writeError(w, "stream", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newTrackFileView(file))
}

// writeError maps catalog errors onto HTTP status codes.
func (h *handlers) writeError(w http.ResponseWriter, component string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrResourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrMalformedRecord), errors.Is(err, core.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, core.ErrInvalidSession), errors.Is(err, core.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	// Server-side failures may carry upstream response bodies; those stay in the log.
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Catalog request failed", zap.String("component", component), zap.Error(err))
		message = strings.ToLower(http.StatusText(status))
	} else {
		h.logger.Debug("Catalog request rejected", zap.String("component", component), zap.Error(err))
	}

	writeJSON(w, h.logger, status, errorView{Error: message})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		if s.limiter != nil {
			s.limiter.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
