// Package server implements the piiscrub HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/faheem-arif/pii-scrubber/pkg/api"
	"github.com/faheem-arif/pii-scrubber/pkg/logging"
	"github.com/faheem-arif/pii-scrubber/pkg/metrics"
	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
	"github.com/faheem-arif/pii-scrubber/pkg/storage"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Audit listing bounds.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 1000
)

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            7676,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    10 << 20,
	}
}

// Server represents the piiscrub HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	engine     *scrub.Engine
	options    atomic.Pointer[scrub.Options]
	store      storage.Store
	metrics    *metrics.Metrics
	logger     *log.Logger
	startTime  time.Time
	listener   net.Listener

	mu      sync.RWMutex
	running bool
}

// New creates a new server. defaults are validated and applied to requests
// that do not override them. store and logger may be nil.
func New(config Config, engine *scrub.Engine, defaults scrub.Options, store storage.Store, logger *log.Logger) (*Server, error) {
	if engine == nil {
		engine = scrub.NewEngine()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		config:    config,
		engine:    engine,
		store:     store,
		logger:    logger,
		startTime: time.Now(),
	}
	if err := s.SetOptions(defaults); err != nil {
		return nil, err
	}
	return s, nil
}

// SetMetrics enables instrumentation and the /metrics route. It must be
// called before Start or Handler.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Options returns the current default scrub options.
func (s *Server) Options() scrub.Options {
	return *s.options.Load()
}

// SetOptions swaps the default scrub options. Invalid options are rejected and
// the previous ones stay in effect.
func (s *Server) SetOptions(opts scrub.Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid default options: %w", err)
	}
	s.options.Store(&opts)
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", "http://"+listener.Addr().String())

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the actual address the server is listening on.
// This is useful when the server was started with port 0 (random port).
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	// Health check
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// API v1
	r.Post("/v1/scrub", s.handleScrub)
	r.Get("/v1/detectors", s.handleDetectors)
	r.Get("/v1/stats", s.handleStats)
	r.Get("/v1/audits", s.handleAudits)

	return r
}

// loggingMiddleware logs request metadata. Bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rw.statusCode)).Inc()
		}

		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReady handles readiness check requests.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if len(s.engine.Scanners) == 0 {
		api.WriteError(w, http.StatusServiceUnavailable, "not_ready", "No detectors registered")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// handleScrub handles scrub requests.
func (s *Server) handleScrub(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, api.CodeTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		api.WriteError(w, http.StatusBadRequest, api.CodeInvalidRequest, "Failed to read request body")
		return
	}

	var req api.ScrubRequest
	if err := json.Unmarshal(body, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeInvalidRequest, "Failed to parse request body")
		return
	}

	opts := req.Options.Apply(s.Options())

	if s.metrics != nil {
		s.metrics.InFlightScrubs.Inc()
		defer s.metrics.InFlightScrubs.Dec()
	}

	start := time.Now()
	result, err := s.engine.Scrub(req.Text, opts)
	elapsed := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			label := string(opts.Mode)
			if errors.Is(err, scrub.ErrInvalidMode) {
				label = "invalid"
			}
			s.metrics.ObserveScrubError(label)
		}
		if errors.Is(err, scrub.ErrInvalidMode) || errors.Is(err, scrub.ErrMissingHashSalt) {
			api.WriteError(w, http.StatusBadRequest, api.CodeInvalidOptions, err.Error())
			return
		}
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "Scrub failed")
		return
	}

	runID := uuid.NewString()
	if s.metrics != nil {
		s.metrics.ObserveScrub(string(result.Mode), len(req.Text), result.Report.ByType, result.Report.LimitHit(), elapsed)
	}
	if s.store != nil {
		run := storage.NewRun(runID, storage.SourceAPI, len(req.Text), result, elapsed)
		if err := s.store.Save(run); err != nil {
			s.logger.Warn("failed to record run", "run_id", runID, "err", err)
		}
	}

	resp := api.ScrubResponse{
		RunID:        runID,
		Mode:         result.Mode,
		ScrubbedText: result.ScrubbedText,
		Report:       result.Report,
	}
	if result.HasMapping() {
		mapping, err := result.MappingJSONL()
		if err != nil {
			api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "Failed to encode mapping")
			return
		}
		resp.MappingJSONL = mapping
	}

	s.logger.Info("scrubbed",
		"run_id", runID,
		"mode", result.Mode,
		"findings", result.Report.TotalFindings,
		"limit_hit", result.Report.LimitHit(),
	)

	api.WriteJSON(w, http.StatusOK, resp)
}

// handleDetectors lists the detector registry.
func (s *Server) handleDetectors(w http.ResponseWriter, r *http.Request) {
	resp := api.DetectorsResponse{
		Detectors: make([]api.Detector, 0, len(s.engine.Scanners)),
		Modes:     []string{string(scrub.ModeRedact), string(scrub.ModeTokenMap), string(scrub.ModeHash)},
	}
	for _, sc := range s.engine.Scanners {
		resp.Detectors = append(resp.Detectors, api.Detector{
			ID:       sc.Name(),
			Category: sc.Category(),
			Severity: scanners.SeverityFor(sc.Category()),
		})
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// StatsResponse represents server statistics.
type StatsResponse struct {
	Uptime      string         `json:"uptime"`
	DefaultMode string         `json:"default_mode"`
	Runs        *storage.Stats `json:"runs,omitempty"`
}

// handleStats handles stats requests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		DefaultMode: string(s.Options().Mode),
	}
	if resp.DefaultMode == "" {
		resp.DefaultMode = string(scrub.ModeRedact)
	}

	if s.store != nil {
		stats, err := s.store.Stats()
		if err != nil {
			s.logger.Error("failed to read run stats", "err", err)
			api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "Failed to read stats")
			return
		}
		resp.Runs = &stats
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// handleAudits lists recent runs.
func (s *Server) handleAudits(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		api.WriteJSON(w, http.StatusOK, api.AuditsResponse{Runs: []storage.Run{}})
		return
	}

	q := r.URL.Query()
	limit := DefaultAuditLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			api.WriteError(w, http.StatusBadRequest, api.CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxAuditLimit)
	}

	runs, err := s.store.Query(storage.QueryOptions{
		Limit:  limit,
		Mode:   q.Get("mode"),
		Source: q.Get("source"),
	})
	if err != nil {
		s.logger.Error("failed to query runs", "err", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "Failed to query audits")
		return
	}

	api.WriteJSON(w, http.StatusOK, api.AuditsResponse{Runs: runs})
}
