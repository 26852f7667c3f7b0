// Package api exposes the monitoring engine over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/yairfalse/vigil/internal/monitoring/engine"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// Engine is the subset of *engine.Engine served over HTTP
type Engine interface {
	StartMonitoring(interval time.Duration) error
	StopMonitoring() error
	CurrentMetrics(ctx context.Context) (domain.Snapshot, error)
	MetricsHistory(r domain.TimeRange) []domain.Snapshot
	ActiveAlerts() []domain.Alert
	AlertsHistory(r domain.TimeRange) []domain.Alert
	ResolveAlert(id string) (domain.Alert, error)
	Thresholds() domain.ThresholdSet
	UpdateThresholds(ctx context.Context, u domain.ThresholdUpdate) (domain.ThresholdSet, error)
	ResetThresholds(ctx context.Context) (domain.ThresholdSet, error)
	GeneratePerformanceReport(ctx context.Context, start, end time.Time) (*domain.PerformanceReport, error)
	RecordRequest()
	RecordError()
	RecordResponseTime(ms float64)
	Stats() engine.Stats
}

// Config holds API server configuration
type Config struct {
	Address         string
	AdminToken      string
	DefaultInterval time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxRequestSize  int64
	Version         string
}

// DefaultConfig returns default API configuration
func DefaultConfig() Config {
	return Config{
		Address:         ":8080",
		DefaultInterval: time.Minute,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxRequestSize:  1 << 20,
	}
}

// Server provides the HTTP API
type Server struct {
	router  *mux.Router
	engine  Engine
	metrics http.Handler
	logger  *zap.Logger
	config  Config
}

// NewServer creates a server. metrics, when non-nil, is served at /metrics.
func NewServer(eng Engine, metrics http.Handler, logger *zap.Logger, config Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = defaults.DefaultInterval
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = defaults.MaxRequestSize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.AdminToken == "" {
		logger.Warn("No admin token configured, privileged endpoints will reject every request")
	}

	s := &Server{
		router:  mux.NewRouter(),
		engine:  eng,
		metrics: metrics,
		logger:  logger,
		config:  config,
	}
	s.setupRoutes()
	s.setupMiddleware()

	return s, nil
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.recordingMiddleware)

	v1.HandleFunc("/metrics/current", s.handleCurrentMetrics).Methods("GET")
	v1.HandleFunc("/metrics/history", s.handleMetricsHistory).Methods("GET")

	v1.HandleFunc("/alerts/active", s.handleActiveAlerts).Methods("GET")
	v1.HandleFunc("/alerts/history", s.handleAlertsHistory).Methods("GET")
	v1.HandleFunc("/alerts/{id}/resolve", s.handleResolveAlert).Methods("POST")

	v1.HandleFunc("/thresholds", s.handleGetThresholds).Methods("GET")
	v1.HandleFunc("/thresholds", s.handleUpdateThresholds).Methods("PATCH")
	v1.HandleFunc("/thresholds", s.handleResetThresholds).Methods("DELETE")

	v1.HandleFunc("/reports/performance", s.handlePerformanceReport).Methods("GET")

	v1.HandleFunc("/monitoring", s.handleStartMonitoring).Methods("POST")
	v1.HandleFunc("/monitoring", s.handleStopMonitoring).Methods("DELETE")

	v1.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.limitRequestSize)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.authMiddleware)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", s.config.Address))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
