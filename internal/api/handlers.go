package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// handleCurrentMetrics handles GET /api/v1/metrics/current
func (s *Server) handleCurrentMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.CurrentMetrics(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

// handleMetricsHistory handles GET /api/v1/metrics/history?start&end
func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	tr, err := parseTimeRange(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.engine.MetricsHistory(tr))
}

// handleActiveAlerts handles GET /api/v1/alerts/active
func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	active := s.engine.ActiveAlerts()
	if active == nil {
		active = []domain.Alert{}
	}
	s.respondJSON(w, http.StatusOK, active)
}

// handleAlertsHistory handles GET /api/v1/alerts/history?start&end
func (s *Server) handleAlertsHistory(w http.ResponseWriter, r *http.Request) {
	tr, err := parseTimeRange(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.engine.AlertsHistory(tr))
}

// handleResolveAlert handles POST /api/v1/alerts/{id}/resolve
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.ResolveAlert(mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, alert)
}

// handleGetThresholds handles GET /api/v1/thresholds
func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.Thresholds())
}

// handleUpdateThresholds handles PATCH /api/v1/thresholds
func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var update domain.ThresholdUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid threshold format")
		return
	}
	if update.IsEmpty() {
		s.respondError(w, http.StatusBadRequest, "No threshold categories supplied")
		return
	}

	updated, err := s.engine.UpdateThresholds(r.Context(), update)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

// handleResetThresholds handles DELETE /api/v1/thresholds
func (s *Server) handleResetThresholds(w http.ResponseWriter, r *http.Request) {
	reset, err := s.engine.ResetThresholds(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reset)
}

// handlePerformanceReport handles GET /api/v1/reports/performance?start&end
func (s *Server) handlePerformanceReport(w http.ResponseWriter, r *http.Request) {
	tr, err := parseTimeRange(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	report, err := s.engine.GeneratePerformanceReport(r.Context(), tr.Start, tr.End)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

type startRequest struct {
	Interval string `json:"interval"`
}

// handleStartMonitoring handles POST /api/v1/monitoring
func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	interval := s.config.DefaultInterval
	if req.Interval != "" {
		parsed, err := time.ParseDuration(req.Interval)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid interval %q", req.Interval))
			return
		}
		interval = parsed
	}

	if err := s.engine.StartMonitoring(interval); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status":   "started",
		"interval": interval.String(),
	})
}

// handleStopMonitoring handles DELETE /api/v1/monitoring
func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StopMonitoring(); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    s.config.Version,
		"monitoring": s.engine.Stats(),
	})
}

// Helper methods

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		message = "Internal server error"
	}
	s.respondError(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyRunning),
		errors.Is(err, domain.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseTimeRange reads optional RFC3339 start and end query parameters
func parseTimeRange(r *http.Request) (domain.TimeRange, error) {
	var tr domain.TimeRange
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"start", &tr.Start},
		{"end", &tr.End},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return tr, fmt.Errorf("invalid %s %q, expected RFC3339: %w", p.name, v, domain.ErrValidation)
		}
		*p.dst = t
	}
	return tr, nil
}
