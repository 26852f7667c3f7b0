// Package alerts deduplicates candidate alerts and keeps a bounded alert history
package alerts

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

const (
	// DefaultCapacity bounds the alert history
	DefaultCapacity = 1000

	// DefaultSuppressionWindow collapses repeated candidates of the same kind
	DefaultSuppressionWindow = 5 * time.Minute
)

// Config configures a Store
type Config struct {
	Capacity          int
	SuppressionWindow time.Duration
	Clock             clock.Clock
	Logger            *zap.Logger
}

// Store holds alerts oldest first. Eviction ignores resolution state.
type Store struct {
	mu       sync.RWMutex
	alerts   []domain.Alert
	capacity int
	window   time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	created    atomic.Int64
	suppressed atomic.Int64
	resolved   atomic.Int64
	evicted    atomic.Int64
}

// Stats are lifetime counters of a Store
type Stats struct {
	Created    int64 `json:"created"`
	Suppressed int64 `json:"suppressed"`
	Resolved   int64 `json:"resolved"`
	Evicted    int64 `json:"evicted"`
	Retained   int   `json:"retained"`
	Active     int   `json:"active"`
}

// NewStore creates an alert store, filling in defaults for unset fields
func NewStore(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultSuppressionWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Store{
		alerts:   make([]domain.Alert, 0, cfg.Capacity),
		capacity: cfg.Capacity,
		window:   cfg.SuppressionWindow,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Add records a candidate unless an unresolved alert of the same type and
// severity was recorded within the suppression window of the candidate's
// timestamp. It returns the stored alert and true, or false when suppressed.
func (s *Store) Add(candidate domain.CandidateAlert) (domain.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		existing := &s.alerts[i]
		if existing.Resolved || existing.Type != candidate.Type || existing.Severity != candidate.Severity {
			continue
		}
		if absDuration(candidate.Timestamp.Sub(existing.Timestamp)) < s.window {
			s.suppressed.Add(1)
			s.logger.Debug("Alert suppressed",
				zap.String("type", candidate.Type.String()),
				zap.String("severity", candidate.Severity.String()),
				zap.String("existing_id", existing.ID))
			return domain.Alert{}, false
		}
	}

	alert := domain.Alert{
		ID:        uuid.NewString(),
		Type:      candidate.Type,
		Severity:  candidate.Severity,
		Message:   candidate.Message,
		Value:     candidate.Value,
		Threshold: candidate.Threshold,
		Timestamp: candidate.Timestamp,
	}

	if len(s.alerts) >= s.capacity {
		copy(s.alerts, s.alerts[1:])
		s.alerts[len(s.alerts)-1] = alert
		s.evicted.Add(1)
	} else {
		s.alerts = append(s.alerts, alert)
	}
	s.created.Add(1)

	return alert, true
}

// Resolve marks an alert resolved. Resolving twice is an error.
func (s *Store) Resolve(id string) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		a := &s.alerts[i]
		if a.ID != id {
			continue
		}
		if a.Resolved {
			return *a, fmt.Errorf("alert %s: %w", id, domain.ErrAlreadyResolved)
		}
		now := s.clock.Now()
		a.Resolved = true
		a.ResolvedAt = &now
		s.resolved.Add(1)
		return *a, nil
	}

	return domain.Alert{}, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
}

// Active returns all unresolved alerts, oldest first
func (s *Store) Active() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Alert
	for _, a := range s.alerts {
		if !a.Resolved {
			result = append(result, a)
		}
	}
	return result
}

// History returns alerts inside r, newest first
func (s *Store) History(r domain.TimeRange) []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Alert, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if r.Contains(s.alerts[i].Timestamp) {
			result = append(result, s.alerts[i])
		}
	}
	return result
}

// InRange returns alerts inside r, oldest first
func (s *Store) InRange(r domain.TimeRange) []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Alert, 0)
	for _, a := range s.alerts {
		if r.Contains(a.Timestamp) {
			result = append(result, a)
		}
	}
	return result
}

// Stats returns lifetime counters and current sizes
func (s *Store) Stats() Stats {
	s.mu.RLock()
	retained := len(s.alerts)
	active := 0
	for _, a := range s.alerts {
		if !a.Resolved {
			active++
		}
	}
	s.mu.RUnlock()

	return Stats{
		Created:    s.created.Load(),
		Suppressed: s.suppressed.Load(),
		Resolved:   s.resolved.Load(),
		Evicted:    s.evicted.Load(),
		Retained:   retained,
		Active:     active,
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
