// Package thresholds owns the live threshold set consulted by every tick
package thresholds

import (
	"context"
	"fmt"
	"sync"

	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// Manager guards the current threshold set. Writes require authorization.
type Manager struct {
	mu        sync.RWMutex
	current   domain.ThresholdSet
	authorize domain.Authorizer
	logger    *zap.Logger
}

// NewManager creates a manager starting from initial. A nil authorizer
// denies every privileged call.
func NewManager(initial domain.ThresholdSet, authorize domain.Authorizer, logger *zap.Logger) (*Manager, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial thresholds: %w: %w", domain.ErrValidation, err)
	}
	if authorize == nil {
		authorize = func(context.Context, domain.Action) bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		current:   initial,
		authorize: authorize,
		logger:    logger,
	}, nil
}

// Get returns a copy of the current thresholds
func (m *Manager) Get() domain.ThresholdSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update merges u into the current set, one category at a time. Categories
// absent from u are untouched. The merged result must validate: a category
// with critical below warning, or a negative bound, fails with
// ErrValidation and leaves the current set unchanged. Inverted bounds are
// never stored, even when the caller intends to swap them.
func (m *Manager) Update(ctx context.Context, u domain.ThresholdUpdate) (domain.ThresholdSet, error) {
	if !m.authorize(ctx, domain.ActionUpdateThresholds) {
		return domain.ThresholdSet{}, fmt.Errorf("update thresholds: %w", domain.ErrForbidden)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Apply(u)
	if err := next.Validate(); err != nil {
		return m.current, fmt.Errorf("update thresholds: %w: %w", domain.ErrValidation, err)
	}
	m.current = next

	m.logger.Info("Thresholds updated",
		zap.String("principal", principalID(ctx)),
		zap.Any("thresholds", next))
	return next, nil
}

// Reset restores the built-in defaults
func (m *Manager) Reset(ctx context.Context) (domain.ThresholdSet, error) {
	if !m.authorize(ctx, domain.ActionUpdateThresholds) {
		return domain.ThresholdSet{}, fmt.Errorf("reset thresholds: %w", domain.ErrForbidden)
	}

	m.mu.Lock()
	m.current = domain.DefaultThresholds()
	m.mu.Unlock()

	m.logger.Info("Thresholds reset to defaults", zap.String("principal", principalID(ctx)))
	return domain.DefaultThresholds(), nil
}

func principalID(ctx context.Context) string {
	if p, ok := domain.PrincipalFrom(ctx); ok {
		return p.ID
	}
	return "anonymous"
}
