package thresholds

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap/zaptest"
)

func adminCtx() context.Context {
	return domain.WithPrincipal(context.Background(), domain.Principal{ID: "ops", Roles: []string{domain.RoleAdmin}})
}

func newTestManager(t *testing.T) *Manager {
	m, err := NewManager(domain.DefaultThresholds(), domain.RoleAuthorizer(domain.RoleAdmin), zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestManagerUpdateIsShallowMerge(t *testing.T) {
	m := newTestManager(t)

	updated, err := m.Update(adminCtx(), domain.ThresholdUpdate{
		Memory: &domain.Threshold{Warning: 60, Critical: 75},
	})
	require.NoError(t, err)

	want := domain.DefaultThresholds()
	want.Memory = domain.Threshold{Warning: 60, Critical: 75}
	assert.Equal(t, want, updated)
	assert.Equal(t, want, m.Get())
}

func TestManagerRejectsUnauthorizedCallers(t *testing.T) {
	m := newTestManager(t)

	viewer := domain.WithPrincipal(context.Background(), domain.Principal{ID: "viewer"})
	_, err := m.Update(viewer, domain.ThresholdUpdate{CPU: &domain.Threshold{Warning: 1, Critical: 2}})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = m.Reset(context.Background())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, domain.DefaultThresholds(), m.Get())
}

func TestManagerNilAuthorizerDeniesEverything(t *testing.T) {
	m, err := NewManager(domain.DefaultThresholds(), nil, nil)
	require.NoError(t, err)

	_, err = m.Update(adminCtx(), domain.ThresholdUpdate{CPU: &domain.Threshold{Warning: 1, Critical: 2}})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestManagerRejectsInvalidBounds(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(adminCtx(), domain.ThresholdUpdate{
		CPU:    &domain.Threshold{Warning: 90, Critical: 70},
		Memory: &domain.Threshold{Warning: -1, Critical: 50},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "cpu: critical (70) must be >= warning (90)")
	assert.Contains(t, err.Error(), "memory: warning must not be negative")

	assert.Equal(t, domain.DefaultThresholds(), m.Get(), "failed update leaves state untouched")
}

func TestManagerReset(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(adminCtx(), domain.ThresholdUpdate{CPU: &domain.Threshold{Warning: 10, Critical: 20}})
	require.NoError(t, err)

	reset, err := m.Reset(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultThresholds(), reset)
	assert.Equal(t, domain.DefaultThresholds(), m.Get())
}

func TestNewManagerValidatesInitialSet(t *testing.T) {
	initial := domain.DefaultThresholds()
	initial.Disk = domain.Threshold{Warning: 99, Critical: 1}

	_, err := NewManager(initial, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParse(t *testing.T) {
	u, err := Parse([]byte("cpu:\n  warning: 75\n  critical: 92\n"))
	require.NoError(t, err)
	require.NotNil(t, u.CPU)
	assert.Equal(t, domain.Threshold{Warning: 75, Critical: 92}, *u.CPU)
	assert.Nil(t, u.Memory)

	u, err = Parse(nil)
	require.NoError(t, err)
	assert.True(t, u.IsEmpty())

	_, err = Parse([]byte("gpu:\n  warning: 1\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWatcherAppliesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cpu:\n  warning: 50\n  critical: 60\n"), 0o644))

	m := newTestManager(t)
	w := NewWatcher(path, m, zaptest.NewLogger(t))
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Equal(t, domain.Threshold{Warning: 50, Critical: 60}, m.Get().CPU)

	require.NoError(t, os.WriteFile(path, []byte("memory:\n  warning: 40\n  critical: 45\n"), 0o644))

	require.Eventually(t, func() bool {
		return m.Get().Memory == domain.Threshold{Warning: 40, Critical: 45}
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, domain.Threshold{Warning: 50, Critical: 60}, m.Get().CPU)
}

func TestWatcherStartFailsOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cpu:\n  warning: 90\n  critical: 10\n"), 0o644))

	w := NewWatcher(path, newTestManager(t), zaptest.NewLogger(t))
	err := w.Start()
	assert.ErrorIs(t, err, domain.ErrValidation)
	w.Stop()
}
