package sinks

import (
	"context"

	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// LoggingSink writes alerts as structured log entries. Snapshots are
// logged at debug level.
type LoggingSink struct {
	logger *zap.Logger
}

// NewLoggingSink creates a logging sink
func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingSink{logger: logger}
}

// Name implements Sink
func (s *LoggingSink) Name() string { return "log" }

// Kinds implements Sink
func (s *LoggingSink) Kinds() []dispatch.Kind {
	return []dispatch.Kind{dispatch.KindMetrics, dispatch.KindAlerts}
}

// Handle implements Sink
func (s *LoggingSink) Handle(_ context.Context, ev dispatch.Event) error {
	switch ev.Kind {
	case dispatch.KindMetrics:
		snap := ev.Snapshot
		s.logger.Debug("Metrics sampled",
			zap.Time("timestamp", snap.Timestamp),
			zap.Float64("cpu_usage", snap.CPU.Usage),
			zap.Float64("memory_used_percent", snap.Memory.UsedPercent),
			zap.String("database_status", string(snap.Database.Status)),
			zap.Int64("requests", snap.Application.RequestsPerInterval),
			zap.Float64("error_rate_percent", snap.Application.ErrorRatePercent))

	case dispatch.KindAlerts:
		for _, a := range ev.Alerts {
			fields := []zap.Field{
				zap.String("id", a.ID),
				zap.String("type", a.Type.String()),
				zap.String("severity", a.Severity.String()),
				zap.Float64("value", a.Value),
				zap.Float64("threshold", a.Threshold),
				zap.Time("timestamp", a.Timestamp),
			}
			if a.Severity == domain.SeverityCritical {
				s.logger.Error(a.Message, fields...)
			} else {
				s.logger.Warn(a.Message, fields...)
			}
		}
	}
	return nil
}
