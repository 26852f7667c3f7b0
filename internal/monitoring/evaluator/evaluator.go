// Package evaluator maps a snapshot and a threshold set to candidate alerts
package evaluator

import (
	"fmt"

	"github.com/yairfalse/vigil/pkg/domain"
)

// check describes one monitored metric
type check struct {
	alertType domain.AlertType
	label     string
	unit      string
	value     func(*domain.Snapshot) float64
	threshold func(*domain.ThresholdSet) domain.Threshold
}

// checks is evaluated in order, so candidates always come out in this order
var checks = []check{
	{
		alertType: domain.AlertTypeCPU,
		label:     "CPU usage",
		unit:      "%",
		value:     func(s *domain.Snapshot) float64 { return s.CPU.Usage },
		threshold: func(t *domain.ThresholdSet) domain.Threshold { return t.CPU },
	},
	{
		alertType: domain.AlertTypeMemory,
		label:     "Memory usage",
		unit:      "%",
		value:     func(s *domain.Snapshot) float64 { return s.Memory.UsedPercent },
		threshold: func(t *domain.ThresholdSet) domain.Threshold { return t.Memory },
	},
	{
		alertType: domain.AlertTypeDatabaseConnections,
		label:     "Database pool utilization",
		unit:      "%",
		value:     func(s *domain.Snapshot) float64 { return s.Database.PoolUtilizationPercent },
		threshold: func(t *domain.ThresholdSet) domain.Threshold { return t.DatabaseConnections },
	},
	{
		alertType: domain.AlertTypeDatabaseQueryTime,
		label:     "Average database query time",
		unit:      "ms",
		value:     func(s *domain.Snapshot) float64 { return s.Database.AverageQueryTimeMs },
		threshold: func(t *domain.ThresholdSet) domain.Threshold { return t.DatabaseQueryTime },
	},
	{
		alertType: domain.AlertTypeApplicationErrorRate,
		label:     "Application error rate",
		unit:      "%",
		value:     func(s *domain.Snapshot) float64 { return s.Application.ErrorRatePercent },
		threshold: func(t *domain.ThresholdSet) domain.Threshold { return t.ApplicationErrorRate },
	},
}

// Evaluate returns at most one candidate per monitored metric. A value at or
// above the critical bound yields a critical candidate; otherwise a value at
// or above the warning bound yields a medium one. Evaluate has no side
// effects and always returns the same result for the same inputs.
func Evaluate(snapshot domain.Snapshot, thresholds domain.ThresholdSet) []domain.CandidateAlert {
	var candidates []domain.CandidateAlert

	for _, c := range checks {
		value := c.value(&snapshot)
		bounds := c.threshold(&thresholds)

		var (
			severity domain.Severity
			limit    float64
			level    string
		)
		switch {
		case value >= bounds.Critical:
			severity, limit, level = domain.SeverityCritical, bounds.Critical, "critical"
		case value >= bounds.Warning:
			severity, limit, level = domain.SeverityMedium, bounds.Warning, "high"
		default:
			continue
		}

		candidates = append(candidates, domain.CandidateAlert{
			Type:      c.alertType,
			Severity:  severity,
			Message:   fmt.Sprintf("%s is %s: %.1f%s (threshold: %.1f%s)", c.label, level, value, c.unit, limit, c.unit),
			Value:     value,
			Threshold: limit,
			Timestamp: snapshot.Timestamp,
		})
	}

	return candidates
}
