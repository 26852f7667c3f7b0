package domain

import "time"

// AlertType is the resource category an alert belongs to
type AlertType string

const (
	AlertTypeCPU                  AlertType = "cpu"
	AlertTypeMemory               AlertType = "memory"
	AlertTypeDisk                 AlertType = "disk"
	AlertTypeDatabaseConnections  AlertType = "database_connections"
	AlertTypeDatabaseQueryTime    AlertType = "database_query_time"
	AlertTypeApplicationErrorRate AlertType = "application_error_rate"
)

func (at AlertType) String() string {
	return string(at)
}

// IsDatabase reports whether the alert type belongs to the database category
func (at AlertType) IsDatabase() bool {
	return at == AlertTypeDatabaseConnections || at == AlertTypeDatabaseQueryTime
}

// Severity of an alert.
//
// The full four-tier scale is part of the model, but threshold evaluation
// only ever produces SeverityMedium (warning bound) and SeverityCritical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string {
	return string(s)
}

// CandidateAlert is a threshold breach detected by the evaluator before
// deduplication decides whether it becomes an Alert.
type CandidateAlert struct {
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is a stored threshold breach. Resolved moves from false to true
// exactly once; after that the alert is immutable.
type Alert struct {
	ID         string     `json:"id"`
	Type       AlertType  `json:"type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
