package domain

import "time"

// DatabaseStatus is the connectivity state reported by the database probe
type DatabaseStatus string

const (
	DatabaseConnected    DatabaseStatus = "connected"
	DatabaseDisconnected DatabaseStatus = "disconnected"
	DatabaseError        DatabaseStatus = "error"
)

// Snapshot is one point-in-time capture of every tracked metric.
// It is built once per tick and never modified afterwards; all fields are
// values so copies never share state.
type Snapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	CPU         CPUMetrics         `json:"cpu"`
	Memory      MemoryMetrics      `json:"memory"`
	Process     ProcessMetrics     `json:"process"`
	Database    DatabaseMetrics    `json:"database"`
	Application ApplicationMetrics `json:"application"`
}

// CPUMetrics holds host CPU figures
type CPUMetrics struct {
	Usage        float64    `json:"usage"`
	LoadAverages [3]float64 `json:"load_averages"`
	CoreCount    int        `json:"core_count"`
}

// MemoryMetrics holds host memory figures in bytes
type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// ProcessMetrics describes the monitored process itself
type ProcessMetrics struct {
	MemoryUsage    uint64        `json:"memory_usage"`
	Uptime         time.Duration `json:"uptime"`
	PID            int           `json:"pid"`
	RuntimeVersion string        `json:"runtime_version"`
}

// DatabaseMetrics is the database section of a snapshot
type DatabaseMetrics struct {
	Status                 DatabaseStatus `json:"status"`
	ConnectionCount        int            `json:"connection_count"`
	ActiveConnections      int            `json:"active_connections"`
	SlowQueries            int            `json:"slow_queries"`
	AverageQueryTimeMs     float64        `json:"average_query_time_ms"`
	PoolUtilizationPercent float64        `json:"pool_utilization_percent"`
}

// DegradedDatabaseMetrics is substituted when the database probe fails
func DegradedDatabaseMetrics() DatabaseMetrics {
	return DatabaseMetrics{Status: DatabaseError}
}

// ApplicationMetrics holds application level counters for one interval
type ApplicationMetrics struct {
	Uptime              time.Duration `json:"uptime"`
	Version             string        `json:"version"`
	Environment         string        `json:"environment"`
	RequestsPerInterval int64         `json:"requests_per_interval"`
	ErrorRatePercent    float64       `json:"error_rate_percent"`
}

// TimeRange bounds a query. A zero Start or End leaves that side open.
// Both bounds are inclusive.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}
