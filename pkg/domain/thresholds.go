package domain

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Threshold is a (warning, critical) bound pair for one resource category
type Threshold struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Validate checks the bound pair
func (t Threshold) Validate(category string) error {
	var result *multierror.Error
	if t.Warning < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: warning must not be negative, got %v", category, t.Warning))
	}
	if t.Critical < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: critical must not be negative, got %v", category, t.Critical))
	}
	if t.Critical < t.Warning {
		result = multierror.Append(result, fmt.Errorf("%s: critical (%v) must be >= warning (%v)", category, t.Critical, t.Warning))
	}
	return result.ErrorOrNil()
}

// ThresholdSet holds the bounds for every monitored resource category.
// Disk is configurable but no snapshot field is evaluated against it.
type ThresholdSet struct {
	CPU                  Threshold `json:"cpu" yaml:"cpu"`
	Memory               Threshold `json:"memory" yaml:"memory"`
	Disk                 Threshold `json:"disk" yaml:"disk"`
	DatabaseConnections  Threshold `json:"database_connections" yaml:"database_connections"`
	DatabaseQueryTime    Threshold `json:"database_query_time" yaml:"database_query_time"`
	ApplicationErrorRate Threshold `json:"application_error_rate" yaml:"application_error_rate"`
}

// DefaultThresholds returns the built-in threshold set
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		CPU:                  Threshold{Warning: 70, Critical: 90},
		Memory:               Threshold{Warning: 80, Critical: 95},
		Disk:                 Threshold{Warning: 85, Critical: 95},
		DatabaseConnections:  Threshold{Warning: 80, Critical: 95},
		DatabaseQueryTime:    Threshold{Warning: 1000, Critical: 5000},
		ApplicationErrorRate: Threshold{Warning: 5, Critical: 10},
	}
}

// Validate checks every category and reports all problems at once
func (s ThresholdSet) Validate() error {
	var result *multierror.Error
	for _, c := range []struct {
		name string
		t    Threshold
	}{
		{"cpu", s.CPU},
		{"memory", s.Memory},
		{"disk", s.Disk},
		{"database_connections", s.DatabaseConnections},
		{"database_query_time", s.DatabaseQueryTime},
		{"application_error_rate", s.ApplicationErrorRate},
	} {
		if err := c.t.Validate(c.name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// ThresholdUpdate is a partial threshold set. Nil categories are left
// untouched when applied; a non-nil category replaces the whole pair.
type ThresholdUpdate struct {
	CPU                  *Threshold `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Memory               *Threshold `json:"memory,omitempty" yaml:"memory,omitempty"`
	Disk                 *Threshold `json:"disk,omitempty" yaml:"disk,omitempty"`
	DatabaseConnections  *Threshold `json:"database_connections,omitempty" yaml:"database_connections,omitempty"`
	DatabaseQueryTime    *Threshold `json:"database_query_time,omitempty" yaml:"database_query_time,omitempty"`
	ApplicationErrorRate *Threshold `json:"application_error_rate,omitempty" yaml:"application_error_rate,omitempty"`
}

// IsEmpty reports whether the update touches no category
func (u ThresholdUpdate) IsEmpty() bool {
	return u.CPU == nil && u.Memory == nil && u.Disk == nil &&
		u.DatabaseConnections == nil && u.DatabaseQueryTime == nil && u.ApplicationErrorRate == nil
}

// Apply returns a copy of s with the categories present in u replaced
func (s ThresholdSet) Apply(u ThresholdUpdate) ThresholdSet {
	if u.CPU != nil {
		s.CPU = *u.CPU
	}
	if u.Memory != nil {
		s.Memory = *u.Memory
	}
	if u.Disk != nil {
		s.Disk = *u.Disk
	}
	if u.DatabaseConnections != nil {
		s.DatabaseConnections = *u.DatabaseConnections
	}
	if u.DatabaseQueryTime != nil {
		s.DatabaseQueryTime = *u.DatabaseQueryTime
	}
	if u.ApplicationErrorRate != nil {
		s.ApplicationErrorRate = *u.ApplicationErrorRate
	}
	return s
}

// FullUpdate turns a complete set into an update touching every category
func (s ThresholdSet) FullUpdate() ThresholdUpdate {
	return ThresholdUpdate{
		CPU:                  &s.CPU,
		Memory:               &s.Memory,
		Disk:                 &s.Disk,
		DatabaseConnections:  &s.DatabaseConnections,
		DatabaseQueryTime:    &s.DatabaseQueryTime,
		ApplicationErrorRate: &s.ApplicationErrorRate,
	}
}
