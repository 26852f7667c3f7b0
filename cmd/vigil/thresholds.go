package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/internal/monitoring/thresholds"
	"github.com/yairfalse/vigil/pkg/domain"
)

func newThresholdsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds [file]",
		Short: "Validate a thresholds file and print the effective thresholds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			set := cfg.Thresholds
			if len(args) == 1 {
				update, err := thresholds.LoadFile(args[0])
				if err != nil {
					return err
				}
				set = set.Apply(update)
				if err := set.Validate(); err != nil {
					return fmt.Errorf("%s: %w: %w", args[0], domain.ErrValidation, err)
				}
			}

			printThresholds(cmd.OutOrStdout(), set)
			return nil
		},
	}
}

func printThresholds(w io.Writer, set domain.ThresholdSet) {
	header := color.New(color.Bold)
	warn := color.New(color.FgYellow)
	crit := color.New(color.FgRed)

	header.Fprintf(w, "%-24s %10s %10s\n", "CATEGORY", "WARNING", "CRITICAL")
	for _, row := range []struct {
		name string
		t    domain.Threshold
	}{
		{"cpu", set.CPU},
		{"memory", set.Memory},
		{"disk", set.Disk},
		{"database_connections", set.DatabaseConnections},
		{"database_query_time", set.DatabaseQueryTime},
		{"application_error_rate", set.ApplicationErrorRate},
	} {
		fmt.Fprintf(w, "%-24s ", row.name)
		warn.Fprintf(w, "%10.1f ", row.t.Warning)
		crit.Fprintf(w, "%10.1f\n", row.t.Critical)
	}
}
