package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yairfalse/vigil/internal/monitoring/evaluator"
	"github.com/yairfalse/vigil/pkg/domain"
)

func newSnapshotCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take one sample and print it with any threshold violations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.App.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			prov, _, closeProbe, err := buildProvider(cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
			if err != nil {
				return err
			}
			defer closeProbe()

			snap, err := prov.Sample(cmd.Context())
			if err != nil {
				return err
			}
			candidates := evaluator.Evaluate(snap, cfg.Thresholds)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"snapshot":   snap,
					"violations": candidates,
				})
			}
			printSnapshot(cmd.OutOrStdout(), snap, candidates)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a summary")
	return cmd
}

func printSnapshot(w io.Writer, snap domain.Snapshot, candidates []domain.CandidateAlert) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Snapshot at %s\n", snap.Timestamp.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(w, "  CPU:          %.1f%% (%d cores, load %.2f %.2f %.2f)\n",
		snap.CPU.Usage, snap.CPU.CoreCount,
		snap.CPU.LoadAverages[0], snap.CPU.LoadAverages[1], snap.CPU.LoadAverages[2])
	fmt.Fprintf(w, "  Memory:       %.1f%% of %d MiB\n", snap.Memory.UsedPercent, snap.Memory.Total>>20)
	fmt.Fprintf(w, "  Process:      pid %d, %d MiB, up %s\n",
		snap.Process.PID, snap.Process.MemoryUsage>>20, snap.Process.Uptime.Round(1e9))
	fmt.Fprintf(w, "  Database:     %s", snap.Database.Status)
	if snap.Database.Status == domain.DatabaseConnected {
		fmt.Fprintf(w, " (pool %.0f%%, avg query %.1fms, %d slow)",
			snap.Database.PoolUtilizationPercent, snap.Database.AverageQueryTimeMs, snap.Database.SlowQueries)
	}
	fmt.Fprintln(w)

	if len(candidates) == 0 {
		color.New(color.FgGreen).Fprintln(w, "No thresholds exceeded")
		return
	}
	for _, c := range candidates {
		severity := color.New(color.FgYellow)
		if c.Severity == domain.SeverityCritical {
			severity = color.New(color.FgRed, color.Bold)
		}
		severity.Fprintf(w, "[%s] ", c.Severity)
		fmt.Fprintln(w, c.Message)
	}
}
