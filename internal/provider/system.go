package provider

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// SystemMetrics are the host and process figures of one sample. Uptime is
// filled in by the Provider.
type SystemMetrics struct {
	CPU     domain.CPUMetrics
	Memory  domain.MemoryMetrics
	Process domain.ProcessMetrics
}

// SystemReader reads host and process figures
type SystemReader interface {
	Read(ctx context.Context) (SystemMetrics, error)
}

// HostReader reads figures from the operating system via gopsutil.
// CPU and memory failures fail the read; load average and process memory
// are best effort since not every platform reports them.
type HostReader struct {
	pid    int32
	logger *zap.Logger
}

// NewHostReader creates a reader for the current process
func NewHostReader(logger *zap.Logger) *HostReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostReader{
		pid:    int32(os.Getpid()),
		logger: logger,
	}
}

// Read samples CPU, memory and process figures
func (r *HostReader) Read(ctx context.Context) (SystemMetrics, error) {
	var m SystemMetrics

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return m, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(pct) > 0 {
		m.CPU.Usage = pct[0]
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		m.CPU.CoreCount = cores
	} else {
		m.CPU.CoreCount = runtime.NumCPU()
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		m.CPU.LoadAverages = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	} else {
		r.logger.Debug("Load average unavailable", zap.Error(err))
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return m, fmt.Errorf("failed to read memory usage: %w", err)
	}
	m.Memory = domain.MemoryMetrics{
		Total:       vm.Total,
		Free:        vm.Available,
		Used:        vm.Used,
		UsedPercent: vm.UsedPercent,
	}

	m.Process = domain.ProcessMetrics{
		PID:            int(r.pid),
		RuntimeVersion: runtime.Version(),
	}
	if proc, err := process.NewProcessWithContext(ctx, r.pid); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			m.Process.MemoryUsage = info.RSS
		} else {
			r.logger.Debug("Process memory unavailable", zap.Error(err))
		}
	}

	return m, nil
}
