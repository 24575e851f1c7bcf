package workers

import (
	"context"
	"easy-chat/contract"
	"easy-chat/observability"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const defaultMetricInterval = 10 * time.Second

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

// HealthMonitoringWorker samples the server process on every tick.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	monitoring     *observability.MonitoringManager
	metricInterval time.Duration
	pid            int32
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	monitoring *observability.MonitoringManager,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	if metricInterval <= 0 {
		metricInterval = defaultMetricInterval
	}
	return &HealthMonitoringWorker{
		log:            log,
		monitoring:     monitoring,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	w.Sample(p)

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.Sample(p)
		}
	}
}

// Sample reads one snapshot of the process. Partial failures keep the other figures.
func (w *HealthMonitoringWorker) Sample(p *process.Process) {
	stats := observability.ProcessStats{SampledAt: time.Now().UTC()}
	if mem, err := p.MemoryInfo(); err != nil {
		w.log.Debug("Error while finding process ram usage", "err", err)
	} else {
		stats.RssBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err != nil {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	} else {
		stats.CpuPercent = cpu
	}
	if status, err := p.Status(); err != nil {
		w.log.Debug("Error while finding process status", "err", err)
	} else {
		stats.Status = status
	}
	w.monitoring.UpdateProcess(stats)
}
