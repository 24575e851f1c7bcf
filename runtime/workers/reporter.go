package workers

import (
	"context"
	"easy-chat/contract"
	"easy-chat/observability"
	"log/slog"
	"time"
)

// QueueGauge exposes the fill level of a buffered queue.
type QueueGauge interface {
	Len() int
	Cap() int
}

// ReporterWorker periodically logs a one-line summary of the room and its counters.
type ReporterWorker struct {
	log        *slog.Logger
	registry   contract.IRegistry
	monitoring *observability.MonitoringManager
	queue      QueueGauge
	interval   time.Duration
	startTime  time.Time
}

// NewReporterWorker queue may be nil when nothing is buffered.
func NewReporterWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	monitoring *observability.MonitoringManager,
	queue QueueGauge,
	interval time.Duration,
) *ReporterWorker {
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	return &ReporterWorker{
		log:        log,
		registry:   registry,
		monitoring: monitoring,
		queue:      queue,
		interval:   interval,
		startTime:  time.Now(),
	}
}

// Run starts the reporting loop until context cancellation, with a final report on the way out.
func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Report()
			w.log.Debug("Reporter stopped")
			return nil
		case <-ticker.C:
			w.Report()
		}
	}
}

func (w *ReporterWorker) Report() {
	room := w.registry.Stats()
	stats := w.monitoring.GetLatest()
	attrs := []any{
		"uptime", time.Since(w.startTime).Round(time.Second).String(),
		"users", room.UserCount,
		"logged_events", room.MessageCount,
		"messages", stats.Messages,
		"rejected_messages", stats.RejectedMessages,
		"delivery_failures", stats.DeliveryFailures,
		"rss_mb", stats.Process.RssBytes / 1024 / 1024,
		"goroutines", stats.Process.Goroutines,
	}
	if w.queue != nil {
		attrs = append(attrs,
			"archive_queue", w.queue.Len(),
			"archive_capacity", w.queue.Cap(),
			"archive_dropped", stats.ArchiveDropped,
		)
	}
	w.log.Info("Chat stats", attrs...)
}
