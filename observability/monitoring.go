package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessStats is the latest sample of the server process itself.
type ProcessStats struct {
	RssBytes   uint64    `json:"rss_bytes"`
	CpuPercent float64   `json:"cpu_percent"`
	Status     string    `json:"status"`
	Goroutines int       `json:"goroutines"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	SampledAt  time.Time `json:"sampled_at"`
}

// MonitoringStats aggregates every counter exposed on the stats endpoint.
type MonitoringStats struct {
	Joins            uint64       `json:"joins"`
	RejectedJoins    uint64       `json:"rejected_joins"`
	Leaves           uint64       `json:"leaves"`
	Messages         uint64       `json:"messages"`
	RejectedMessages uint64       `json:"rejected_messages"`
	MalformedFrames  uint64       `json:"malformed_frames"`
	DeliveryFailures uint64       `json:"delivery_failures"`
	ArchiveDropped   uint64       `json:"archive_dropped"`
	Process          ProcessStats `json:"process"`
}

// MonitoringManager collects runtime counters.
// A nil *MonitoringManager is valid and records nothing.
type MonitoringManager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	process ProcessStats

	joins            uint64
	rejectedJoins    uint64
	leaves           uint64
	messages         uint64
	rejectedMessages uint64
	malformedFrames  uint64
	deliveryFailures uint64
	archiveDropped   uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) IncrJoins() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.joins, 1)
}

func (mm *MonitoringManager) IncrRejectedJoins() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.rejectedJoins, 1)
}

func (mm *MonitoringManager) IncrLeaves() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.leaves, 1)
}

func (mm *MonitoringManager) IncrMessages() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.messages, 1)
}

func (mm *MonitoringManager) IncrRejectedMessages() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.rejectedMessages, 1)
}

func (mm *MonitoringManager) IncrMalformedFrames() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.malformedFrames, 1)
}

func (mm *MonitoringManager) IncrDeliveryFailures() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.deliveryFailures, 1)
}

func (mm *MonitoringManager) IncrArchiveDropped() {
	if mm == nil {
		return
	}
	atomic.AddUint64(&mm.archiveDropped, 1)
}

// UpdateProcess stores a fresh process sample and completes it with Go runtime figures.
func (mm *MonitoringManager) UpdateProcess(stats ProcessStats) {
	if mm == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	stats.Goroutines = runtime.NumGoroutine()

	mm.mu.Lock()
	mm.process = stats
	mm.mu.Unlock()

	mm.log.Debug("Process stats updated",
		"rss_bytes", stats.RssBytes,
		"cpu_percent", stats.CpuPercent,
		"goroutines", stats.Goroutines,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	if mm == nil {
		return MonitoringStats{}
	}
	mm.mu.RLock()
	process := mm.process
	mm.mu.RUnlock()

	return MonitoringStats{
		Joins:            atomic.LoadUint64(&mm.joins),
		RejectedJoins:    atomic.LoadUint64(&mm.rejectedJoins),
		Leaves:           atomic.LoadUint64(&mm.leaves),
		Messages:         atomic.LoadUint64(&mm.messages),
		RejectedMessages: atomic.LoadUint64(&mm.rejectedMessages),
		MalformedFrames:  atomic.LoadUint64(&mm.malformedFrames),
		DeliveryFailures: atomic.LoadUint64(&mm.deliveryFailures),
		ArchiveDropped:   atomic.LoadUint64(&mm.archiveDropped),
		Process:          process,
	}
}
