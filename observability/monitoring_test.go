package observability

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Counters(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(logs.GetLoggerFromLevel(slog.LevelDebug))

	// When counters are incremented
	mm.IncrJoins()
	mm.IncrJoins()
	mm.IncrLeaves()
	mm.IncrDeliveryFailures()
	mm.UpdateProcess(ProcessStats{RssBytes: 42, Status: "R"})

	// Then the snapshot reflects them
	latest := mm.GetLatest()
	req.Equal(uint64(2), latest.Joins)
	req.Equal(uint64(1), latest.Leaves)
	req.Equal(uint64(1), latest.DeliveryFailures)
	req.Equal(uint64(42), latest.Process.RssBytes)
	req.Positive(latest.Process.Goroutines)
}

func TestMonitoringManager_Nil_Is_Noop(t *testing.T) {
	var mm *MonitoringManager
	require.NotPanics(t, func() {
		mm.IncrMessages()
		mm.UpdateProcess(ProcessStats{})
		_ = mm.GetLatest()
	})
}
