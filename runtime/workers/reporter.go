package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-sync/observability"
)

// Reporter periodically logs reconciliation counters together with the
// process's own resource usage (RSS, CPU).
type Reporter struct {
	log      *slog.Logger
	interval time.Duration
	monitor  *observability.Monitor
}

func NewReporter(log *slog.Logger, interval time.Duration, monitor *observability.Monitor) *Reporter {
	return &Reporter{log: log, interval: interval, monitor: monitor}
}

func (w *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := w.monitor.Snapshot()
			rss, cpu := selfStats(proc)
			w.log.Info("Sync telemetry",
				"room_snapshots", stats.RoomSnapshots,
				"messages_merged", stats.MessagesMerged,
				"duplicates_dropped", stats.DuplicatesDropped,
				"late_drops", stats.LateDrops,
				"receipts_applied", stats.ReceiptsApplied,
				"sync_errors", stats.SyncErrors,
				"events_dropped", stats.EventsDropped,
				"command_retries", stats.CommandRetries,
				"rss_mb", rss/(1024*1024),
				"cpu_percent", cpu,
			)
		}
	}
}

func selfStats(proc *process.Process) (rss uint64, cpu float64) {
	if mem, err := proc.MemoryInfo(); err == nil {
		rss = mem.RSS
	}
	if pct, err := proc.CPUPercent(); err == nil {
		cpu = pct
	}
	return rss, cpu
}
