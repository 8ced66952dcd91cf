package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker periodically logs the health of the relay process together with
// the relay counters.
type HeartbeatWorker struct {
	log      *slog.Logger
	stats    contract.StatsProvider
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, stats contract.StatsProvider, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, stats: stats, interval: interval}
}

// Run logs process metrics (CPU, RAM, Status) and relay stats every interval.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.stats.Stats()
			w.log.Info("Heartbeat",
				"pid", p.Pid,
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"connections", stats.Connections,
				"rooms", stats.Rooms,
				"online", stats.Online,
				"known", stats.Known,
				"tracked_messages", stats.TrackedMessages,
				"queued", stats.Queued,
				"queue_capacity", stats.QueueCapacity)
			if stats.QueueCapacity > 0 && stats.Queued*10 >= stats.QueueCapacity*9 {
				w.log.Warn("Inbound queue almost full", "queued", stats.Queued, "capacity", stats.QueueCapacity)
			}
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
