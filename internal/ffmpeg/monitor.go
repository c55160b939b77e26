package ffmpeg

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is one resource-usage sample of the ffmpeg process.
type ProcessStats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	VMSBytes   uint64  `json:"vms_bytes"`
}

// ProcessMonitor samples a running ffmpeg process once per second and keeps
// the latest reading available. Sampling stops on its own when the process
// exits.
type ProcessMonitor struct {
	pid      int
	interval time.Duration
	log      *slog.Logger

	mu    sync.RWMutex
	stats ProcessStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int, logger *slog.Logger) *ProcessMonitor {
	return &ProcessMonitor{
		pid:      pid,
		interval: time.Second,
		log:      logger,
		stats:    ProcessStats{PID: pid},
	}
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	pm.cancel = cancel

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		pm.loop(ctx)
	}()
}

// Stop ends sampling and waits for the loop to exit.
func (pm *ProcessMonitor) Stop() {
	if pm.cancel != nil {
		pm.cancel()
	}
	pm.wg.Wait()
}

// Stats returns the latest sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) loop(ctx context.Context) {
	proc, err := process.NewProcessWithContext(ctx, int32(pm.pid))
	if err != nil {
		pm.log.Debug("cannot monitor ffmpeg process", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !pm.sample(ctx, proc) {
				return
			}
		}
	}
}

// sample takes one reading; returns false once the process is gone.
func (pm *ProcessMonitor) sample(ctx context.Context, proc *process.Process) bool {
	running, err := proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}

	var stats ProcessStats
	stats.PID = pm.pid

	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = pct
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		stats.RSSBytes = mi.RSS
		stats.VMSBytes = mi.VMS
	}

	pm.mu.Lock()
	pm.stats = stats
	pm.mu.Unlock()

	pm.log.Debug("ffmpeg resource usage",
		slog.Int("pid", stats.PID),
		slog.Float64("cpu_percent", stats.CPUPercent),
		slog.Uint64("rss_bytes", stats.RSSBytes),
	)
	return true
}
