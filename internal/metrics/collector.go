// Package metrics logs process and system resource usage while a run is in
// progress and reports peak memory at the end.
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is one sample of resource usage
type Snapshot struct {
	CPUPercent        float64 // system wide, 0-100
	ProcessCPUPercent float64 // per core, can exceed 100 on multi-core
	RSSBytes          uint64
	MemoryPercent     float64 // system wide
	DiskReadBps       float64
	DiskWriteBps      float64
	Timestamp         time.Time
}

// Collector samples resource usage at a fixed interval
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time

	mu      sync.Mutex
	last    Snapshot
	peakRSS uint64
}

// NewCollector creates a collector. Intervals below one second disable
// periodic logging; Report still works.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{interval: interval, logger: logger, proc: proc}
}

// Enabled reports whether Start logs periodically
func (c *Collector) Enabled() bool {
	return c.interval >= time.Second
}

// Start samples until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.sample()
			c.logger.Info("System metrics",
				zap.Float64("sys_cpu", round1(s.CPUPercent)),
				zap.Float64("proc_cpu", round1(s.ProcessCPUPercent)),
				zap.String("rss", formatBytes(s.RSSBytes)),
				zap.Float64("mem_pct", round1(s.MemoryPercent)),
				zap.String("disk_r", formatBytes(uint64(s.DiskReadBps))+"/s"),
				zap.String("disk_w", formatBytes(uint64(s.DiskWriteBps))+"/s"),
			)
		}
	}
}

// Last returns the most recent sample
func (c *Collector) Last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Report logs the resident memory of the process, the peak seen by the
// collector if it is higher
func (c *Collector) Report() {
	rss := c.rss()
	c.mu.Lock()
	if c.peakRSS > rss {
		rss = c.peakRSS
	}
	c.mu.Unlock()
	if rss == 0 {
		return
	}
	c.logger.Info(fmt.Sprintf("Memory used: %s", formatBytes(rss)))
}

func (c *Collector) rss() uint64 {
	if c.proc == nil {
		return 0
	}
	info, err := c.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

func (c *Collector) sample() Snapshot {
	s := Snapshot{Timestamp: time.Now(), RSSBytes: c.rss()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
	}
	s.DiskReadBps, s.DiskWriteBps = c.diskRates(s.Timestamp)

	c.mu.Lock()
	c.last = s
	if s.RSSBytes > c.peakRSS {
		c.peakRSS = s.RSSBytes
	}
	c.mu.Unlock()
	return s
}

// diskRates returns bytes per second read and written since the last call
func (c *Collector) diskRates(now time.Time) (read, write float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	last, lastTime := c.lastDisk, c.lastDiskTime
	c.lastDisk, c.lastDiskTime = counters, now

	elapsed := now.Sub(lastTime).Seconds()
	if last == nil || elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, counter := range counters {
		prev, ok := last[name]
		if !ok {
			continue
		}
		// Counters can wrap
		if counter.ReadBytes >= prev.ReadBytes {
			readDelta += counter.ReadBytes - prev.ReadBytes
		}
		if counter.WriteBytes >= prev.WriteBytes {
			writeDelta += counter.WriteBytes - prev.WriteBytes
		}
	}
	return float64(readDelta) / elapsed, float64(writeDelta) / elapsed
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}

// formatBytes formats a byte count with a binary unit
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
