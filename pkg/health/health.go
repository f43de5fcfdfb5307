// Package health reports gateway liveness and host resource usage.
package health

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status represents the health status of the gateway
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Snapshot represents gateway health at a point in time
type Snapshot struct {
	Status         Status             `json:"status"`
	Uptime         int64              `json:"uptime_seconds"`
	Timestamp      time.Time          `json:"timestamp"`
	ActiveSessions int                `json:"active_sessions"`
	OpenTerminals  int                `json:"open_terminals"`
	Goroutines     int                `json:"goroutines"`
	HeapMB         uint64             `json:"heap_mb"`
	System         map[string]float64 `json:"system"`
}

// Monitor tracks gateway health metrics
type Monitor struct {
	startTime time.Time
	rootDir   string
}

// NewMonitor creates a health monitor. rootDir is the filesystem the disk
// usage figure reports on.
func NewMonitor(rootDir string) *Monitor {
	return &Monitor{
		startTime: time.Now(),
		rootDir:   rootDir,
	}
}

// Snapshot returns current gateway health
func (m *Monitor) Snapshot(activeSessions, openTerminals int) *Snapshot {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	system := m.systemStats()

	status := StatusHealthy
	if pct, ok := system["disk"]; ok && pct > 95 {
		status = StatusDegraded
	}

	return &Snapshot{
		Status:         status,
		Uptime:         int64(time.Since(m.startTime).Seconds()),
		Timestamp:      time.Now(),
		ActiveSessions: activeSessions,
		OpenTerminals:  openTerminals,
		Goroutines:     runtime.NumGoroutine(),
		HeapMB:         stats.Alloc / 1024 / 1024,
		System:         system,
	}
}

// systemStats returns host resource usage; missing probes are omitted
// rather than failing the snapshot
func (m *Monitor) systemStats() map[string]float64 {
	stats := make(map[string]float64)

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats["cpu"] = cpuPercent[0]
	}

	if memStats, err := mem.VirtualMemory(); err == nil && memStats != nil {
		stats["mem"] = memStats.UsedPercent
	}

	if diskStats, err := disk.Usage(m.rootDir); err == nil && diskStats != nil {
		stats["disk"] = diskStats.UsedPercent
	}

	return stats
}
