package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"trailmap-go/internal/core/ingest"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// SystemStats enthält Informationen zur Systemauslastung für den
// Status-Endpunkt
type SystemStats struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsedBytes    uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes   uint64  `json:"memory_total_bytes"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	GoRoutines         int     `json:"go_routines"`
	WorkerCount        int     `json:"worker_count,omitempty"`
	ActiveJobs         int     `json:"active_jobs,omitempty"`
	QueueCapacity      int     `json:"queue_capacity,omitempty"`
	Uptime             string  `json:"uptime"`
}

var (
	startTime = time.Now()

	// CPU-Messungen sind teuer, daher kurz gecacht
	cpuCacheMutex   sync.Mutex
	cachedCPUValue  float64
	lastCPUReadTime time.Time
)

// getCPUPercent liefert die CPU-Auslastung, maximal alle 500ms neu gemessen
func getCPUPercent() float64 {
	cpuCacheMutex.Lock()
	defer cpuCacheMutex.Unlock()

	if time.Since(lastCPUReadTime) < 500*time.Millisecond {
		return cachedCPUValue
	}

	percentages, err := cpu.Percent(0, false)
	if err != nil || len(percentages) == 0 {
		log.Debugf("Failed to read CPU usage: %v", err)
		return cachedCPUValue
	}

	cachedCPUValue = percentages[0]
	lastCPUReadTime = time.Now()
	return cachedCPUValue
}

// GetSystemStats sammelt die aktuellen Systemwerte. Der Worker-Pool ist
// optional und darf nil sein.
func GetSystemStats(pool *ingest.WorkerPool) SystemStats {
	stats := SystemStats{
		CPUUsagePercent: getCPUPercent(),
		GoRoutines:      runtime.NumGoroutine(),
		Uptime:          time.Since(startTime).Round(time.Second).String(),
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsedBytes = vmStat.Used
		stats.MemoryTotalBytes = vmStat.Total
		stats.MemoryUsagePercent = vmStat.UsedPercent
	} else {
		log.Debugf("Failed to read memory usage: %v", err)
	}

	if pool != nil {
		stats.WorkerCount = pool.GetWorkerCount()
		stats.ActiveJobs = pool.ActiveJobCount()
		stats.QueueCapacity = pool.GetQueueCapacity()
	}

	return stats
}

// FormatBytes formatiert eine Byte-Anzahl menschenlesbar
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
