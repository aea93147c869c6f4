package services

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"uptimeboard/internal/models"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const MB = 1024 * 1024

// ResourceMonitor reports this process's own CPU and memory use. Readings
// are cached for ttl since gopsutil calls are not free.
type ResourceMonitor struct {
	proc    *process.Process
	started time.Time
	ttl     time.Duration

	mu       sync.RWMutex
	cached   *models.ResourceUsage
	cachedAt time.Time
}

// NewResourceMonitor attaches to the current process
func NewResourceMonitor(ttl time.Duration) (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to attach to own process: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &ResourceMonitor{proc: proc, started: time.Now(), ttl: ttl}, nil
}

// Usage returns a cached reading if fresh, otherwise collects a new one
func (rm *ResourceMonitor) Usage() (*models.ResourceUsage, error) {
	rm.mu.RLock()
	if rm.cached != nil && time.Since(rm.cachedAt) < rm.ttl {
		defer rm.mu.RUnlock()
		return rm.cached, nil
	}
	rm.mu.RUnlock()

	// Collect outside the lock
	usage, err := rm.collect()
	if err != nil {
		return nil, err
	}

	rm.mu.Lock()
	rm.cached = usage
	rm.cachedAt = time.Now()
	rm.mu.Unlock()
	return usage, nil
}

func (rm *ResourceMonitor) collect() (*models.ResourceUsage, error) {
	cpuPct, err := rm.proc.CPUPercent()
	if err != nil {
		return nil, fmt.Errorf("failed to get process cpu: %w", err)
	}
	memInfo, err := rm.proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get process memory: %w", err)
	}
	threads, err := rm.proc.NumThreads()
	if err != nil {
		log.Printf("Warning: Could not get thread count: %v", err)
		threads = 0
	}

	usage := &models.ResourceUsage{
		PID:           rm.proc.Pid,
		CPUPercent:    cpuPct,
		RSSMB:         float64(memInfo.RSS) / MB,
		NumThreads:    threads,
		Goroutines:    runtime.NumGoroutine(),
		StartedAt:     rm.started,
		UptimeSeconds: time.Since(rm.started).Seconds(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.HostMemPct = vm.UsedPercent
	} else {
		log.Printf("Warning: Could not get host memory: %v", err)
	}
	return usage, nil
}
