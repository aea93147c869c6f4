package models

import "time"

// ResourceUsage is what this process costs the host it runs on
type ResourceUsage struct {
	PID           int32     `json:"pid"`
	CPUPercent    float64   `json:"cpu_percent"`
	RSSMB         float64   `json:"rss_mb"`
	NumThreads    int32     `json:"num_threads"`
	Goroutines    int       `json:"goroutines"`
	HostMemPct    float64   `json:"host_memory_percent"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}
