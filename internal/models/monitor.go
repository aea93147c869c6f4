package models

import (
	"time"

	"github.com/guregu/null/v5"
)

// MonitorType is the kind of target a monitor checks
type MonitorType string

const (
	MonitorTypeWebsite MonitorType = "website"
	MonitorTypeAPI     MonitorType = "api"
)

// MonitorStatus is the scheduling state of a monitor on the backend
type MonitorStatus string

const (
	MonitorActive MonitorStatus = "active"
	MonitorPaused MonitorStatus = "paused"
)

// Monitor is a registered website or API endpoint checked by the backend
type Monitor struct {
	UUID                string        `json:"uuid"`
	Name                string        `json:"name"`
	URL                 string        `json:"url"`
	Type                MonitorType   `json:"type,omitempty"`
	RefreshTime         int           `json:"refreshTime,omitempty"` // seconds
	Status              MonitorStatus `json:"status,omitempty"`
	CurrentStatusCode   int           `json:"currentStatusCode"`
	LastTimeTaken       float64       `json:"lastTimeTaken"`       // ms
	AverageResponseTime float64       `json:"averageResponseTime"` // ms
	LastError           null.String   `json:"lastError"`
	LastChecked         time.Time     `json:"lastChecked,omitzero"`
	TotalPings          int           `json:"totalPings"`
	SuccessfulPings     int           `json:"successfulPings"`
	FailedPings         int           `json:"failedPings"`
	UptimePercent       float64       `json:"uptimePercent"`
}

// AggregateSnapshot is the owner-scoped roll-up returned by the analytics endpoint
type AggregateSnapshot struct {
	UserID              string     `json:"userId,omitempty"`
	TotalMonitors       int        `json:"totalMonitors"`
	ActiveMonitors      int        `json:"activeMonitors"`
	PausedMonitors      int        `json:"pausedMonitors"`
	AverageUptime       float64    `json:"averageUptime"`
	AverageResponseTime float64    `json:"averageResponseTime"`
	Monitors            []*Monitor `json:"monitors"`
}

// Find returns the monitor with the given id, or nil
func (s *AggregateSnapshot) Find(uuid string) *Monitor {
	if s == nil {
		return nil
	}
	for _, m := range s.Monitors {
		if m != nil && m.UUID == uuid {
			return m
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the core
func (s *AggregateSnapshot) Clone() *AggregateSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Monitors = make([]*Monitor, 0, len(s.Monitors))
	for _, m := range s.Monitors {
		if m == nil {
			continue
		}
		cp := *m
		out.Monitors = append(out.Monitors, &cp)
	}
	return &out
}

// PingRecord is one historical health check of a monitor
type PingRecord struct {
	PingTime       time.Time   `json:"pingTime"`
	PingStatusCode int         `json:"pingStatusCode"`
	PingTimeTaken  float64     `json:"pingTimeTaken"`
	PingError      null.String `json:"pingError"`

	// Filled in by the loader, not sent by the backend
	MonitorUUID string `json:"-"`
	MonitorName string `json:"-"`
}

// MonitorStats is the payload of the per-monitor stats endpoint
type MonitorStats struct {
	ResponseLogs []PingRecord `json:"responseLogs"`
}
