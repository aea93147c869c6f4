package models

import "time"

// EventKind names a server push message
type EventKind string

const (
	EventMonitorUpdate   EventKind = "monitor:update"
	EventAnalyticsUpdate EventKind = "analytics:update"
	EventMonitorStatus   EventKind = "monitor:status"

	// Client to server
	EventRequestAnalytics EventKind = "request:analytics"
)

// LastPing is the ping result carried by a monitor update
type LastPing struct {
	StatusCode int       `json:"statusCode"`
	TimeTaken  float64   `json:"timeTaken"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// MonitorPing is the monitor section of a monitor update
type MonitorPing struct {
	UUID                string   `json:"uuid"`
	Name                string   `json:"name"`
	URL                 string   `json:"url"`
	LastPing            LastPing `json:"lastPing"`
	CurrentStatusCode   int      `json:"currentStatusCode"`
	LastTimeTaken       float64  `json:"lastTimeTaken"`
	AverageResponseTime float64  `json:"averageResponseTime"`
	UptimePercent       float64  `json:"uptimePercent"`
	LastError           string   `json:"lastError,omitempty"`
}

// MonitorUpdate reports one completed ping
type MonitorUpdate struct {
	Timestamp time.Time   `json:"timestamp"`
	Monitor   MonitorPing `json:"monitor"`
}

// AnalyticsUpdate replaces the aggregate snapshot
type AnalyticsUpdate struct {
	Timestamp time.Time         `json:"timestamp"`
	Data      AggregateSnapshot `json:"data"`
}

// MonitorStatusChange reports a monitor moving between active and paused
type MonitorStatusChange struct {
	Timestamp time.Time     `json:"timestamp"`
	MonitorID string        `json:"monitorId"`
	Status    MonitorStatus `json:"status"`
}

// Event is the single typed value flowing from the channel into the core.
// Exactly one payload pointer is set, matching Kind.
type Event struct {
	Kind      EventKind            `json:"kind"`
	Update    *MonitorUpdate       `json:"update,omitempty"`
	Analytics *AnalyticsUpdate     `json:"analytics,omitempty"`
	Status    *MonitorStatusChange `json:"status,omitempty"`
}

// NewMonitorUpdateEvent wraps a monitor update
func NewMonitorUpdateEvent(u MonitorUpdate) Event {
	return Event{Kind: EventMonitorUpdate, Update: &u}
}

// NewAnalyticsEvent wraps an analytics update
func NewAnalyticsEvent(a AnalyticsUpdate) Event {
	return Event{Kind: EventAnalyticsUpdate, Analytics: &a}
}

// NewStatusEvent wraps a status change
func NewStatusEvent(s MonitorStatusChange) Event {
	return Event{Kind: EventMonitorStatus, Status: &s}
}

// PingTime is the timestamp used to place the update in a series.
// The ping's own timestamp wins; the envelope timestamp is the fallback.
func (u *MonitorUpdate) PingTime() time.Time {
	if !u.Monitor.LastPing.Timestamp.IsZero() {
		return u.Monitor.LastPing.Timestamp
	}
	return u.Timestamp
}
