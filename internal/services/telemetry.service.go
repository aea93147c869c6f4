package services

import (
	"net/http"

	"uptimeboard/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry holds the Prometheus metrics of one session. A nil *Telemetry
// is valid and records nothing.
type Telemetry struct {
	EventsTotal           *prometheus.CounterVec
	ChannelReconnects     prometheus.Counter
	ChannelConnected      prometheus.Gauge
	SnapshotFailuresTotal *prometheus.CounterVec
	SeriesPoints          *prometheus.GaugeVec
	Viewers               prometheus.Gauge

	registry *prometheus.Registry
}

// NewTelemetry creates and registers all metrics on a private registry
func NewTelemetry() *Telemetry {
	reg := prometheus.NewRegistry()

	t := &Telemetry{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimeboard_events_total",
				Help: "Push events offered to the core, by kind and outcome",
			},
			[]string{"kind", "result"},
		),
		ChannelReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "uptimeboard_channel_reconnects_total",
				Help: "Reconnect attempts made by the push channel",
			},
		),
		ChannelConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "uptimeboard_channel_connected",
				Help: "1 while the push channel is connected",
			},
		),
		SnapshotFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptimeboard_snapshot_failures_total",
				Help: "Failed bulk fetches, by operation",
			},
			[]string{"op"},
		),
		SeriesPoints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptimeboard_series_points",
				Help: "Points currently held per chart surface",
			},
			[]string{"surface"},
		),
		Viewers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "uptimeboard_viewers",
				Help: "Connected dashboard viewers",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		t.EventsTotal,
		t.ChannelReconnects,
		t.ChannelConnected,
		t.SnapshotFailuresTotal,
		t.SeriesPoints,
		t.Viewers,
	)
	return t
}

// Registry returns the private registry
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the registry in the Prometheus text format
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) ObserveEvent(kind models.EventKind, res ApplyResult) {
	if t == nil {
		return
	}
	t.EventsTotal.WithLabelValues(string(kind), res.String()).Inc()
}

func (t *Telemetry) IncReconnect() {
	if t == nil {
		return
	}
	t.ChannelReconnects.Inc()
}

func (t *Telemetry) SetConnected(ok bool) {
	if t == nil {
		return
	}
	if ok {
		t.ChannelConnected.Set(1)
	} else {
		t.ChannelConnected.Set(0)
	}
}

func (t *Telemetry) IncSnapshotFailure(op string) {
	if t == nil {
		return
	}
	t.SnapshotFailuresTotal.WithLabelValues(op).Inc()
}

func (t *Telemetry) SetSeriesPoints(s models.Surface, n int) {
	if t == nil {
		return
	}
	t.SeriesPoints.WithLabelValues(string(s)).Set(float64(n))
}

func (t *Telemetry) SetViewers(n int) {
	if t == nil {
		return
	}
	t.Viewers.Set(float64(n))
}
