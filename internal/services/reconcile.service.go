package services

import (
	"log"
	"slices"
	"sync"
	"time"

	"uptimeboard/internal/models"

	"github.com/guregu/null/v5"
)

// SurfaceState is the lifecycle of one chart surface
type SurfaceState string

const (
	StateEmpty   SurfaceState = "empty"
	StatePriming SurfaceState = "priming"
	StateLive    SurfaceState = "live"
)

// ChartRenderer receives the full series of a surface after every accepted
// change. Implementations must not call back into the Reconciler.
type ChartRenderer interface {
	Redraw(monitorUUID string, points []models.TimeSeriesPoint)
}

type surface struct {
	buffer  *SeriesBuffer
	state   SurfaceState
	render  ChartRenderer
	pending []models.Event           // main: whole events held while priming
	early   []models.TimeSeriesPoint // popup: points held while priming
	monitor string                   // popup: inspected monitor
}

// Reconciler owns the aggregate snapshot and both series buffers. Every
// mutation of that state goes through its methods.
type Reconciler struct {
	mu        sync.Mutex
	snapshot  *models.AggregateSnapshot
	main      *surface
	popup     *surface
	telemetry *Telemetry
	observers []func(*models.AggregateSnapshot)
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithTelemetry counts apply outcomes
func WithTelemetry(t *Telemetry) ReconcilerOption {
	return func(r *Reconciler) { r.telemetry = t }
}

// WithSnapshotObserver is called with a copy of the snapshot after it changes
func WithSnapshotObserver(fn func(*models.AggregateSnapshot)) ReconcilerOption {
	return func(r *Reconciler) { r.observers = append(r.observers, fn) }
}

// NewReconciler creates the core for one session
func NewReconciler(mainCap, popupCap int, policy InsertPolicy, mainRender, popupRender ChartRenderer, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		main: &surface{
			buffer: NewSeriesBuffer(mainCap, policy),
			state:  StateEmpty,
			render: mainRender,
		},
		popup: &surface{
			buffer: NewSeriesBuffer(popupCap, policy),
			state:  StateEmpty,
			render: popupRender,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BeginPriming clears the main buffer and starts holding live events until
// CompletePriming is called.
func (r *Reconciler) BeginPriming() {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.main.state
	r.main.buffer.Reset()
	r.main.state = StatePriming
	r.redraw(r.main)
	log.Printf("[CORE] Main surface %s -> %s", prev, StatePriming)
}

// CompletePriming lands a historical load on the main surface. A failed
// load (err != nil) still makes the surface live so later events are kept.
func (r *Reconciler) CompletePriming(history []models.TimeSeriesPoint, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		log.Printf("[CORE] Historical load failed, going live without history: %v", err)
		history = nil
	}

	if r.main.state == StateLive {
		// Superseded load finishing after a newer cycle already went live
		r.main.buffer.Merge(history)
		r.redraw(r.main)
		log.Printf("[CORE] Late historical load merged (%d points)", len(history))
		return
	}

	pending := r.main.pending
	r.main.pending = nil

	var queued []models.TimeSeriesPoint
	for _, ev := range pending {
		r.applyLocked(ev, &queued)
	}

	merged := make([]models.TimeSeriesPoint, 0, len(history)+len(queued))
	merged = append(merged, history...)
	merged = append(merged, queued...)
	r.main.buffer.Replace(merged)
	r.main.state = StateLive
	r.redraw(r.main)
	r.notify()

	log.Printf("[CORE] Main surface live: %d history points, %d queued events, %d buffered",
		len(history), len(pending), r.main.buffer.Len())
}

// Apply routes one live event into the core
func (r *Reconciler) Apply(ev models.Event) ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.main.state == StatePriming {
		r.main.pending = append(r.main.pending, ev)
		r.telemetry.ObserveEvent(ev.Kind, Queued)
		return Queued
	}

	res := r.applyLocked(ev, nil)
	if res != Discarded {
		r.notify()
	}
	return res
}

// applyLocked mutates records and buffers for one event. When collect is
// non-nil the main surface point is gathered there instead of added.
func (r *Reconciler) applyLocked(ev models.Event, collect *[]models.TimeSeriesPoint) ApplyResult {
	var res ApplyResult
	switch ev.Kind {
	case models.EventMonitorUpdate:
		res = r.applyUpdate(ev.Update, collect)
	case models.EventAnalyticsUpdate:
		res = r.applyAnalytics(ev.Analytics)
	case models.EventMonitorStatus:
		res = r.applyStatus(ev.Status)
	default:
		log.Printf("[CORE] Ignoring event of unknown kind %q", ev.Kind)
		res = Discarded
	}
	r.telemetry.ObserveEvent(ev.Kind, res)
	return res
}

func (r *Reconciler) applyUpdate(u *models.MonitorUpdate, collect *[]models.TimeSeriesPoint) ApplyResult {
	if u == nil {
		return Discarded
	}
	m := r.snapshot.Find(u.Monitor.UUID)
	if m == nil {
		return Discarded
	}

	mp := u.Monitor
	at := u.PingTime()
	if at.IsZero() {
		return Discarded
	}

	// Redelivered or late pings still reach the series but never roll the
	// record back
	if m.LastChecked.IsZero() || at.After(m.LastChecked) {
		r.overwriteRecord(m, &mp, at)
	}

	source := m.Name
	if source == "" {
		source = mp.Name
	}
	p := models.TimeSeriesPoint{
		Timestamp:  at.UnixMilli(),
		Value:      mp.LastPing.TimeTaken,
		Label:      at.Format("15:04:05"),
		Source:     source,
		StatusCode: mp.LastPing.StatusCode,
	}

	res := Accepted
	if collect != nil {
		*collect = append(*collect, p)
	} else {
		res = r.main.buffer.Add(p)
		if res == Accepted {
			r.redraw(r.main)
		}
	}

	if r.popup.monitor == m.UUID {
		switch r.popup.state {
		case StatePriming:
			r.popup.early = append(r.popup.early, p)
		case StateLive:
			if r.popup.buffer.Add(p) == Accepted {
				r.redraw(r.popup)
			}
		}
	}
	return res
}

func (r *Reconciler) overwriteRecord(m *models.Monitor, mp *models.MonitorPing, at time.Time) {
	m.CurrentStatusCode = mp.CurrentStatusCode
	if m.CurrentStatusCode == 0 {
		m.CurrentStatusCode = mp.LastPing.StatusCode
	}
	m.LastTimeTaken = mp.LastTimeTaken
	if m.LastTimeTaken == 0 {
		m.LastTimeTaken = mp.LastPing.TimeTaken
	}
	m.AverageResponseTime = mp.AverageResponseTime
	m.UptimePercent = mp.UptimePercent
	switch {
	case mp.LastPing.Error != "":
		m.LastError = null.StringFrom(mp.LastPing.Error)
	case mp.LastError != "":
		m.LastError = null.StringFrom(mp.LastError)
	default:
		m.LastError = null.String{}
	}
	m.LastChecked = at
	r.recomputeAverages()
}

func (r *Reconciler) applyAnalytics(a *models.AnalyticsUpdate) ApplyResult {
	if a == nil {
		return Discarded
	}
	snap := a.Data
	r.snapshot = snap.Clone()
	return Accepted
}

func (r *Reconciler) applyStatus(s *models.MonitorStatusChange) ApplyResult {
	if s == nil {
		return Discarded
	}
	m := r.snapshot.Find(s.MonitorID)
	if m == nil {
		return Discarded
	}
	if m.Status == s.Status {
		return Duplicate
	}
	r.adjustCounter(m.Status, -1)
	r.adjustCounter(s.Status, +1)
	m.Status = s.Status
	return Accepted
}

func (r *Reconciler) adjustCounter(status models.MonitorStatus, delta int) {
	var c *int
	switch status {
	case models.MonitorActive:
		c = &r.snapshot.ActiveMonitors
	case models.MonitorPaused:
		c = &r.snapshot.PausedMonitors
	default:
		return
	}
	*c = max(*c+delta, 0)
}

func (r *Reconciler) recomputeAverages() {
	n := len(r.snapshot.Monitors)
	if n == 0 {
		r.snapshot.AverageUptime = 0
		r.snapshot.AverageResponseTime = 0
		return
	}
	var uptime, resp float64
	for _, m := range r.snapshot.Monitors {
		uptime += m.UptimePercent
		resp += m.AverageResponseTime
	}
	r.snapshot.AverageUptime = uptime / float64(n)
	r.snapshot.AverageResponseTime = resp / float64(n)
}

// ReplaceSnapshot installs a freshly loaded aggregate. Last writer wins.
func (r *Reconciler) ReplaceSnapshot(s *models.AggregateSnapshot) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = s.Clone()
	r.notify()
}

// RemoveMonitor drops a monitor after the backend confirmed its deletion
func (r *Reconciler) RemoveMonitor(uuid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		return false
	}
	i := slices.IndexFunc(r.snapshot.Monitors, func(m *models.Monitor) bool {
		return m != nil && m.UUID == uuid
	})
	if i < 0 {
		return false
	}
	r.adjustCounter(r.snapshot.Monitors[i].Status, -1)
	r.snapshot.Monitors = slices.Delete(r.snapshot.Monitors, i, i+1)
	r.snapshot.TotalMonitors = max(r.snapshot.TotalMonitors-1, 0)
	r.recomputeAverages()

	if r.popup.monitor == uuid {
		r.closePopupLocked()
	}
	r.notify()
	return true
}

// SetMonitorStatus applies a confirmed pause or resume
func (r *Reconciler) SetMonitorStatus(uuid string, status models.MonitorStatus) ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.applyStatus(&models.MonitorStatusChange{MonitorID: uuid, Status: status})
	if res == Accepted {
		r.notify()
	}
	return res
}

// Inspect points the popup surface at a monitor. A different monitor
// resets the popup and starts priming it; the same monitor keeps its points.
func (r *Reconciler) Inspect(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.popup.monitor == uuid && r.popup.state != StateEmpty {
		return
	}
	r.popup.monitor = uuid
	r.popup.buffer.Reset()
	r.popup.early = nil
	r.popup.state = StatePriming
	r.redraw(r.popup)
}

// CompletePopup lands a popup history load. Loads for a monitor that is no
// longer inspected are discarded.
func (r *Reconciler) CompletePopup(uuid string, history []models.TimeSeriesPoint, err error) ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uuid != r.popup.monitor {
		log.Printf("[CORE] Dropping popup history for %s, now inspecting %q", uuid, r.popup.monitor)
		return Discarded
	}
	if err != nil {
		log.Printf("[CORE] Popup history for %s failed: %v", uuid, err)
		history = nil
	}

	if r.popup.state == StateLive {
		r.popup.buffer.Merge(history)
	} else {
		merged := append(slices.Clone(history), r.popup.early...)
		r.popup.buffer.Replace(merged)
		r.popup.early = nil
		r.popup.state = StateLive
	}
	r.redraw(r.popup)
	return Accepted
}

// ClosePopup detaches the popup surface
func (r *Reconciler) ClosePopup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closePopupLocked()
}

func (r *Reconciler) closePopupLocked() {
	r.popup.monitor = ""
	r.popup.early = nil
	r.popup.buffer.Reset()
	r.popup.state = StateEmpty
	r.redraw(r.popup)
}

// Snapshot returns a copy of the held aggregate, or nil before the first load
func (r *Reconciler) Snapshot() *models.AggregateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Clone()
}

// Series returns a copy of a surface's points
func (r *Reconciler) Series(s models.Surface) []models.TimeSeriesPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface(s).buffer.Points()
}

// State returns the lifecycle state of a surface
func (r *Reconciler) State(s models.Surface) SurfaceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface(s).state
}

// Inspected returns the monitor shown on the popup surface
func (r *Reconciler) Inspected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.popup.monitor
}

// PendingEvents returns how many events are held for the main surface
func (r *Reconciler) PendingEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.main.pending)
}

func (r *Reconciler) surface(s models.Surface) *surface {
	if s == models.SurfacePopup {
		return r.popup
	}
	return r.main
}

func (r *Reconciler) redraw(s *surface) {
	if s.render == nil {
		return
	}
	s.render.Redraw(s.monitor, s.buffer.Points())
}

func (r *Reconciler) notify() {
	if len(r.observers) == 0 || r.snapshot == nil {
		return
	}
	snap := r.snapshot.Clone()
	for _, fn := range r.observers {
		fn(snap)
	}
}
