package services

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"uptimeboard/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingRenderer struct {
	mu      sync.Mutex
	calls   int
	monitor string
	last    []models.TimeSeriesPoint
}

func (r *recordingRenderer) Redraw(monitor string, points []models.TimeSeriesPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.monitor = monitor
	r.last = points
}

func (r *recordingRenderer) snapshot() (int, []models.TimeSeriesPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, slices.Clone(r.last)
}

func testSnapshot() *models.AggregateSnapshot {
	return &models.AggregateSnapshot{
		TotalMonitors:  3,
		ActiveMonitors: 2,
		PausedMonitors: 1,
		Monitors: []*models.Monitor{
			{UUID: "a", Name: "api.example.com", Status: models.MonitorActive, UptimePercent: 99.0, AverageResponseTime: 100},
			{UUID: "b", Name: "auth.example.com", Status: models.MonitorActive, UptimePercent: 100.0, AverageResponseTime: 200},
			{UUID: "c", Name: "cdn.example.com", Status: models.MonitorPaused, UptimePercent: 98.0, AverageResponseTime: 300},
		},
	}
}

func updateAt(uuid string, ms int64) models.Event {
	ts := time.UnixMilli(ms)
	return models.NewMonitorUpdateEvent(models.MonitorUpdate{
		Timestamp: ts,
		Monitor: models.MonitorPing{
			UUID: uuid,
			LastPing: models.LastPing{
				StatusCode: 200,
				TimeTaken:  float64(ms),
				Timestamp:  ts,
			},
			CurrentStatusCode: 200,
		},
	})
}

func newTestReconciler(capacity int) (*Reconciler, *recordingRenderer, *recordingRenderer) {
	main, popup := &recordingRenderer{}, &recordingRenderer{}
	r := NewReconciler(capacity, capacity, PolicyAppend, main, popup)
	r.ReplaceSnapshot(testSnapshot())
	return r, main, popup
}

func TestReconcilerDuplicateEvent(t *testing.T) {
	r, _, _ := newTestReconciler(10)

	if got := r.Apply(updateAt("a", 1000)); got != Accepted {
		t.Fatalf("first apply = %v", got)
	}
	if got := r.Apply(updateAt("a", 1000)); got != Duplicate {
		t.Fatalf("second apply = %v, want duplicate", got)
	}
	if got := timestamps(r.Series(models.SurfaceMain)); !slices.Equal(got, []int64{1000}) {
		t.Errorf("series = %v", got)
	}
}

func TestReconcilerStaleEventLeavesBufferUnchanged(t *testing.T) {
	r, main, _ := newTestReconciler(10)
	r.Apply(updateAt("a", 1000))
	r.Apply(updateAt("b", 2000))
	calls, _ := main.snapshot()
	before := r.Series(models.SurfaceMain)

	if got := r.Apply(updateAt("c", 1500)); got != Stale {
		t.Fatalf("apply = %v, want stale", got)
	}
	if after := r.Series(models.SurfaceMain); !slices.Equal(after, before) {
		t.Errorf("series changed: %v -> %v", timestamps(before), timestamps(after))
	}
	if n, _ := main.snapshot(); n != calls {
		t.Errorf("stale event triggered redraw")
	}
}

func TestReconcilerLatePingKeepsNewerRecord(t *testing.T) {
	r, _, _ := newTestReconciler(10)

	newer := updateAt("a", 2000)
	newer.Update.Monitor.CurrentStatusCode = 500
	newer.Update.Monitor.UptimePercent = 90
	r.Apply(newer)

	older := updateAt("a", 1000)
	older.Update.Monitor.UptimePercent = 100
	if got := r.Apply(older); got != Stale {
		t.Fatalf("apply = %v, want stale", got)
	}

	m := r.Snapshot().Find("a")
	if m.LastChecked.UnixMilli() != 2000 || m.CurrentStatusCode != 500 || m.UptimePercent != 90 {
		t.Errorf("record rolled back: lastChecked=%d code=%d uptime=%v",
			m.LastChecked.UnixMilli(), m.CurrentStatusCode, m.UptimePercent)
	}

	// Redelivery of the newest ping changes nothing either
	again := updateAt("a", 2000)
	again.Update.Monitor.UptimePercent = 50
	if got := r.Apply(again); got != Duplicate {
		t.Fatalf("redelivery = %v, want duplicate", got)
	}
	if m := r.Snapshot().Find("a"); m.UptimePercent != 90 {
		t.Errorf("redelivery overwrote uptime: %v", m.UptimePercent)
	}
}

func TestReconcilerStaleForSeriesStillUpdatesOwnMonitor(t *testing.T) {
	r, _, _ := newTestReconciler(10)
	r.Apply(updateAt("b", 2000))

	ev := updateAt("c", 1500)
	ev.Update.Monitor.CurrentStatusCode = 503
	if got := r.Apply(ev); got != Stale {
		t.Fatalf("apply = %v, want stale", got)
	}
	m := r.Snapshot().Find("c")
	if m.LastChecked.UnixMilli() != 1500 || m.CurrentStatusCode != 503 {
		t.Errorf("monitor c not updated: lastChecked=%d code=%d", m.LastChecked.UnixMilli(), m.CurrentStatusCode)
	}
}

func TestReconcilerDiscardsUpdateWithoutTime(t *testing.T) {
	r, main, _ := newTestReconciler(10)
	ev := models.NewMonitorUpdateEvent(models.MonitorUpdate{
		Monitor: models.MonitorPing{UUID: "a", LastPing: models.LastPing{StatusCode: 200, TimeTaken: 12}},
	})

	if got := r.Apply(ev); got != Discarded {
		t.Fatalf("apply = %v, want discarded", got)
	}
	if pts := r.Series(models.SurfaceMain); len(pts) != 0 {
		t.Errorf("series = %v", timestamps(pts))
	}
	if n, _ := main.snapshot(); n != 0 {
		t.Errorf("redraws = %d", n)
	}
	if m := r.Snapshot().Find("a"); !m.LastChecked.IsZero() {
		t.Errorf("record touched: %+v", m)
	}
}

func TestReconcilerPrimingFlushOrder(t *testing.T) {
	r, main, _ := newTestReconciler(100)

	r.BeginPriming()
	if got := r.Apply(updateAt("a", 10)); got != Queued {
		t.Fatalf("apply during priming = %v, want queued", got)
	}
	r.Apply(updateAt("b", 20))
	if r.PendingEvents() != 2 {
		t.Fatalf("pending = %d", r.PendingEvents())
	}
	if len(r.Series(models.SurfaceMain)) != 0 {
		t.Fatal("queued events must not reach the buffer while priming")
	}

	r.CompletePriming(pts(5, 15), nil)

	want := []int64{5, 10, 15, 20}
	if got := timestamps(r.Series(models.SurfaceMain)); !slices.Equal(got, want) {
		t.Errorf("series = %v, want %v", got, want)
	}
	if r.State(models.SurfaceMain) != StateLive {
		t.Errorf("state = %s", r.State(models.SurfaceMain))
	}
	if r.PendingEvents() != 0 {
		t.Errorf("pending not flushed")
	}
	if _, last := main.snapshot(); !slices.Equal(timestamps(last), want) {
		t.Errorf("renderer got %v", timestamps(last))
	}
}

func TestReconcilerFailedLoadGoesLive(t *testing.T) {
	r, _, _ := newTestReconciler(10)
	r.BeginPriming()
	r.Apply(updateAt("a", 10))

	r.CompletePriming(pts(1, 2, 3), &SnapshotError{Op: "load history", Err: errors.New("boom")})

	if r.State(models.SurfaceMain) != StateLive {
		t.Fatalf("state = %s", r.State(models.SurfaceMain))
	}
	if got := timestamps(r.Series(models.SurfaceMain)); !slices.Equal(got, []int64{10}) {
		t.Errorf("series = %v, want only the queued event", got)
	}
	if got := r.Apply(updateAt("a", 20)); got != Accepted {
		t.Errorf("live event after failed load = %v", got)
	}
}

func TestReconcilerRefreshClearsThenLateLoadMerges(t *testing.T) {
	r, _, _ := newTestReconciler(10)
	r.BeginPriming()
	r.CompletePriming(pts(1, 2, 3), nil)

	r.BeginPriming()
	if len(r.Series(models.SurfaceMain)) != 0 {
		t.Fatal("refresh must discard old points")
	}
	r.CompletePriming(pts(10, 20), nil)
	// earlier load completing after the refresh went live
	r.CompletePriming(pts(15, 30), nil)

	if got := timestamps(r.Series(models.SurfaceMain)); !slices.Equal(got, []int64{10, 15, 20, 30}) {
		t.Errorf("series = %v", got)
	}
}

func TestReconcilerAverageRecompute(t *testing.T) {
	r, _, _ := newTestReconciler(10)

	ev := updateAt("b", 1000)
	ev.Update.Monitor.UptimePercent = 100.0
	ev.Update.Monitor.AverageResponseTime = 200
	r.Apply(ev)

	snap := r.Snapshot()
	if snap.AverageUptime != 99.0 {
		t.Errorf("averageUptime = %v, want 99.0", snap.AverageUptime)
	}
	if snap.AverageResponseTime != 200 {
		t.Errorf("averageResponseTime = %v, want 200", snap.AverageResponseTime)
	}
	m := snap.Find("b")
	if m.CurrentStatusCode != 200 || m.LastChecked.UnixMilli() != 1000 {
		t.Errorf("monitor not mutated: %+v", m)
	}
}

func TestReconcilerUnknownMonitorIsNoop(t *testing.T) {
	r, main, _ := newTestReconciler(10)
	before := r.Snapshot()
	calls, _ := main.snapshot()

	if got := r.Apply(updateAt("zzz", 1000)); got != Discarded {
		t.Fatalf("apply = %v, want discarded", got)
	}
	after := r.Snapshot()
	if after.AverageUptime != before.AverageUptime || len(after.Monitors) != len(before.Monitors) {
		t.Errorf("snapshot changed")
	}
	for i := range before.Monitors {
		if *after.Monitors[i] != *before.Monitors[i] {
			t.Errorf("monitor %d changed", i)
		}
	}
	if len(r.Series(models.SurfaceMain)) != 0 {
		t.Error("unknown monitor produced a point")
	}
	if n, _ := main.snapshot(); n != calls {
		t.Error("unknown monitor triggered redraw")
	}
}

func TestReconcilerStatusChange(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		status     models.MonitorStatus
		want       ApplyResult
		active     int
		paused     int
		wantStatus models.MonitorStatus
	}{
		{"pause active", "a", models.MonitorPaused, Accepted, 1, 2, models.MonitorPaused},
		{"resume paused", "c", models.MonitorActive, Accepted, 3, 0, models.MonitorActive},
		{"no transition", "a", models.MonitorActive, Duplicate, 2, 1, models.MonitorActive},
		{"unknown monitor", "zzz", models.MonitorPaused, Discarded, 2, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestReconciler(10)
			got := r.Apply(models.NewStatusEvent(models.MonitorStatusChange{MonitorID: tt.id, Status: tt.status}))
			if got != tt.want {
				t.Errorf("apply = %v, want %v", got, tt.want)
			}
			snap := r.Snapshot()
			if snap.ActiveMonitors != tt.active || snap.PausedMonitors != tt.paused {
				t.Errorf("counters = %d/%d, want %d/%d", snap.ActiveMonitors, snap.PausedMonitors, tt.active, tt.paused)
			}
			if m := snap.Find(tt.id); m != nil && m.Status != tt.wantStatus {
				t.Errorf("status = %s", m.Status)
			}
		})
	}
}

func TestReconcilerAnalyticsLeavesSeries(t *testing.T) {
	r, _, popup := newTestReconciler(10)
	r.Inspect("a")
	r.CompletePopup("a", pts(1, 2), nil)
	r.Apply(updateAt("a", 1000))
	mainBefore := r.Series(models.SurfaceMain)
	popupCalls, _ := popup.snapshot()

	r.Apply(models.NewAnalyticsEvent(models.AnalyticsUpdate{
		Data: models.AggregateSnapshot{TotalMonitors: 1, Monitors: []*models.Monitor{{UUID: "x", Name: "x"}}},
	}))

	if got := r.Snapshot(); got.TotalMonitors != 1 || got.Find("a") != nil {
		t.Errorf("snapshot not replaced: %+v", got)
	}
	if !slices.Equal(r.Series(models.SurfaceMain), mainBefore) {
		t.Error("analytics update changed the main series")
	}
	if got := timestamps(r.Series(models.SurfacePopup)); !slices.Equal(got, []int64{1, 2, 1000}) {
		t.Errorf("popup series = %v", got)
	}
	if n, _ := popup.snapshot(); n != popupCalls {
		t.Error("analytics update redrew the popup")
	}
}

func TestReconcilerPopupLifecycle(t *testing.T) {
	r, _, popup := newTestReconciler(10)
	r.BeginPriming()
	r.CompletePriming(nil, nil)

	r.Inspect("a")
	if r.State(models.SurfacePopup) != StatePriming {
		t.Fatalf("popup state = %s", r.State(models.SurfacePopup))
	}
	r.Apply(updateAt("a", 10))
	r.Apply(updateAt("b", 11))
	r.CompletePopup("a", pts(5, 15), nil)
	if got := timestamps(r.Series(models.SurfacePopup)); !slices.Equal(got, []int64{5, 10, 15}) {
		t.Errorf("popup = %v", got)
	}

	// switching monitor resets, and a superseded load is dropped
	r.Inspect("b")
	if len(r.Series(models.SurfacePopup)) != 0 {
		t.Error("popup not reset on new monitor")
	}
	if got := r.CompletePopup("a", pts(100), nil); got != Discarded {
		t.Errorf("superseded popup load = %v", got)
	}
	r.CompletePopup("b", pts(7), nil)
	if _, last := popup.snapshot(); !slices.Equal(timestamps(last), []int64{7}) {
		t.Errorf("popup render = %v", timestamps(last))
	}
	if popup.monitor != "b" {
		t.Errorf("popup monitor = %q", popup.monitor)
	}

	r.ClosePopup()
	if r.State(models.SurfacePopup) != StateEmpty || r.Inspected() != "" {
		t.Error("popup not closed")
	}
}

func TestReconcilerRemoveMonitor(t *testing.T) {
	r, _, _ := newTestReconciler(10)
	r.Inspect("c")

	if !r.RemoveMonitor("c") {
		t.Fatal("remove failed")
	}
	snap := r.Snapshot()
	if snap.TotalMonitors != 2 || snap.PausedMonitors != 0 || snap.AverageUptime != 99.5 {
		t.Errorf("snapshot = %+v", snap)
	}
	if r.Inspected() != "" {
		t.Error("popup still inspecting removed monitor")
	}
	if r.RemoveMonitor("c") {
		t.Error("second remove succeeded")
	}
}

func TestReconcilerTelemetry(t *testing.T) {
	tel := NewTelemetry()
	r := NewReconciler(10, 10, PolicyAppend, nil, nil, WithTelemetry(tel))
	r.ReplaceSnapshot(testSnapshot())

	r.Apply(updateAt("a", 1))
	r.Apply(updateAt("a", 1))
	r.Apply(updateAt("zzz", 2))

	if got := testutil.ToFloat64(tel.EventsTotal.WithLabelValues("monitor:update", "accepted")); got != 1 {
		t.Errorf("accepted = %v", got)
	}
	if got := testutil.ToFloat64(tel.EventsTotal.WithLabelValues("monitor:update", "duplicate")); got != 1 {
		t.Errorf("duplicate = %v", got)
	}
	if got := testutil.ToFloat64(tel.EventsTotal.WithLabelValues("monitor:update", "discarded")); got != 1 {
		t.Errorf("discarded = %v", got)
	}
}

func TestReconcilerSnapshotObserver(t *testing.T) {
	var got []*models.AggregateSnapshot
	r := NewReconciler(10, 10, PolicyAppend, nil, nil, WithSnapshotObserver(func(s *models.AggregateSnapshot) {
		got = append(got, s)
	}))
	r.ReplaceSnapshot(testSnapshot())
	r.Apply(updateAt("zzz", 1))
	r.Apply(updateAt("a", 1))

	if len(got) != 2 {
		t.Fatalf("observer calls = %d, want 2", len(got))
	}
	got[1].Monitors[0].Name = "changed"
	if r.Snapshot().Monitors[0].Name == "changed" {
		t.Error("observer received shared state")
	}
}
