package services

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"uptimeboard/internal/models"
)

type eventLog struct {
	mu  sync.Mutex
	got []int64
}

func (l *eventLog) sink(ev models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, ev.Update.PingTime().UnixMilli())
}

func (l *eventLog) list() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.got)
}

func TestReadinessGateHoldsUntilBoth(t *testing.T) {
	orders := []struct {
		name  string
		first func(*ReadinessGate)
		then  func(*ReadinessGate)
	}{
		{"view first", (*ReadinessGate).OnViewReady, (*ReadinessGate).OnHistoricalDataLoaded},
		{"history first", (*ReadinessGate).OnHistoricalDataLoaded, (*ReadinessGate).OnViewReady},
	}
	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			l := &eventLog{}
			g := NewReadinessGate(l.sink)

			g.Submit(updateAt("a", 3))
			tt.first(g)
			g.Submit(updateAt("a", 1))
			g.Submit(updateAt("a", 2))
			tt.first(g)

			if got := l.list(); len(got) != 0 {
				t.Fatalf("released early: %v", got)
			}
			if g.Pending() != 3 {
				t.Fatalf("pending = %d", g.Pending())
			}

			tt.then(g)
			tt.then(g)
			g.Submit(updateAt("a", 4))

			if got := l.list(); !slices.Equal(got, []int64{3, 1, 2, 4}) {
				t.Errorf("released %v, want arrival order", got)
			}
			if !g.Ready() || g.Pending() != 0 {
				t.Error("gate should be open and empty")
			}
		})
	}
}

func TestReadinessGateRearm(t *testing.T) {
	l := &eventLog{}
	g := NewReadinessGate(l.sink)
	g.OnViewReady()
	g.OnHistoricalDataLoaded()
	g.Submit(updateAt("a", 1))

	g.RearmHistorical()
	g.Submit(updateAt("a", 2))
	if got := l.list(); !slices.Equal(got, []int64{1}) {
		t.Fatalf("released = %v", got)
	}
	g.OnHistoricalDataLoaded()
	if got := l.list(); !slices.Equal(got, []int64{1, 2}) {
		t.Errorf("released = %v", got)
	}
}

func TestEventQueueOrder(t *testing.T) {
	l := &eventLog{}
	q := NewEventQueue(4, func(ev models.Event) ApplyResult {
		l.sink(ev)
		return Accepted
	})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	want := make([]int64, 0, 21)
	for i := int64(1); i <= 20; i++ {
		q.Enqueue(updateAt("a", i))
		want = append(want, i)
		if i == 10 {
			q.Do(func() { l.sink(updateAt("a", 1000)) })
			want = append(want, 1000)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(l.list()) < len(want) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := l.list(); !slices.Equal(got, want) {
		t.Errorf("applied %v", got)
	}

	cancel()
	<-done
	q.Enqueue(updateAt("a", 99))
	if q.Len() != 0 {
		t.Error("enqueue after stop should be a no-op")
	}
}
