package services

import (
	"log"
	"sync"

	"uptimeboard/internal/models"
)

// ReadinessGate holds live events until the view is ready and historical
// data has loaded, then releases them in arrival order.
type ReadinessGate struct {
	mu         sync.Mutex
	viewReady  bool
	historical bool
	held       []models.Event
	sink       func(models.Event)
}

// NewReadinessGate creates a closed gate that releases into sink
func NewReadinessGate(sink func(models.Event)) *ReadinessGate {
	return &ReadinessGate{sink: sink}
}

// OnViewReady marks the chart surfaces as attached. Idempotent.
func (g *ReadinessGate) OnViewReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.viewReady {
		return
	}
	g.viewReady = true
	g.flushLocked()
}

// OnHistoricalDataLoaded marks the snapshot as landed. Idempotent.
func (g *ReadinessGate) OnHistoricalDataLoaded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.historical {
		return
	}
	g.historical = true
	g.flushLocked()
}

// RearmHistorical closes the gate again for a manual refresh. View
// readiness is kept.
func (g *ReadinessGate) RearmHistorical() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.historical = false
}

// Submit passes ev through if the gate is open, otherwise holds it
func (g *ReadinessGate) Submit(ev models.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.viewReady || !g.historical {
		g.held = append(g.held, ev)
		return
	}
	g.sink(ev)
}

// Ready reports whether both conditions hold
func (g *ReadinessGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewReady && g.historical
}

// Pending returns how many events are held
func (g *ReadinessGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

func (g *ReadinessGate) flushLocked() {
	if !g.viewReady || !g.historical || len(g.held) == 0 {
		return
	}
	held := g.held
	g.held = nil
	log.Printf("[GATE] Releasing %d held events", len(held))
	for _, ev := range held {
		g.sink(ev)
	}
}
