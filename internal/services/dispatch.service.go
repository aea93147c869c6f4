package services

import (
	"context"
	"log"
	"sync"

	"uptimeboard/internal/models"
)

// queueItem is either an event for the core or a step that must run in
// order with events, such as landing a historical load
type queueItem struct {
	event *models.Event
	fn    func()
}

// EventQueue is the single ordered inbound path into the core. One
// goroutine drains it, so items are applied in the order enqueued.
type EventQueue struct {
	items   chan queueItem
	apply   func(models.Event) ApplyResult
	done    chan struct{}
	stopped sync.Once
}

// NewEventQueue creates a queue that feeds apply
func NewEventQueue(size int, apply func(models.Event) ApplyResult) *EventQueue {
	if size <= 0 {
		size = 256
	}
	return &EventQueue{
		items: make(chan queueItem, size),
		apply: apply,
		done:  make(chan struct{}),
	}
}

// Enqueue adds ev, blocking while the queue is full. It is a no-op after
// the queue stopped.
func (q *EventQueue) Enqueue(ev models.Event) {
	q.put(queueItem{event: &ev})
}

// Do runs fn on the queue goroutine after everything enqueued before it
func (q *EventQueue) Do(fn func()) {
	q.put(queueItem{fn: fn})
}

func (q *EventQueue) put(item queueItem) {
	select {
	case <-q.done:
		return
	default:
	}
	select {
	case q.items <- item:
	case <-q.done:
	}
}

// Run drains the queue until ctx is cancelled
func (q *EventQueue) Run(ctx context.Context) {
	defer q.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			if item.fn != nil {
				item.fn()
				continue
			}
			res := q.apply(*item.event)
			if res != Accepted && res != Queued {
				log.Printf("[QUEUE] %s event %s", item.event.Kind, res)
			}
		}
	}
}

// Len returns the number of events waiting
func (q *EventQueue) Len() int {
	return len(q.items)
}

func (q *EventQueue) stop() {
	q.stopped.Do(func() { close(q.done) })
}
