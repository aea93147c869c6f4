package services

import (
	"fmt"
	"slices"
	"sort"

	"uptimeboard/internal/models"
)

// DefaultSeriesCapacity is the number of points kept per chart surface
const DefaultSeriesCapacity = 100

// InsertPolicy decides what happens to a live point older than the newest one held
type InsertPolicy string

const (
	// PolicyAppend drops any point not newer than the buffer maximum
	PolicyAppend InsertPolicy = "append"
	// PolicySorted inserts late points in timestamp order
	PolicySorted InsertPolicy = "sorted"
)

// ParseInsertPolicy validates a configured policy name
func ParseInsertPolicy(s string) (InsertPolicy, error) {
	switch InsertPolicy(s) {
	case "", PolicyAppend:
		return PolicyAppend, nil
	case PolicySorted:
		return PolicySorted, nil
	default:
		return "", fmt.Errorf("unknown insert policy %q", s)
	}
}

// ApplyResult is the outcome of offering a point or event to the core.
// Duplicate and Stale are conflicts, not errors.
type ApplyResult int

const (
	Accepted ApplyResult = iota
	Duplicate
	Stale
	Discarded
	Queued
)

func (r ApplyResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	case Discarded:
		return "discarded"
	case Queued:
		return "queued"
	default:
		return fmt.Sprintf("ApplyResult(%d)", int(r))
	}
}

// SeriesBuffer holds a bounded, timestamp-ascending, duplicate-free run of
// points. It is not safe for concurrent use; the Reconciler owns it.
type SeriesBuffer struct {
	points   []models.TimeSeriesPoint
	capacity int
	policy   InsertPolicy
}

// NewSeriesBuffer creates an empty buffer
func NewSeriesBuffer(capacity int, policy InsertPolicy) *SeriesBuffer {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	if policy == "" {
		policy = PolicyAppend
	}
	return &SeriesBuffer{
		points:   make([]models.TimeSeriesPoint, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

// Add applies one live point
func (b *SeriesBuffer) Add(p models.TimeSeriesPoint) ApplyResult {
	n := len(b.points)
	if n == 0 || p.Timestamp > b.points[n-1].Timestamp {
		b.points = append(b.points, p)
		b.evict()
		return Accepted
	}

	i, found := b.search(p.Timestamp)
	if found {
		return Duplicate
	}
	if b.policy != PolicySorted {
		return Stale
	}
	// Older than everything in a full buffer: it would be evicted immediately
	if i == 0 && n >= b.capacity {
		return Stale
	}
	b.points = slices.Insert(b.points, i, p)
	b.evict()
	return Accepted
}

// Replace swaps the contents for the newest capacity points of pts
func (b *SeriesBuffer) Replace(pts []models.TimeSeriesPoint) {
	b.points = normalizePoints(pts, b.capacity)
}

// Merge unions pts into the current contents. Points already held win on
// equal timestamps.
func (b *SeriesBuffer) Merge(pts []models.TimeSeriesPoint) {
	all := make([]models.TimeSeriesPoint, 0, len(b.points)+len(pts))
	all = append(all, b.points...)
	all = append(all, pts...)
	b.points = normalizePoints(all, b.capacity)
}

// Reset empties the buffer
func (b *SeriesBuffer) Reset() {
	b.points = b.points[:0]
}

// Points returns a copy of the contents
func (b *SeriesBuffer) Points() []models.TimeSeriesPoint {
	return slices.Clone(b.points)
}

func (b *SeriesBuffer) Len() int { return len(b.points) }

func (b *SeriesBuffer) Cap() int { return b.capacity }

// Max returns the newest timestamp held
func (b *SeriesBuffer) Max() (int64, bool) {
	if len(b.points) == 0 {
		return 0, false
	}
	return b.points[len(b.points)-1].Timestamp, true
}

// Contains reports whether a point with timestamp ts is held
func (b *SeriesBuffer) Contains(ts int64) bool {
	_, found := b.search(ts)
	return found
}

func (b *SeriesBuffer) search(ts int64) (int, bool) {
	i := sort.Search(len(b.points), func(i int) bool {
		return b.points[i].Timestamp >= ts
	})
	return i, i < len(b.points) && b.points[i].Timestamp == ts
}

func (b *SeriesBuffer) evict() {
	if over := len(b.points) - b.capacity; over > 0 {
		b.points = slices.Delete(b.points, 0, over)
	}
}

// normalizePoints sorts ascending, drops later duplicates and keeps the
// last capacity points.
func normalizePoints(pts []models.TimeSeriesPoint, capacity int) []models.TimeSeriesPoint {
	out := slices.Clone(pts)
	slices.SortStableFunc(out, func(a, b models.TimeSeriesPoint) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	out = slices.CompactFunc(out, func(a, b models.TimeSeriesPoint) bool {
		return a.Timestamp == b.Timestamp
	})
	if len(out) > capacity {
		out = slices.Clone(out[len(out)-capacity:])
	}
	return out
}
