package services

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"

	"uptimeboard/internal/models"

	"golang.org/x/sync/semaphore"
)

// SnapshotLoader performs the bulk fetches that seed the core
type SnapshotLoader struct {
	api         *APIClient
	concurrency int64
	telemetry   *Telemetry
}

// NewSnapshotLoader creates a loader issuing at most concurrency history
// requests at once
func NewSnapshotLoader(api *APIClient, concurrency int, telemetry *Telemetry) *SnapshotLoader {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &SnapshotLoader{api: api, concurrency: int64(concurrency), telemetry: telemetry}
}

// LoadAggregate fetches the aggregate snapshot
func (l *SnapshotLoader) LoadAggregate(ctx context.Context) (*models.AggregateSnapshot, error) {
	snap, err := l.api.GetAllAnalytics(ctx)
	if err != nil {
		return nil, l.fail("load aggregate", "", err)
	}
	return snap, nil
}

// LoadMonitorHistory fetches one monitor's ping log, oldest first
func (l *SnapshotLoader) LoadMonitorHistory(ctx context.Context, m *models.Monitor) ([]models.PingRecord, error) {
	stats, err := l.api.GetMonitorStats(ctx, m.UUID)
	if err != nil {
		return nil, l.fail("load history", m.UUID, err)
	}
	records := stats.ResponseLogs
	for i := range records {
		records[i].MonitorUUID = m.UUID
		records[i].MonitorName = m.Name
	}
	sortRecords(records)
	return records, nil
}

// LoadAllHistories fetches every monitor's history concurrently. A failed
// monitor contributes nothing; the rest are merged oldest first.
func (l *SnapshotLoader) LoadAllHistories(ctx context.Context, monitors []*models.Monitor) []models.PingRecord {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		merged []models.PingRecord
		failed int
	)
	sem := semaphore.NewWeighted(l.concurrency)

	for _, m := range monitors {
		if m == nil {
			continue
		}
		wg.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Printf("[LOADER] Acquiring slot for %s: %v", m.UUID, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			records, err := l.LoadMonitorHistory(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[LOADER] %v", err)
				failed++
				return
			}
			merged = append(merged, records...)
		})
	}
	wg.Wait()

	sortRecords(merged)
	log.Printf("[LOADER] Loaded %d history records from %d monitors (%d failed)", len(merged), len(monitors), failed)
	return merged
}

func (l *SnapshotLoader) fail(op, subject string, err error) error {
	l.telemetry.IncSnapshotFailure(op)
	se := &SnapshotError{Op: op, Err: err}
	if subject != "" {
		se.Op = op + " " + subject
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		se.Status = apiErr.Status
	}
	return se
}

func sortRecords(records []models.PingRecord) {
	slices.SortStableFunc(records, func(a, b models.PingRecord) int {
		return a.PingTime.Compare(b.PingTime)
	})
}

// ToPoints converts ping records into chart points
func ToPoints(records []models.PingRecord) []models.TimeSeriesPoint {
	out := make([]models.TimeSeriesPoint, 0, len(records))
	for _, r := range records {
		out = append(out, models.TimeSeriesPoint{
			Timestamp:  r.PingTime.UnixMilli(),
			Value:      r.PingTimeTaken,
			Label:      r.PingTime.Format("15:04:05"),
			Source:     r.MonitorName,
			StatusCode: r.PingStatusCode,
		})
	}
	return out
}
