package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"uptimeboard/internal/models"
)

// SessionConfig tunes the pieces a Session builds
type SessionConfig struct {
	Channel           ChannelConfig
	MainCapacity      int
	PopupCapacity     int
	InsertPolicy      InsertPolicy
	LoaderConcurrency int
	QueueSize         int
	RefreshSkew       time.Duration
}

// SessionStatus is a point-in-time view of the session for diagnostics
type SessionStatus struct {
	Channel       ConnState    `json:"channel"`
	Main          SurfaceState `json:"main"`
	Popup         SurfaceState `json:"popup"`
	Inspected     string       `json:"inspected,omitempty"`
	Ready         bool         `json:"ready"`
	HeldByGate    int          `json:"heldByGate"`
	HeldByCore    int          `json:"heldByCore"`
	Queued        int          `json:"queued"`
	LastError     string       `json:"lastError,omitempty"`
	LastErrorTime time.Time    `json:"lastErrorTime,omitzero"`
}

// Session wires the channel, loader, gate and core for one login
type Session struct {
	cfg       SessionConfig
	store     *CredentialStore
	api       *APIClient
	loader    *SnapshotLoader
	telemetry *Telemetry

	core    *Reconciler
	gate    *ReadinessGate
	queue   *EventQueue
	channel *Channel

	Main  *ChartSurface
	Popup *ChartSurface

	mu          sync.Mutex
	runCtx      context.Context
	cancel      context.CancelFunc
	loads       sync.WaitGroup
	lastErr     error
	lastErrAt   time.Time
	snapshotFns []func(*models.AggregateSnapshot)
}

// NewSession builds a session. Nothing connects until Start.
func NewSession(cfg SessionConfig, store *CredentialStore, api *APIClient, telemetry *Telemetry) *Session {
	policy := cfg.InsertPolicy
	if policy == "" {
		policy = PolicyAppend
	}

	s := &Session{
		cfg:       cfg,
		store:     store,
		api:       api,
		loader:    NewSnapshotLoader(api, cfg.LoaderConcurrency, telemetry),
		telemetry: telemetry,
		Main:      NewChartSurface(models.SurfaceMain, telemetry),
		Popup:     NewChartSurface(models.SurfacePopup, telemetry),
	}
	s.core = NewReconciler(cfg.MainCapacity, cfg.PopupCapacity, policy, s.Main, s.Popup,
		WithTelemetry(telemetry),
		WithSnapshotObserver(s.fanSnapshot),
	)
	s.queue = NewEventQueue(cfg.QueueSize, s.core.Apply)
	s.gate = NewReadinessGate(s.queue.Enqueue)
	s.channel = NewChannel(cfg.Channel, s.gate.Submit, telemetry)
	s.channel.OnError(s.recordError)
	return s
}

// OnSnapshot registers a listener for aggregate changes. Call before Start.
func (s *Session) OnSnapshot(fn func(*models.AggregateSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotFns = append(s.snapshotFns, fn)
}

// Start refreshes the access token if needed, opens the push channel and
// loads the initial snapshot in the background
func (s *Session) Start(ctx context.Context) error {
	if !s.store.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if err := s.ensureFreshToken(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.mu.Unlock()

	go s.queue.Run(runCtx)

	s.core.BeginPriming()
	state := s.channel.Open(runCtx, s.store.AccessToken())
	log.Printf("[SESSION] Started (channel %s)", state)

	s.loads.Go(func() { s.load(runCtx) })
	return nil
}

// ViewReady tells the gate the chart surfaces are attached
func (s *Session) ViewReady() {
	s.gate.OnViewReady()
}

// Refresh discards the main series and reloads everything
func (s *Session) Refresh(ctx context.Context) error {
	runCtx, err := s.context()
	if err != nil {
		return err
	}

	s.gate.RearmHistorical()
	s.core.BeginPriming()
	if !s.channel.RequestSnapshot() && s.channel.State() == ConnDisconnected {
		s.channel.Open(runCtx, s.store.AccessToken())
	}
	s.loads.Go(func() { s.load(runCtx) })
	log.Printf("[SESSION] Manual refresh")
	return nil
}

// Inspect shows one monitor on the popup surface and loads its history
func (s *Session) Inspect(ctx context.Context, uuid string) error {
	runCtx, err := s.context()
	if err != nil {
		return err
	}
	m := s.core.Snapshot().Find(uuid)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrUnknownMonitor, uuid)
	}

	s.core.Inspect(uuid)
	s.loads.Go(func() {
		records, err := s.loader.LoadMonitorHistory(runCtx, m)
		if err != nil {
			s.recordError(err)
		}
		s.core.CompletePopup(uuid, ToPoints(records), err)
	})
	return nil
}

// ClosePopup detaches the popup surface
func (s *Session) ClosePopup() {
	s.core.ClosePopup()
}

// DeleteMonitor removes a monitor on the backend, then from the core
func (s *Session) DeleteMonitor(ctx context.Context, uuid string) error {
	if err := s.api.DeleteMonitor(ctx, uuid); err != nil {
		return fmt.Errorf("deleting monitor %s: %w", uuid, err)
	}
	s.core.RemoveMonitor(uuid)
	return nil
}

// SetMonitorStatus pauses or resumes a monitor
func (s *Session) SetMonitorStatus(ctx context.Context, uuid string, status models.MonitorStatus) error {
	if err := s.api.UpdateMonitorStatus(ctx, uuid, status); err != nil {
		return fmt.Errorf("updating monitor %s: %w", uuid, err)
	}
	s.core.SetMonitorStatus(uuid, status)
	return nil
}

// Logout ends the session. Local credentials are cleared even when the
// backend call fails.
func (s *Session) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if err != nil {
		log.Printf("[SESSION] Backend logout failed: %v", err)
	}
	s.Stop()
	if clearErr := s.store.Clear(); clearErr != nil {
		return fmt.Errorf("clearing credentials: %w", clearErr)
	}
	return err
}

// Stop closes the channel and waits for in-flight loads
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.channel.Close()
	s.loads.Wait()
}

// Wait blocks until in-flight loads finished
func (s *Session) Wait() {
	s.loads.Wait()
}

// Snapshot returns a copy of the held aggregate
func (s *Session) Snapshot() *models.AggregateSnapshot {
	return s.core.Snapshot()
}

// Core exposes the reconciliation core for read access
func (s *Session) Core() *Reconciler {
	return s.core
}

// Channel exposes the push channel
func (s *Session) Channel() *Channel {
	return s.channel
}

// Status summarizes the session
func (s *Session) Status() SessionStatus {
	st := SessionStatus{
		Channel:    s.channel.State(),
		Main:       s.core.State(models.SurfaceMain),
		Popup:      s.core.State(models.SurfacePopup),
		Inspected:  s.core.Inspected(),
		Ready:      s.gate.Ready(),
		HeldByGate: s.gate.Pending(),
		HeldByCore: s.core.PendingEvents(),
		Queued:     s.queue.Len(),
	}
	s.mu.Lock()
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
		st.LastErrorTime = s.lastErrAt
	}
	s.mu.Unlock()
	return st
}

// LastError returns the most recent load or channel failure
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// load fetches the aggregate and every history. Held events are released
// into the queue before the history lands so they join the priming merge.
func (s *Session) load(ctx context.Context) {
	var (
		points []models.TimeSeriesPoint
		err    error
	)
	snap, err := s.loader.LoadAggregate(ctx)
	if err != nil {
		s.recordError(err)
	} else {
		s.core.ReplaceSnapshot(snap)
		points = ToPoints(s.loader.LoadAllHistories(ctx, snap.Monitors))
	}

	s.gate.OnHistoricalDataLoaded()
	s.queue.Do(func() { s.core.CompletePriming(points, err) })
}

func (s *Session) ensureFreshToken(ctx context.Context) error {
	if !NeedsRefresh(s.store.AccessToken(), s.cfg.RefreshSkew, time.Now()) {
		return nil
	}
	refresh := s.store.RefreshToken()
	if refresh == "" {
		return fmt.Errorf("%w: access token expired and no refresh token stored", ErrNotAuthenticated)
	}
	res, err := s.api.RefreshToken(ctx, refresh)
	if err != nil {
		return fmt.Errorf("%w: refreshing access token: %v", ErrNotAuthenticated, err)
	}
	if err := s.store.SaveAuth(res); err != nil {
		return fmt.Errorf("saving refreshed token: %w", err)
	}
	log.Printf("[SESSION] Access token refreshed")
	return nil
}

func (s *Session) context() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil || s.runCtx.Err() != nil {
		return nil, ErrNotStarted
	}
	return s.runCtx, nil
}

func (s *Session) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.lastErrAt = time.Now()
}

func (s *Session) fanSnapshot(snap *models.AggregateSnapshot) {
	s.mu.Lock()
	fns := s.snapshotFns
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
