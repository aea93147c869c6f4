package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"uptimeboard/internal/models"

	"github.com/gorilla/websocket"
)

// fakeBackend serves the REST endpoints and the push channel
type fakeBackend struct {
	srv *httptest.Server

	mu        sync.Mutex
	snapshot  models.AggregateSnapshot
	histories map[string][]models.PingRecord
	failing   map[string]bool
	deleted   []string
	statuses  map[string]models.MonitorStatus
	logoutErr bool
	conns     []*websocket.Conn

	historyGate chan struct{}
	refreshes   atomic.Int32
	logouts     atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		histories: map[string][]models.PingRecord{},
		failing:   map[string]bool{},
		statuses:  map[string]models.MonitorStatus{},
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/monitor/analytics/all", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		snap := b.snapshot
		b.mu.Unlock()
		writeEnvelope(w, http.StatusOK, true, "", snap)
	})
	mux.HandleFunc("GET /api/monitor/stats/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		gate := b.historyGate
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		id := r.PathValue("id")
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failing[id] {
			writeEnvelope(w, http.StatusInternalServerError, false, "stats unavailable", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "", models.MonitorStats{ResponseLogs: b.histories[id]})
	})
	mux.HandleFunc("DELETE /api/monitor/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("id"))
		b.mu.Unlock()
		writeEnvelope(w, http.StatusOK, true, "deleted", nil)
	})
	mux.HandleFunc("PATCH /api/monitor/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.statuses[r.PathValue("id")] = models.MonitorPaused
		b.mu.Unlock()
		writeEnvelope(w, http.StatusOK, true, "", nil)
	})
	mux.HandleFunc("POST /api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		b.refreshes.Add(1)
		writeEnvelope(w, http.StatusOK, true, "", models.AuthResult{AccessToken: signedToken(t, time.Hour)})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.logouts.Add(1)
		if b.logoutErr {
			writeEnvelope(w, http.StatusInternalServerError, false, "logout failed", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "", nil)
	})
	mux.HandleFunc("GET /socket", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, ws)
		b.mu.Unlock()
		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) socketURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/socket"
}

func (b *fakeBackend) connected() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *fakeBackend) push(t *testing.T, ev models.Event) {
	t.Helper()
	var payload any
	switch ev.Kind {
	case models.EventMonitorUpdate:
		payload = ev.Update
	case models.EventAnalyticsUpdate:
		payload = ev.Analytics
	case models.EventMonitorStatus:
		payload = ev.Status
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ws := b.conns[len(b.conns)-1]
	if err := ws.WriteJSON(map[string]any{"type": ev.Kind, "data": payload}); err != nil {
		t.Fatal(err)
	}
}

func records(uuid string, ms ...int64) []models.PingRecord {
	out := make([]models.PingRecord, 0, len(ms))
	for _, m := range ms {
		out = append(out, models.PingRecord{
			PingTime:       time.UnixMilli(m).UTC(),
			PingStatusCode: 200,
			PingTimeTaken:  float64(m),
		})
	}
	return out
}
