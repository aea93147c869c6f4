package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"uptimeboard/internal/controllers"
	"uptimeboard/internal/models"
	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	monitorA = "64b7f0c2e1a2b3c4d5e6f708"
	missing  = "9f0e1d2c-3b4a-4968-8776-655443322110"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// backend fakes the REST side of the uptime service
type backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/monitor/analytics/all", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeData(w, models.AggregateSnapshot{
			TotalMonitors:  1,
			ActiveMonitors: 1,
			Monitors: []*models.Monitor{
				{UUID: monitorA, Name: "alpha", Status: models.MonitorActive, UptimePercent: 99},
			},
		})
	})
	mux.HandleFunc("/api/monitor/stats/", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeData(w, models.MonitorStats{ResponseLogs: []models.PingRecord{
			{PingTime: time.UnixMilli(1000).UTC(), PingStatusCode: 200, PingTimeTaken: 40},
			{PingTime: time.UnixMilli(2000).UTC(), PingStatusCode: 200, PingTimeTaken: 42},
		}})
	})
	mux.HandleFunc("/api/monitor/status/", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeData(w, nil)
	})
	mux.HandleFunc("/api/monitor/delete/", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeData(w, nil)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
}

func (b *backend) saw(req string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.requests {
		if r == req {
			return true
		}
	}
	return false
}

func writeData(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.Envelope{Success: true, Data: raw})
}

type harness struct {
	backend *backend
	session *services.Session
	auth    *services.ViewerAuth
	router  *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := newBackend(t)

	store, err := services.OpenCredentialStore(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SaveAuth(&models.AuthResult{AccessToken: "access", RefreshToken: "refresh"}); err != nil {
		t.Fatal(err)
	}

	tel := services.NewTelemetry()
	api := services.NewAPIClient(b.srv.URL, store, 5*time.Second)
	session := services.NewSession(services.SessionConfig{
		Channel: services.ChannelConfig{
			URL:               "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/socket",
			ReconnectDelay:    10 * time.Millisecond,
			ReconnectAttempts: 1,
		},
		MainCapacity: 100,
	}, store, api, tel)
	t.Cleanup(session.Stop)

	hub := services.NewViewerHub(func() []services.WebSocketMessage {
		return []services.WebSocketMessage{{Type: "snapshot", Timestamp: time.Now(), Data: session.Snapshot()}}
	}, tel)
	t.Cleanup(hub.Stop)

	auth, err := services.NewViewerAuth(bytes.Repeat([]byte("k"), 32), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	d := controllers.NewDashboard(session, hub, auth, nil, nil, nil)
	return &harness{
		backend: b,
		session: session,
		auth:    auth,
		router:  NewRouter(d, tel, RouterOptions{}),
	}
}

func (h *harness) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:5000"
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.session.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	h.session.ViewReady()
	deadline := time.Now().Add(3 * time.Second)
	for h.session.Core().State(models.SurfaceMain) != services.StateLive {
		if time.Now().After(deadline) {
			t.Fatal("main surface never went live")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReadRoutesBeforeStart(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name        string
		method      string
		path        string
		wantCode    int
		contentType string
	}{
		{"snapshot", http.MethodGet, "/api/snapshot", http.StatusOK, "application/json"},
		{"status", http.MethodGet, "/api/status", http.StatusOK, "application/json"},
		{"main frame", http.MethodGet, "/api/charts/main", http.StatusOK, "application/json"},
		{"popup frame", http.MethodGet, "/api/charts/popup", http.StatusOK, "application/json"},
		{"main png", http.MethodGet, "/api/charts/main.png", http.StatusOK, "image/png"},
		{"bad width", http.MethodGet, "/api/charts/main.png?width=5", http.StatusBadRequest, "application/json"},
		{"refresh before start", http.MethodPost, "/api/refresh", http.StatusServiceUnavailable, "application/json"},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(tt.method, tt.path)
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("content type = %q, want %q", ct, tt.contentType)
			}
		})
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/snapshot")
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestMonitorActions(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	if w := h.do(http.MethodPost, "/api/monitors/bad.id/inspect"); w.Code != http.StatusBadRequest {
		t.Errorf("bad uuid code = %d", w.Code)
	}
	if w := h.do(http.MethodPost, "/api/monitors/"+missing+"/inspect"); w.Code != http.StatusNotFound {
		t.Errorf("unknown monitor code = %d", w.Code)
	}

	if w := h.do(http.MethodPost, "/api/monitors/"+monitorA+"/inspect"); w.Code != http.StatusAccepted {
		t.Fatalf("inspect code = %d (%s)", w.Code, w.Body.String())
	}
	h.session.Wait()

	var frame models.ChartFrame
	w := h.do(http.MethodGet, "/api/charts/popup")
	if err := json.Unmarshal(w.Body.Bytes(), &frame); err != nil {
		t.Fatal(err)
	}
	if frame.MonitorUUID != monitorA || frame.Len() != 2 {
		t.Errorf("popup frame = %+v", frame)
	}

	if w := h.do(http.MethodPost, "/api/monitors/"+monitorA+"/pause"); w.Code != http.StatusOK {
		t.Errorf("pause code = %d", w.Code)
	}
	if !h.backend.saw("PATCH /api/monitor/status/" + monitorA) {
		t.Error("backend never saw the status change")
	}
	if got := h.session.Snapshot().Find(monitorA).Status; got != models.MonitorPaused {
		t.Errorf("status = %s", got)
	}

	if w := h.do(http.MethodDelete, "/api/charts/popup"); w.Code != http.StatusNoContent {
		t.Errorf("close popup code = %d", w.Code)
	}
	if w := h.do(http.MethodDelete, "/api/monitors/"+monitorA); w.Code != http.StatusNoContent {
		t.Errorf("delete code = %d", w.Code)
	}
	if h.session.Snapshot().Find(monitorA) != nil {
		t.Error("monitor still held after delete")
	}
}

func TestViewerStream(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without token succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: %v", err)
	}

	token, _, err := h.auth.GenerateToken("tester")
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg services.WebSocketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "snapshot" {
		t.Errorf("welcome = %q", msg.Type)
	}

	if err := conn.WriteJSON(services.WebSocketMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "pong" {
		t.Errorf("reply = %q, want pong", msg.Type)
	}
}
