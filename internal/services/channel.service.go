package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"uptimeboard/internal/models"

	"github.com/gorilla/websocket"
)

// ConnState is the state of the push channel
type ConnState string

const (
	ConnClosed       ConnState = "closed"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
)

// ChannelConfig controls how the push channel dials and retries
type ChannelConfig struct {
	URL               string
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	HandshakeTimeout  time.Duration
}

// channelMessage is one frame on the push channel
type channelMessage struct {
	Type      models.EventKind `json:"type"`
	Timestamp time.Time        `json:"timestamp,omitzero"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

type channelConn struct {
	ws   *websocket.Conn
	send chan channelMessage
	done chan struct{}
}

// Channel owns the single authenticated push connection of a session
type Channel struct {
	cfg       ChannelConfig
	dialer    *websocket.Dialer
	handler   func(models.Event)
	onError   func(error)
	telemetry *Telemetry

	mu     sync.Mutex
	state  ConnState
	conn   *channelConn
	cancel context.CancelFunc
	dials  int
}

// NewChannel creates a closed channel. handler receives every decoded
// event in arrival order.
func NewChannel(cfg ChannelConfig, handler func(models.Event), telemetry *Telemetry) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Channel{
		cfg:     cfg,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		telemetry: telemetry,
		state:     ConnClosed,
	}
}

// OnError registers a callback for connect and transport failures
func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Open starts connecting with credential. Without a credential it logs and
// stays closed. While connecting or connected it returns the current state
// without dialing again.
func (c *Channel) Open(ctx context.Context, credential string) ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if credential == "" {
		log.Printf("[WS] No access token available, channel stays %s", c.state)
		return c.state
	}
	if c.state == ConnConnecting || c.state == ConnConnected {
		return c.state
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = ConnConnecting
	go c.run(runCtx, credential)
	return c.state
}

// State returns the current connection state
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the channel is connected
func (c *Channel) IsConnected() bool {
	return c.State() == ConnConnected
}

// Dials returns how many connection attempts have been made
func (c *Channel) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

// RequestSnapshot asks the backend to push a fresh analytics update. It
// returns false without sending when not connected.
func (c *Channel) RequestSnapshot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConnConnected || c.conn == nil {
		return false
	}
	select {
	case c.conn.send <- channelMessage{Type: models.EventRequestAnalytics, Timestamp: time.Now()}:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call repeatedly.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.ws.Close()
		c.conn = nil
	}
	if c.state != ConnClosed {
		log.Printf("[WS] Channel closed")
	}
	c.state = ConnClosed
	c.telemetry.SetConnected(false)
}

// run dials, pumps, and redials with a fixed delay until attempts run out
func (c *Channel) run(ctx context.Context, credential string) {
	failures := 0
	for {
		conn, err := c.dial(ctx, credential)
		if ctx.Err() != nil {
			if conn != nil {
				conn.ws.Close()
			}
			return
		}
		if err != nil {
			failures++
			c.reportError(&ChannelError{Op: "connect", Err: err})
			if failures > c.cfg.ReconnectAttempts {
				log.Printf("[WS] Giving up after %d attempts", failures)
				c.setState(ctx, ConnDisconnected, nil)
				return
			}
		} else {
			failures = 0
			if !c.setState(ctx, ConnConnected, conn) {
				conn.ws.Close()
				return
			}
			log.Printf("[WS] Connected to %s", c.cfg.URL)

			go c.writePump(conn)
			err = c.readPump(conn)
			close(conn.done)
			conn.ws.Close()
			if ctx.Err() != nil {
				return
			}
			c.reportError(&ChannelError{Op: "read", Err: err})
			c.setState(ctx, ConnConnecting, nil)
		}

		c.telemetry.IncReconnect()
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Channel) dial(ctx context.Context, credential string) (*channelConn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing channel url: %w", err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	c.mu.Lock()
	c.dials++
	c.mu.Unlock()

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &channelConn{
		ws:   ws,
		send: make(chan channelMessage, 16),
		done: make(chan struct{}),
	}, nil
}

func (c *Channel) setState(ctx context.Context, s ConnState, conn *channelConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.state = s
	c.conn = conn
	c.telemetry.SetConnected(s == ConnConnected)
	return true
}

func (c *Channel) reportError(err error) {
	log.Printf("[WS] %v", err)
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// readPump decodes frames until the connection fails
func (c *Channel) readPump(conn *channelConn) error {
	for {
		var msg channelMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Unexpected close: %v", err)
			}
			return err
		}

		ev, err := decodeEvent(msg)
		if err != nil {
			log.Printf("[WS] %v", &ChannelError{Op: "decode " + string(msg.Type), Err: err})
			continue
		}
		if ev == nil {
			log.Printf("[WS] Unknown message type: %s", msg.Type)
			continue
		}
		c.handler(*ev)
	}
}

// writePump serializes outbound frames for one connection
func (c *Channel) writePump(conn *channelConn) {
	for {
		select {
		case <-conn.done:
			return
		case msg := <-conn.send:
			if err := conn.ws.WriteJSON(msg); err != nil {
				log.Printf("[WS] Write error: %v", err)
				return
			}
		}
	}
}

// decodeEvent maps a frame to an event. Unknown types yield nil, nil.
func decodeEvent(msg channelMessage) (*models.Event, error) {
	switch msg.Type {
	case models.EventMonitorUpdate:
		var u models.MonitorUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			return nil, err
		}
		if u.Monitor.UUID == "" {
			return nil, fmt.Errorf("monitor update without uuid")
		}
		if u.Timestamp.IsZero() {
			u.Timestamp = msg.Timestamp
		}
		if u.PingTime().IsZero() {
			return nil, fmt.Errorf("monitor update %s without timestamp", u.Monitor.UUID)
		}
		ev := models.NewMonitorUpdateEvent(u)
		return &ev, nil

	case models.EventAnalyticsUpdate:
		var a models.AnalyticsUpdate
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			return nil, err
		}
		ev := models.NewAnalyticsEvent(a)
		return &ev, nil

	case models.EventMonitorStatus:
		var s models.MonitorStatusChange
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			return nil, err
		}
		if s.MonitorID == "" {
			return nil, fmt.Errorf("status change without monitorId")
		}
		ev := models.NewStatusEvent(s)
		return &ev, nil
	}
	return nil, nil
}
