package controllers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"uptimeboard/internal/middleware"
	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// HandleWebSocket streams chart frames and snapshots to a viewer. The
// viewer token comes from the token query param or a bearer header.
func (d *Dashboard) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		d.security.LogFailedAuth(c.ClientIP(), "missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if !middleware.ValidTokenShape(token) {
		d.security.LogFailedAuth(c.ClientIP(), "malformed token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	claims, err := d.auth.ValidateToken(token)
	if err != nil {
		d.security.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := d.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}
	d.security.LogViewerConnected(c.ClientIP(), claims.Viewer)

	client := services.NewClientConnection(ws, claims.Viewer)
	d.hub.Register(client)

	go d.readPump(client, c.ClientIP())
	go d.writePump(client)
}

// readPump reads messages from the viewer
func (d *Dashboard) readPump(client *services.ClientConnection, ip string) {
	defer func() {
		d.hub.Unregister(client.ID)
		close(client.Close)
		client.Conn.Close()
		d.security.LogViewerDisconnected(ip, client.ID)
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg services.WebSocketMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error from %s: %v", client.ID, err)
			}
			return
		}

		var reply *services.WebSocketMessage
		switch msg.Type {
		case "ping":
			reply = &services.WebSocketMessage{Type: "pong", Timestamp: time.Now()}

		case "status":
			reply = &services.WebSocketMessage{Type: "status", Timestamp: time.Now(), Data: d.session.Status()}

		case "unsubscribe":
			return

		default:
			log.Printf("[WS] Unknown message type from %s: %s", client.ID, msg.Type)
			reply = &services.WebSocketMessage{Type: "error", Timestamp: time.Now(), Error: "unknown message type"}
		}

		if reply != nil {
			select {
			case client.Send <- *reply:
			default:
			}
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (d *Dashboard) writePump(client *services.ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] Write error: %v", err)
				}
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Close:
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
