package controllers

import (
	"errors"
	"net/http"

	"uptimeboard/internal/middleware"
	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Dashboard holds what the HTTP handlers need. One per serve process.
type Dashboard struct {
	session   *services.Session
	hub       *services.ViewerHub
	auth      *services.ViewerAuth
	resources *services.ResourceMonitor
	security  *middleware.SecurityLogger
	upgrader  websocket.Upgrader
}

// NewDashboard creates the controllers. resources may be nil.
func NewDashboard(session *services.Session, hub *services.ViewerHub, auth *services.ViewerAuth,
	resources *services.ResourceMonitor, security *middleware.SecurityLogger, allowedOrigins []string) *Dashboard {
	if security == nil {
		security = middleware.NewSecurityLogger()
	}
	return &Dashboard{
		session:   session,
		hub:       hub,
		auth:      auth,
		resources: resources,
		security:  security,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no origin
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

// errorStatus maps session errors onto HTTP codes
func errorStatus(err error) int {
	var apiErr *services.APIError
	switch {
	case errors.Is(err, services.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrUnknownMonitor):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}
