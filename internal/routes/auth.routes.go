package routes

import (
	"uptimeboard/internal/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterStreamRoutes registers the viewer WebSocket. Viewer tokens are
// issued via the CLI only.
func RegisterStreamRoutes(r *gin.Engine, d *controllers.Dashboard) {
	r.GET("/ws", d.HandleWebSocket)
}
