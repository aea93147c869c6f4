package routes

import (
	"uptimeboard/internal/controllers"
	"uptimeboard/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterMonitorRoutes registers the actions that reach the backend.
// They share a stricter per-IP limiter.
func RegisterMonitorRoutes(r *gin.Engine, d *controllers.Dashboard, limiter *middleware.RateLimiter) {
	actions := r.Group("/api", middleware.RateLimitMiddleware(limiter))
	{
		actions.POST("/refresh", d.Refresh)
	}

	monitors := r.Group("/api/monitors/:uuid", middleware.RateLimitMiddleware(limiter), middleware.MonitorIDMiddleware())
	{
		monitors.POST("/inspect", d.InspectMonitor)
		monitors.POST("/pause", d.PauseMonitor)
		monitors.POST("/resume", d.ResumeMonitor)
		monitors.DELETE("", d.DeleteMonitor)
	}
}
