package routes

import (
	"uptimeboard/internal/controllers"
	"uptimeboard/internal/middleware"
	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
)

// RouterOptions carries the access rules for the dashboard server
type RouterOptions struct {
	AllowedIPs     []string
	AllowedOrigins []string
}

// NewRouter builds the dashboard engine with middleware and all routes
func NewRouter(d *controllers.Dashboard, telemetry *services.Telemetry, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	r.Use(middleware.IPWhitelistMiddleware(middleware.NewIPWhitelist(opts.AllowedIPs)))
	r.Use(middleware.RateLimitMiddleware(middleware.NewAPIRateLimiter()))

	RegisterDashboardRoutes(r, d, telemetry)
	RegisterMonitorRoutes(r, d, middleware.NewActionRateLimiter())
	RegisterStreamRoutes(r, d)
	return r
}
