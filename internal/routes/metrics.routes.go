package routes

import (
	"uptimeboard/internal/controllers"
	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
)

// RegisterDashboardRoutes registers the read side of the dashboard
func RegisterDashboardRoutes(r *gin.Engine, d *controllers.Dashboard, telemetry *services.Telemetry) {
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	api := r.Group("/api")
	{
		api.GET("/snapshot", d.GetSnapshot)
		api.GET("/status", d.GetStatus)
	}

	charts := r.Group("/api/charts")
	{
		charts.GET("/main", d.GetMainChart)
		charts.GET("/main.png", d.GetMainChartPNG)
		charts.GET("/popup", d.GetPopupChart)
		charts.GET("/popup.png", d.GetPopupChartPNG)
		charts.DELETE("/popup", d.ClosePopup)
	}
}
