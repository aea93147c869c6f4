package controllers

import (
	"bytes"
	"net/http"
	"strconv"

	"uptimeboard/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	defaultChartWidth  = 800
	defaultChartHeight = 300
	maxChartSide       = 4000
)

// GetMainChart returns the main surface's latest frame
func (d *Dashboard) GetMainChart(c *gin.Context) {
	c.JSON(http.StatusOK, d.session.Main.Frame())
}

// GetPopupChart returns the popup surface's latest frame
func (d *Dashboard) GetPopupChart(c *gin.Context) {
	c.JSON(http.StatusOK, d.session.Popup.Frame())
}

// GetMainChartPNG renders the main surface
// Query params: width, height (pixels, default 800x300)
func (d *Dashboard) GetMainChartPNG(c *gin.Context) {
	renderSurface(c, d.session.Main)
}

// GetPopupChartPNG renders the popup surface
func (d *Dashboard) GetPopupChartPNG(c *gin.Context) {
	renderSurface(c, d.session.Popup)
}

func renderSurface(c *gin.Context, surface *services.ChartSurface) {
	width, ok := chartSide(c, "width", defaultChartWidth)
	if !ok {
		return
	}
	height, ok := chartSide(c, "height", defaultChartHeight)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := surface.RenderPNG(&buf, width, height); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func chartSide(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 16 || n > maxChartSide {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}
