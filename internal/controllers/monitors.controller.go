package controllers

import (
	"log"
	"net/http"

	"uptimeboard/internal/models"

	"github.com/gin-gonic/gin"
)

// Refresh discards the main series and reloads the snapshot
func (d *Dashboard) Refresh(c *gin.Context) {
	if err := d.session.Refresh(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "refreshing"})
}

// InspectMonitor opens the popup surface on a monitor
func (d *Dashboard) InspectMonitor(c *gin.Context) {
	id := c.Param("uuid")
	if err := d.session.Inspect(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"inspected": id})
}

// ClosePopup detaches the popup surface
func (d *Dashboard) ClosePopup(c *gin.Context) {
	d.session.ClosePopup()
	c.Status(http.StatusNoContent)
}

// DeleteMonitor removes a monitor on the backend
func (d *Dashboard) DeleteMonitor(c *gin.Context) {
	id := c.Param("uuid")
	if err := d.session.DeleteMonitor(c.Request.Context(), id); err != nil {
		log.Printf("[API] Delete %s failed: %v", id, err)
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PauseMonitor stops a monitor from being pinged
func (d *Dashboard) PauseMonitor(c *gin.Context) {
	d.setStatus(c, models.MonitorPaused)
}

// ResumeMonitor starts pinging a paused monitor again
func (d *Dashboard) ResumeMonitor(c *gin.Context) {
	d.setStatus(c, models.MonitorActive)
}

func (d *Dashboard) setStatus(c *gin.Context, status models.MonitorStatus) {
	id := c.Param("uuid")
	if err := d.session.SetMonitorStatus(c.Request.Context(), id, status); err != nil {
		log.Printf("[API] Status %s -> %s failed: %v", id, status, err)
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": id, "status": status})
}
