package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSnapshot returns the held aggregate
func (d *Dashboard) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, d.session.Snapshot())
}

// GetStatus reports session state, connected viewers and what this process
// costs the host
func (d *Dashboard) GetStatus(c *gin.Context) {
	body := gin.H{
		"session": d.session.Status(),
		"viewers": d.hub.Count(),
	}
	if d.resources != nil {
		usage, err := d.resources.Usage()
		if err != nil {
			log.Printf("[STATUS] Could not read resource usage: %v", err)
		} else {
			body["resources"] = usage
		}
	}
	c.JSON(http.StatusOK, body)
}
