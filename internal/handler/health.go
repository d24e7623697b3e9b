package handler

import (
	"net/http"
	"time"

	"github.com/aett-transit/ticket-service/internal/service"
	"github.com/gin-gonic/gin"
)

func Health(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"service":         "ticket-service",
			"time":            time.Now().Unix(),
			"scanned_tickets": svc.ScanCount(),
		})
	}
}

func Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
