package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

func DashboardStats(dashboard *service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := dashboard.Stats(c.Request.Context(), actor(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
