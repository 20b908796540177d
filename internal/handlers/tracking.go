package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

// Tracking is public: anyone holding a tracking code may follow it.
func Tracking(tracking *service.TrackingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := tracking.Lookup(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "tracking data found", "data": raw})
	}
}
