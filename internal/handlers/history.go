package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

func ListHistory(history *service.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, total, err := history.List(c.Request.Context(), actor(c), service.HistoryFilter{
			TrackingCode: c.Query("tracking_code"),
			Status:       c.Query("status"),
			Page:         page(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		list(c, entries, total)
	}
}

func GetHistory(history *service.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "status history entry")
		if !ok {
			return
		}
		e, err := history.Get(c.Request.Context(), actor(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func CreateHistory(history *service.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.HistoryInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		e, err := history.Create(c.Request.Context(), actor(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

func UpdateHistory(history *service.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "status history entry")
		if !ok {
			return
		}
		var req service.HistoryInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		e, err := history.Update(c.Request.Context(), actor(c), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func DeleteHistory(history *service.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "status history entry")
		if !ok {
			return
		}
		if err := history.Delete(c.Request.Context(), actor(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
