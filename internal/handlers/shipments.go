package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

func ListShipments(shipments *service.ShipmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, total, err := shipments.List(c.Request.Context(), actor(c), service.ShipmentFilter{
			Status:      c.Query("status"),
			ServiceTier: c.Query("service_tier"),
			Page:        page(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		list(c, items, total)
	}
}

func GetShipment(shipments *service.ShipmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "shipment")
		if !ok {
			return
		}
		sh, err := shipments.Get(c.Request.Context(), actor(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sh)
	}
}

func CreateShipment(shipments *service.ShipmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateShipmentInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		sh, err := shipments.Create(c.Request.Context(), actor(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sh)
	}
}

func UpdateShipment(shipments *service.ShipmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "shipment")
		if !ok {
			return
		}
		var req service.UpdateShipmentInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		sh, err := shipments.Update(c.Request.Context(), actor(c), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sh)
	}
}

func DeleteShipment(shipments *service.ShipmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "shipment")
		if !ok {
			return
		}
		if err := shipments.Delete(c.Request.Context(), actor(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
