package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

// ==== Service tiers ====

func ListTiers(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tiers, total, err := catalog.ListTiers(c.Request.Context(), service.TierFilter{
			Name: c.Query("name"),
			Page: page(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		list(c, tiers, total)
	}
}

func GetTier(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "service tier")
		if !ok {
			return
		}
		tier, err := catalog.GetTier(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tier)
	}
}

func CreateTier(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.TierInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		tier, err := catalog.CreateTier(c.Request.Context(), actor(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tier)
	}
}

func UpdateTier(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "service tier")
		if !ok {
			return
		}
		var req service.TierInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		tier, err := catalog.UpdateTier(c.Request.Context(), actor(c), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tier)
	}
}

func DeleteTier(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "service tier")
		if !ok {
			return
		}
		if err := catalog.DeleteTier(c.Request.Context(), actor(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ==== Recipients ====

func ListRecipients(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		recipients, total, err := catalog.ListRecipients(c.Request.Context(), service.RecipientFilter{
			Name: c.Query("name"),
			City: c.Query("city"),
			Page: page(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		list(c, recipients, total)
	}
}

func GetRecipient(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "recipient")
		if !ok {
			return
		}
		r, err := catalog.GetRecipient(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

func CreateRecipient(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.RecipientInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		r, err := catalog.CreateRecipient(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, r)
	}
}

func UpdateRecipient(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "recipient")
		if !ok {
			return
		}
		var req service.RecipientInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		r, err := catalog.UpdateRecipient(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

func DeleteRecipient(catalog *service.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "recipient")
		if !ok {
			return
		}
		if err := catalog.DeleteRecipient(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
