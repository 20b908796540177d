package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

func ListPackages(packages *service.PackageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, total, err := packages.List(c.Request.Context(), actor(c), service.PackageFilter{
			Kind:           c.Query("kind"),
			ShipmentStatus: c.Query("shipment_status"),
			Page:           page(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		list(c, items, total)
	}
}

func GetPackage(packages *service.PackageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "package")
		if !ok {
			return
		}
		p, err := packages.Get(c.Request.Context(), actor(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func CreatePackage(packages *service.PackageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.PackageInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		p, err := packages.Create(c.Request.Context(), actor(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func UpdatePackage(packages *service.PackageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "package")
		if !ok {
			return
		}
		var req service.PackageInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		p, err := packages.Update(c.Request.Context(), actor(c), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func DeletePackage(packages *service.PackageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "package")
		if !ok {
			return
		}
		if err := packages.Delete(c.Request.Context(), actor(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func PackagePhoto(packages *service.PackageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "package")
		if !ok {
			return
		}
		file, ok := formPhoto(c)
		if !ok {
			return
		}
		defer file.Close()
		p, err := packages.SetPhoto(c.Request.Context(), actor(c), id, file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}
