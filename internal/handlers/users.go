package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/service"
)

// ==== Users (admin, or the user themself) ====

func ListUsers(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := service.UserFilter{Role: c.Query("role"), Page: page(c)}
		if v, err := strconv.ParseBool(c.Query("is_active")); err == nil {
			f.IsActive = &v
		}
		items, total, err := users.List(c.Request.Context(), actor(c), f)
		if err != nil {
			respondError(c, err)
			return
		}
		list(c, items, total)
	}
}

func GetUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "user")
		if !ok {
			return
		}
		u, err := users.Get(c.Request.Context(), actor(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func CreateUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateUserInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		u, err := users.Create(c.Request.Context(), actor(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

func UpdateUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "user")
		if !ok {
			return
		}
		var req service.UpdateUserInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		u, err := users.Update(c.Request.Context(), actor(c), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func DeleteUser(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "user")
		if !ok {
			return
		}
		if err := users.Delete(c.Request.Context(), actor(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ==== Dashboard / tracking ====
