package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/middleware"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/service"
)

type userSummary struct {
	ID       uint        `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
}

func summarize(u *models.User) userSummary {
	return userSummary{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func RegisterHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.RegisterInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		user, token, err := auth.Register(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "registration successful",
			"user":    summarize(user),
			"token":   token,
		})
	}
}

func LoginHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		fields := map[string]string{}
		if req.Username == "" {
			fields["username"] = "this field is required"
		}
		if req.Password == "" {
			fields["password"] = "this field is required"
		}
		if len(fields) > 0 {
			respondError(c, apierr.Validation("username and password are required", fields))
			return
		}
		user, token, err := auth.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "login successful",
			"user":    summarize(user),
			"token":   token,
		})
	}
}

func LogoutHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Logout(c.Request.Context(), middleware.TokenID(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
	}
}

func ProfileHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.Profile(c.Request.Context(), actor(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func UpdateProfileHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.ProfileInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c)
			return
		}
		p, err := auth.UpdateProfile(c.Request.Context(), actor(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func ProfilePhotoHandler(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, ok := formPhoto(c)
		if !ok {
			return
		}
		defer file.Close()
		p, err := auth.SetProfilePhoto(c.Request.Context(), actor(c), file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}
