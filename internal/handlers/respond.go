// Package handlers exposes the services over gin. Handlers only translate
// between HTTP and service calls; every rule lives in internal/service.
package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/media"
	"github.com/rotacerta/ekspedisi/internal/middleware"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/service"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

const TotalCountHeader = "X-Total-Count"

// respondError writes the error envelope. Anything that is not an
// *apierr.Error is a server fault: the detail goes to the request log only.
func respondError(c *gin.Context, err error) {
	if apiErr, ok := apierr.As(err); ok {
		body := gin.H{"message": apiErr.Error(), "code": apiErr.Code}
		if len(apiErr.Fields) > 0 {
			body["fields"] = apiErr.Fields
		}
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": body})
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"message": "internal server error", "code": "internal_error"},
	})
}

func badBody(c *gin.Context) {
	respondError(c, apierr.Invalid("invalid request body"))
}

// pathID reads the :id parameter. Malformed ids cannot name a row, so they
// are reported as missing.
func pathID(c *gin.Context, what string) (uint, bool) {
	id := utils.ParseUint(c.Param("id"), 0)
	if id == 0 {
		respondError(c, apierr.NotFound(what))
		return 0, false
	}
	return id, true
}

func page(c *gin.Context) service.Page {
	return service.Page{
		Page:     utils.ParseInt(c.Query("page"), 1),
		PageSize: utils.ParseInt(c.Query("page_size"), 0),
	}
}

func list(c *gin.Context, items interface{}, total int64) {
	c.Header(TotalCountHeader, strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, items)
}

func actor(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

// formPhoto opens the multipart "photo" field. The caller closes the file.
func formPhoto(c *gin.Context) (multipart.File, bool) {
	fh, err := c.FormFile("photo")
	if err != nil {
		respondError(c, apierr.Validation("photo upload is invalid", map[string]string{
			"photo": "this field is required",
		}))
		return nil, false
	}
	if fh.Size > media.MaxBytes {
		respondError(c, apierr.Validation("photo upload is invalid", map[string]string{
			"photo": "file is too large",
		}))
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return f, true
}
