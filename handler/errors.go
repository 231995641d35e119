package handler

import (
	"errors"
	"net/http"

	"github.com/AnTengye/contracthub/middleware"
	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/gin-gonic/gin"
)

// statusFor maps a workflow error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the status of err. Internal errors are logged and
// replaced with a generic message.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		logger.Error(c.Request.Context(), "request failed", "error", err)
		c.JSON(status, gin.H{"error": "Internal server error", "request_id": middleware.GetRequestID(c)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "request_id": middleware.GetRequestID(c)})
}
