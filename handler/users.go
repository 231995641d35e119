package handler

import (
	"net/http"

	"github.com/AnTengye/contracthub/config"
	"github.com/AnTengye/contracthub/model"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	config *config.Config
}

func NewUserHandler(cfg *config.Config) *UserHandler {
	return &UserHandler{config: cfg}
}

// List returns the configured users, optionally filtered by ?role=.
func (h *UserHandler) List(c *gin.Context) {
	var role model.Role
	if s := c.Query("role"); s != "" {
		r, ok := model.ParseRole(s)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role " + s})
			return
		}
		role = r
	}

	users := h.config.UsersByRole(role)
	result := make([]UserResponse, len(users))
	for i := range users {
		result[i] = toUserResponse(&users[i])
	}
	c.JSON(http.StatusOK, gin.H{"users": result})
}
