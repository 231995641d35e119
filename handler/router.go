package handler

import (
	"net/http"
	"time"

	"github.com/AnTengye/contracthub/config"
	"github.com/AnTengye/contracthub/middleware"
	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/service"
	"github.com/gin-gonic/gin"
)

// NewRouter wires middleware and every API route.
func NewRouter(cfg *config.Config, workflow *service.Workflow, files service.FileStorage) *gin.Engine {
	authHandler := NewAuthHandler(cfg)
	userHandler := NewUserHandler(cfg)
	contractHandler := NewContractHandler(workflow, files, cfg.Upload.MaxSizeMB)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.CORSOrigin))

	window := time.Duration(cfg.Server.RateWindowSeconds) * time.Second
	rateLimit := func(r gin.IRoutes) {
		if cfg.Server.RateLimit > 0 {
			r.Use(middleware.RateLimit(cfg.Server.RateLimit, window))
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	api.Use(middleware.NoCache())

	public := api.Group("")
	rateLimit(public)
	public.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	rateLimit(protected)
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.GET("/users", middleware.RequireRole(model.RoleAdmin), userHandler.List)

		protected.POST("/contracts", contractHandler.Create)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.DELETE("/contracts/:id", contractHandler.Delete)
		protected.POST("/contracts/:id/upload", contractHandler.Upload)
		protected.PUT("/contracts/:id/approve", contractHandler.Approve)
		protected.PUT("/contracts/:id/reject", contractHandler.Reject)
		protected.GET("/contracts/:id/logs", contractHandler.Logs)

		protected.GET("/contracts/:id/versions", contractHandler.ListVersions)
		protected.GET("/contracts/:id/versions/:versionId/file", contractHandler.DownloadVersion)
		protected.PUT("/contracts/:id/versions/:versionId/approve", contractHandler.ApproveVersion)
		protected.PUT("/contracts/:id/versions/:versionId/reject", contractHandler.RejectVersion)
		protected.POST("/contracts/:id/versions/:versionId/feedback", contractHandler.Feedback)
		protected.GET("/contracts/:id/versions/:versionId/logs", contractHandler.VersionLogs)
	}

	return router
}
