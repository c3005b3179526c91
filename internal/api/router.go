package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/hirewire/portal/docs"
	"github.com/hirewire/portal/internal/api/handlers"
	"github.com/hirewire/portal/internal/api/middleware"
	"github.com/hirewire/portal/internal/auth"
	"github.com/hirewire/portal/internal/config"
	"github.com/hirewire/portal/internal/lock"
	"github.com/hirewire/portal/internal/service"
	"github.com/hirewire/portal/internal/servicetag"
	"github.com/hirewire/portal/internal/storage"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *gorm.DB, locker lock.Locker, store storage.Store) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())
	router.Use(handlers.ErrorStatus(cfg.Server.HTTPErrorStatus))

	authenticator := auth.NewBasicAuthenticator(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	roleSvc := service.NewRoleService(db, locker, store, cfg.Storage.MaxAttachmentBytes)
	indexHandler := handlers.NewRolesIndexHandler(service.NewRoleIndexService(db))
	subHandler := handlers.NewSubscriptionHandler(service.NewSubscriptionService(db))
	adminHandler := handlers.NewAdminHandler(service.NewUserService(db), roleSvc)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", handlers.HealthCheck(db))
		public.GET("/version", handlers.GetVersion)
		public.POST("/auth/login", handlers.Login(authenticator, db))
	}

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(authenticator.Middleware())
	{
		for _, line := range servicetag.Lines() {
			h := handlers.NewRoleHandler(roleSvc, line, cfg.Storage.MaxAttachmentBytes)
			g := protected.Group("/" + line.Key)
			g.POST("", h.CreateRole)
			g.GET("", h.ListRoles)
			g.GET("/deleted", h.ListDeletedRoles)
			g.GET("/:id", h.GetRole)
			g.PUT("/:id", h.UpdateRole)
			g.DELETE("/:id", h.DeleteRole)
			g.PATCH("/:id/restore", h.RestoreRole)
		}

		// Roles index
		protected.GET("/roles", indexHandler.ListRoles)
		protected.GET("/roles/client/:clientId/service/:serviceTag/client-no", indexHandler.GetClientNo)
		protected.GET("/roles/next-client-no/:serviceTag", indexHandler.GetNextClientNo)

		// Subscriptions and credits
		protected.GET("/subscriptions/plans", subHandler.ListPlans)
		protected.GET("/subscriptions/me", subHandler.ListMine)
		protected.GET("/credits/:serviceType", subHandler.GetRemainingCredits)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.POST("/users", adminHandler.CreateUser)
			admin.PUT("/users/:id/admin", adminHandler.SetAdmin)
			admin.POST("/subscriptions", subHandler.GrantSubscription)
			admin.POST("/subscriptions/:id/cancel", subHandler.CancelSubscription)
			admin.POST("/roles/repair", adminHandler.RepairRoles)
		}
	}

	// Swagger documentation
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	slog.Info("API router initialized",
		"mode", cfg.Server.Mode,
		"service_lines", len(servicetag.Lines()),
		"http_error_status", cfg.Server.HTTPErrorStatus,
	)
	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
