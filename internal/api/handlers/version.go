package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Version is set via ldflags at build time
var Version = "dev"

// HealthCheck godoc
// @Summary Health check
// @Description Reports whether the API and its database are reachable
// @Tags system
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health [get]
func HealthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Message: "Database unavailable", Error: err.Error()})
			return
		}
		respond(c, http.StatusOK, "ok", gin.H{"status": "ok"})
	}
}

// GetVersion godoc
// @Summary Get version information
// @Description Returns version information about the portal server
// @Tags system
// @Produce json
// @Success 200 {object} Response
// @Router /version [get]
func GetVersion(c *gin.Context) {
	respond(c, http.StatusOK, "version", gin.H{
		"version":    Version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}
