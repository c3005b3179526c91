package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/audit"
	"github.com/hirewire/portal/internal/auth"
	"gorm.io/gorm"
)

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body auth.LoginRequest true "Login credentials"
// @Success 200 {object} Response{data=auth.LoginResponse}
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /auth/login [post]
func Login(authenticator auth.Authenticator, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}

		resp, err := authenticator.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				audit.LogAction(db, uuid.Nil, audit.ActionLoginFailed, "user:"+req.Username, nil)
				respondError(c, http.StatusUnauthorized, "Invalid credentials", "invalid_credentials")
				return
			}
			handleServiceError(c, err)
			return
		}

		audit.LogAction(db, resp.User.ID, audit.ActionLogin, "user:"+resp.User.ID.String(), nil)
		respond(c, http.StatusOK, "Logged in", resp)
	}
}
