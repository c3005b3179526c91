package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/clientno"
	"github.com/hirewire/portal/internal/credit"
	"github.com/hirewire/portal/internal/lock"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/rbac"
	"github.com/hirewire/portal/internal/service"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

const errorStatusKey = "http_error_status"

// ErrorStatus controls whether failed envelopes carry their 4xx/5xx status.
// When disabled, failures are sent as 200 with success=false and the reason
// in the error field.
func ErrorStatus(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(errorStatusKey, enabled)
		c.Next()
	}
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message, detail string) {
	if !c.GetBool(errorStatusKey) {
		status = http.StatusOK
	}
	c.JSON(status, Response{Success: false, Message: message, Error: detail})
}

// handleServiceError maps service-layer errors to an error envelope. The
// status is only sent when ErrorStatus is enabled.
func handleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Not found", err.Error())
		return
	}
	if errors.Is(err, service.ErrForbidden) {
		respondError(c, http.StatusForbidden, "Access denied", err.Error())
		return
	}
	if errors.Is(err, service.ErrMirrorMissing) {
		respondError(c, http.StatusConflict, "Role index is out of sync; run a repair", err.Error())
		return
	}
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		respondError(c, http.StatusBadRequest, validationErr.Message, "validation_failed")
		return
	}
	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) {
		respondError(c, http.StatusConflict, conflictErr.Message, "conflict")
		return
	}
	var deductionErr *credit.DeductionError
	if errors.As(err, &deductionErr) {
		respondError(c, deductionStatus(deductionErr.Reason), deductionErr.Message, string(deductionErr.Reason))
		return
	}
	switch {
	case errors.Is(err, clientno.ErrInvalidServiceTag):
		respondError(c, http.StatusBadRequest, err.Error(), "invalid_service_tag")
		return
	case errors.Is(err, clientno.ErrRangeExhausted):
		respondError(c, http.StatusConflict, "No client numbers are left for this service", "capacity_exhausted")
		return
	case errors.Is(err, clientno.ErrOutOfRange):
		respondError(c, http.StatusConflict, err.Error(), "invalid_range")
		return
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusServiceUnavailable, "The service is busy. Please try again.", "busy")
		return
	}
	slog.Error("unhandled service error", "path", c.FullPath(), "error", err)
	respondError(c, http.StatusInternalServerError, "Internal server error", "internal")
}

func deductionStatus(reason credit.Reason) int {
	switch reason {
	case credit.ReasonUnknownServiceType:
		return http.StatusBadRequest
	case credit.ReasonNoSubscription, credit.ReasonNoServiceSubscription, credit.ReasonInsufficientCredits:
		return http.StatusPaymentRequired
	default:
		return http.StatusServiceUnavailable
	}
}

func getUserID(c *gin.Context) uuid.UUID {
	user, exists := c.Get("user")
	if !exists {
		return uuid.Nil
	}
	return user.(*models.User).ID
}

func isAdmin(c *gin.Context) bool {
	ok, err := rbac.IsAdmin(getUserID(c))
	return err == nil && ok
}

// scopeClient resolves which client's data a request may see. Admins may ask
// for any client (or none, meaning all); everyone else only sees their own.
func scopeClient(c *gin.Context, requested string) (*uuid.UUID, error) {
	caller := getUserID(c)
	if requested == "" {
		if isAdmin(c) {
			return nil, nil
		}
		return &caller, nil
	}

	id, err := uuid.Parse(requested)
	if err != nil {
		return nil, &service.ValidationError{Message: "invalid client id"}
	}
	if id != caller && !isAdmin(c) {
		return nil, service.ErrForbidden
	}
	return &id, nil
}

func parseRoleID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Message: "invalid role id"}
	}
	return uint(id), nil
}

func parseBoolQuery(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &service.ValidationError{Message: key + " must be true or false"}
	}
	return v, nil
}

func parseServiceTag(raw string) (int, error) {
	tag, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &service.ValidationError{Message: "invalid service tag"}
	}
	return tag, nil
}
