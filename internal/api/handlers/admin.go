package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/service"
)

type AdminHandler struct {
	users *service.UserService
	roles *service.RoleService
}

func NewAdminHandler(users *service.UserService, roles *service.RoleService) *AdminHandler {
	return &AdminHandler{users: users, roles: roles}
}

// CreateUser godoc
// @Summary Create a new client account (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param user body service.CreateUserRequest true "User details"
// @Success 201 {object} Response{data=models.User}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	user, err := h.users.Create(c.Request.Context(), getUserID(c), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, "User created", user)
}

// ListUsers godoc
// @Summary List client accounts with their admin flag (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response{data=[]service.UserView}
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d users", len(users)), users)
}

// SetAdmin godoc
// @Summary Grant or revoke admin privileges (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param body body service.SetAdminRequest true "Admin flag"
// @Success 200 {object} Response{data=service.UserView}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /admin/users/{id}/admin [put]
func (h *AdminHandler) SetAdmin(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handleServiceError(c, &service.ValidationError{Message: "invalid user id"})
		return
	}
	var req service.SetAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	user, err := h.users.SetAdmin(c.Request.Context(), getUserID(c), id, req.IsAdmin)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Admin flag updated", user)
}

// RepairRoles godoc
// @Summary Rebuild missing or drifted roles index rows (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response{data=service.RepairReport}
// @Router /admin/roles/repair [post]
func (h *AdminHandler) RepairRoles(c *gin.Context) {
	report, err := h.roles.RepairMirrors(c.Request.Context(), getUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Roles index repaired", report)
}
