package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hirewire/portal/internal/rbac"
	"github.com/hirewire/portal/internal/service"
	"github.com/hirewire/portal/internal/servicetag"
	"github.com/hirewire/portal/internal/storage"
)

// multipartOverhead allows for the form fields sent alongside an attachment.
const multipartOverhead = 1 << 20

// RoleHandler serves the role endpoints of one service line.
type RoleHandler struct {
	svc           *service.RoleService
	line          *servicetag.Line
	maxAttachment int64
}

func NewRoleHandler(svc *service.RoleService, line *servicetag.Line, maxAttachment int64) *RoleHandler {
	if maxAttachment <= 0 {
		maxAttachment = storage.DefaultMaxAttachmentBytes
	}
	return &RoleHandler{svc: svc, line: line, maxAttachment: maxAttachment}
}

// CreateRole godoc
// @Summary Create a role for a service line
// @Description Spends one subscription credit and assigns the client's number for the line.
// @Description Accepts JSON, or multipart/form-data with a "data" JSON field and an optional "attachment" PDF (max 5 MB).
// @Tags roles
// @Security BearerAuth
// @Accept json,mpfd
// @Produce json
// @Param service path string true "Service line" Enums(cv-sourcing, prequalification, direct, lead-generation)
// @Param role body service.CreateRoleRequest true "Role details"
// @Success 201 {object} Response{data=service.RoleView}
// @Failure 400 {object} Response
// @Failure 402 {object} Response
// @Failure 409 {object} Response
// @Router /{service} [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAttachment+multipartOverhead)

	var (
		req service.CreateRoleRequest
		att *service.Attachment
	)
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		var err error
		req, att, err = h.bindMultipart(c)
		if err != nil {
			handleServiceError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	view, err := h.svc.Create(c.Request.Context(), h.line, getUserID(c), req, att)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	respond(c, http.StatusCreated, fmt.Sprintf("%s role created", h.line.DisplayName()), view)
}

func (h *RoleHandler) bindMultipart(c *gin.Context) (service.CreateRoleRequest, *service.Attachment, error) {
	var req service.CreateRoleRequest

	if _, err := c.MultipartForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, nil, &service.ValidationError{Message: fmt.Sprintf("attachment exceeds %d bytes", h.maxAttachment)}
		}
		return req, nil, &service.ValidationError{Message: "invalid multipart body"}
	}

	data := c.PostForm("data")
	if data == "" {
		return req, nil, &service.ValidationError{Message: "multipart requests need a \"data\" field"}
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return req, nil, &service.ValidationError{Message: "data must be a JSON object"}
	}

	fh, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, &service.ValidationError{Message: "invalid attachment"}
	}
	if fh.Size > h.maxAttachment {
		return req, nil, &service.ValidationError{Message: fmt.Sprintf("attachment exceeds %d bytes", h.maxAttachment)}
	}

	f, err := fh.Open()
	if err != nil {
		return req, nil, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, h.maxAttachment+1))
	if err != nil {
		return req, nil, fmt.Errorf("read attachment: %w", err)
	}
	return req, &service.Attachment{Filename: fh.Filename, Data: buf}, nil
}

// ListRoles godoc
// @Summary List roles of a service line
// @Tags roles
// @Security BearerAuth
// @Produce json
// @Param service path string true "Service line"
// @Param userId query string false "Only roles of this client"
// @Param includeDeleted query bool false "Include soft-deleted roles"
// @Success 200 {object} Response{data=[]service.RoleView}
// @Router /{service} [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	clientID, err := scopeClient(c, c.Query("userId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	includeDeleted, err := parseBoolQuery(c, "includeDeleted")
	if err != nil {
		handleServiceError(c, err)
		return
	}

	roles, err := h.svc.List(c.Request.Context(), h.line, service.ListFilter{ClientID: clientID, IncludeDeleted: includeDeleted})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d roles", len(roles)), roles)
}

// ListDeletedRoles godoc
// @Summary List soft-deleted roles of a service line
// @Tags roles
// @Security BearerAuth
// @Produce json
// @Param service path string true "Service line"
// @Param userId query string false "Only roles of this client"
// @Success 200 {object} Response{data=[]service.RoleView}
// @Router /{service}/deleted [get]
func (h *RoleHandler) ListDeletedRoles(c *gin.Context) {
	clientID, err := scopeClient(c, c.Query("userId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	roles, err := h.svc.ListDeleted(c.Request.Context(), h.line, clientID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d deleted roles", len(roles)), roles)
}

// GetRole godoc
// @Summary Get a role by ID
// @Tags roles
// @Security BearerAuth
// @Produce json
// @Param service path string true "Service line"
// @Param id path int true "Role ID"
// @Success 200 {object} Response{data=service.RoleView}
// @Failure 404 {object} Response
// @Router /{service}/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	view, ok := h.authorize(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, "Role found", view)
}

// UpdateRole godoc
// @Summary Update a role
// @Tags roles
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param service path string true "Service line"
// @Param id path int true "Role ID"
// @Param role body service.UpdateRoleRequest true "Fields to change"
// @Success 200 {object} Response{data=service.RoleView}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /{service}/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	view, ok := h.authorize(c)
	if !ok {
		return
	}

	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), h.line, getUserID(c), view.ID, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Role updated", updated)
}

// DeleteRole godoc
// @Summary Delete a role
// @Description Soft-deletes by default; hard=true removes the role and its index row.
// @Tags roles
// @Security BearerAuth
// @Produce json
// @Param service path string true "Service line"
// @Param id path int true "Role ID"
// @Param hard query bool false "Delete permanently"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /{service}/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	hard, err := parseBoolQuery(c, "hard")
	if err != nil {
		handleServiceError(c, err)
		return
	}
	view, ok := h.authorize(c)
	if !ok {
		return
	}

	if hard {
		err = h.svc.HardDelete(c.Request.Context(), h.line, getUserID(c), view.ID)
	} else {
		err = h.svc.SoftDelete(c.Request.Context(), h.line, getUserID(c), view.ID)
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	message := "Role deleted"
	if hard {
		message = "Role permanently deleted"
	}
	respond(c, http.StatusOK, message, gin.H{"id": view.ID, "hard": hard})
}

// RestoreRole godoc
// @Summary Restore a soft-deleted role
// @Tags roles
// @Security BearerAuth
// @Produce json
// @Param service path string true "Service line"
// @Param id path int true "Role ID"
// @Success 200 {object} Response{data=service.RoleView}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /{service}/{id}/restore [patch]
func (h *RoleHandler) RestoreRole(c *gin.Context) {
	view, ok := h.authorize(c)
	if !ok {
		return
	}

	restored, err := h.svc.Restore(c.Request.Context(), h.line, getUserID(c), view.ID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Role restored", restored)
}

// authorize loads the role named by :id and checks the caller may manage it.
// It writes the error response itself and reports false on failure.
func (h *RoleHandler) authorize(c *gin.Context) (*service.RoleView, bool) {
	id, err := parseRoleID(c)
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}

	view, err := h.svc.Get(c.Request.Context(), h.line, id)
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}

	ok, err := rbac.CanManageRole(getUserID(c), view.ClientID)
	if err != nil || !ok {
		handleServiceError(c, service.ErrForbidden)
		return nil, false
	}
	return view, true
}
