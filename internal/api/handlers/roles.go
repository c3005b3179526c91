package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hirewire/portal/internal/service"
)

// RolesIndexHandler serves the cross-service roles index.
type RolesIndexHandler struct {
	svc *service.RoleIndexService
}

func NewRolesIndexHandler(svc *service.RoleIndexService) *RolesIndexHandler {
	return &RolesIndexHandler{svc: svc}
}

// ListRoles godoc
// @Summary List roles index rows
// @Tags roles-index
// @Security BearerAuth
// @Produce json
// @Param serviceTag query int false "Service tag (1000, 2000, 3000, 4000)"
// @Param clientId query string false "Client ID"
// @Success 200 {object} Response{data=[]models.RoleIndex}
// @Failure 400 {object} Response
// @Router /roles [get]
func (h *RolesIndexHandler) ListRoles(c *gin.Context) {
	var filter service.RoleFilter

	if raw := c.Query("serviceTag"); raw != "" {
		tag, err := parseServiceTag(raw)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		filter.ServiceTag = &tag
	}
	clientID, err := scopeClient(c, c.Query("clientId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	filter.ClientID = clientID

	rows, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d roles", len(rows)), rows)
}

// GetClientNo godoc
// @Summary Get a client's number for a service tag
// @Tags roles-index
// @Security BearerAuth
// @Produce json
// @Param clientId path string true "Client ID"
// @Param serviceTag path int true "Service tag"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /roles/client/{clientId}/service/{serviceTag}/client-no [get]
func (h *RolesIndexHandler) GetClientNo(c *gin.Context) {
	clientID, err := scopeClient(c, c.Param("clientId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	tag, err := parseServiceTag(c.Param("serviceTag"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	n, err := h.svc.ClientNo(c.Request.Context(), *clientID, tag)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	message := "Client number found"
	if n == nil {
		message = "Client has no number for this service"
	}
	respond(c, http.StatusOK, message, gin.H{"client_id": clientID, "service_tag": tag, "client_no": n})
}

// GetNextClientNo godoc
// @Summary Get the next free client number for a service tag
// @Tags roles-index
// @Security BearerAuth
// @Produce json
// @Param serviceTag path int true "Service tag"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /roles/next-client-no/{serviceTag} [get]
func (h *RolesIndexHandler) GetNextClientNo(c *gin.Context) {
	tag, err := parseServiceTag(c.Param("serviceTag"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	n, err := h.svc.NextClientNo(c.Request.Context(), tag)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Next available client number", gin.H{"service_tag": tag, "client_no": n})
}
