package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/service"
)

// SubscriptionHandler serves plans, subscriptions and credit balances.
type SubscriptionHandler struct {
	svc *service.SubscriptionService
}

func NewSubscriptionHandler(svc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

// ListPlans godoc
// @Summary List subscription plans
// @Tags subscriptions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response{data=[]models.SubscriptionPlan}
// @Router /subscriptions/plans [get]
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	plans, err := h.svc.ListPlans(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d plans", len(plans)), plans)
}

// ListMine godoc
// @Summary List the current user's subscriptions
// @Tags subscriptions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response{data=[]models.UserSubscription}
// @Router /subscriptions/me [get]
func (h *SubscriptionHandler) ListMine(c *gin.Context) {
	subs, err := h.svc.ListForUser(c.Request.Context(), getUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d subscriptions", len(subs)), subs)
}

// GetRemainingCredits godoc
// @Summary Get remaining credits for a service endpoint
// @Tags subscriptions
// @Security BearerAuth
// @Produce json
// @Param serviceType path string true "Service type" Enums(cv-sourcing, prequalification, direct, lead-generation-job, lead-generation-industry)
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /credits/{serviceType} [get]
func (h *SubscriptionHandler) GetRemainingCredits(c *gin.Context) {
	serviceType := c.Param("serviceType")
	n, err := h.svc.Remaining(c.Request.Context(), getUserID(c), serviceType)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d credits remaining", n), gin.H{"service_type": serviceType, "remaining_credits": n})
}

// GrantSubscription godoc
// @Summary Grant a subscription (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param subscription body service.GrantRequest true "Subscription details"
// @Success 201 {object} Response{data=models.UserSubscription}
// @Failure 400 {object} Response
// @Router /admin/subscriptions [post]
func (h *SubscriptionHandler) GrantSubscription(c *gin.Context) {
	var req service.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	sub, err := h.svc.Grant(c.Request.Context(), getUserID(c), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Subscription granted", sub)
}

// CancelSubscription godoc
// @Summary Cancel a subscription (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} Response{data=models.UserSubscription}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /admin/subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handleServiceError(c, &service.ValidationError{Message: "invalid subscription id"})
		return
	}

	sub, err := h.svc.Cancel(c.Request.Context(), getUserID(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Subscription cancelled", sub)
}
