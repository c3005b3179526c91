package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
)

// CreateRoleRequest holds the fields common to every service line plus the
// line-specific attributes.
type CreateRoleRequest struct {
	Title      string                 `json:"title"`
	Location   string                 `json:"location"`
	Attributes map[string]interface{} `json:"attributes"`
}

// UpdateRoleRequest holds a partial update. Nil fields are left unchanged;
// Attributes are merged over the stored ones.
type UpdateRoleRequest struct {
	Title      *string                `json:"title"`
	Location   *string                `json:"location"`
	Status     *models.RoleStatus     `json:"status"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Attachment is an uploaded file accompanying a new role.
type Attachment struct {
	Filename string
	Data     []byte
}

// ListFilter narrows a role listing.
type ListFilter struct {
	ClientID       *uuid.UUID
	IncludeDeleted bool
}

// RoleFilter narrows a roles index listing.
type RoleFilter struct {
	ServiceTag     *int
	ClientID       *uuid.UUID
	IncludeDeleted bool
}

// RoleView is a service-line role together with its client number.
type RoleView struct {
	models.ServiceRole
	ServiceName      string `json:"service_name"`
	ClientNo         *int   `json:"client_no"`
	RemainingCredits *int   `json:"remaining_credits,omitempty"`
}

// RepairReport summarises a RepairMirrors run.
type RepairReport struct {
	Created  int `json:"created"`
	Resynced int `json:"resynced"`
	Orphans  int `json:"orphans_removed"`
}

// GrantRequest holds parameters for granting a subscription.
type GrantRequest struct {
	UserID    uuid.UUID  `json:"user_id"`
	PlanTitle string     `json:"plan_title"`
	Credits   int        `json:"credits"` // 0 uses the plan's credits per cycle
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateUserRequest holds parameters for creating a client account.
type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// UserView is a client account together with its admin flag.
type UserView struct {
	models.User
	IsAdmin bool `json:"is_admin"`
}

// SetAdminRequest grants or revokes admin privileges.
type SetAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}
