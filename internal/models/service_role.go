package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleStatus is the lifecycle state of a submitted role request
type RoleStatus string

const (
	RoleStatusActive    RoleStatus = "active"
	RoleStatusOnHold    RoleStatus = "on_hold"
	RoleStatusFilled    RoleStatus = "filled"
	RoleStatusCancelled RoleStatus = "cancelled"
)

// ServiceRole is a client-submitted request for one service line. The service
// line is identified by ServiceTag; line-specific fields live in Attributes.
type ServiceRole struct {
	ID            uint                   `gorm:"primarykey" json:"id"`
	ServiceTag    int                    `gorm:"not null;index" json:"service_tag"`
	ClientID      uuid.UUID              `gorm:"type:text;not null;index" json:"client_id"`
	Client        User                   `gorm:"foreignKey:ClientID" json:"-"`
	Title         string                 `gorm:"not null" json:"title"`
	Location      string                 `json:"location"`
	Status        RoleStatus             `gorm:"not null;default:'active'" json:"status"`
	Attributes    map[string]interface{} `gorm:"serializer:json" json:"attributes,omitempty"`
	AttachmentKey string                 `json:"attachment_key,omitempty"`
	IsDeleted     bool                   `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// TableName ensures GORM uses the "service_roles" table
func (ServiceRole) TableName() string {
	return "service_roles"
}
