package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleIndex is the cross-service row in the "roles" table. Every ServiceRole
// has exactly one mirror here, carrying the client number shared by all of the
// client's roles within one service tag.
type RoleIndex struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	ClientNo      int       `gorm:"not null;index:idx_roles_tag_client_no" json:"client_no"`
	ServiceTag    int       `gorm:"not null;index:idx_roles_tag_client_no;index:idx_roles_client_tag" json:"service_tag"`
	ClientID      uuid.UUID `gorm:"type:text;not null;index:idx_roles_client_tag" json:"client_id"`
	ServiceRoleID uint      `gorm:"not null;uniqueIndex" json:"service_role_id"`
	IsDeleted     bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName keeps the index in the "roles" table
func (RoleIndex) TableName() string {
	return "roles"
}
