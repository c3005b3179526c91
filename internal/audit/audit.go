package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
	"gorm.io/gorm"
)

// LogAction records an audit log entry
func LogAction(db *gorm.DB, userID uuid.UUID, action, resource string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log := models.AuditLog{
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		DetailsJSON: string(detailsJSON),
		Timestamp:   time.Now(),
	}

	return db.Create(&log).Error
}

// Audit actions constants
const (
	ActionCreateUser          = "create_user"
	ActionGrantAdmin          = "grant_admin"
	ActionRevokeAdmin         = "revoke_admin"
	ActionCreateRole          = "create_role"
	ActionUpdateRole          = "update_role"
	ActionSoftDeleteRole      = "soft_delete_role"
	ActionHardDeleteRole      = "hard_delete_role"
	ActionRestoreRole         = "restore_role"
	ActionRepairMirrors       = "repair_mirrors"
	ActionGrantSubscription   = "grant_subscription"
	ActionCancelSubscription  = "cancel_subscription"
	ActionExpireSubscriptions = "expire_subscriptions"
	ActionLogin               = "login"
	ActionLoginFailed         = "login_failed"
)
