package audit

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLogAction(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user := uuid.New()
	if err := LogAction(db, user, ActionCreateRole, "role:1", map[string]interface{}{"client_no": 2001}); err != nil {
		t.Fatalf("log action: %v", err)
	}
	// Unmarshalable details fall back to an empty object.
	if err := LogAction(db, user, ActionUpdateRole, "role:1", make(chan int)); err != nil {
		t.Fatalf("log action: %v", err)
	}

	var logs []models.AuditLog
	db.Order("id").Find(&logs)
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].DetailsJSON != `{"client_no":2001}` || logs[0].UserID != user {
		t.Errorf("unexpected entry %+v", logs[0])
	}
	if logs[1].DetailsJSON != "{}" {
		t.Errorf("expected fallback details, got %q", logs[1].DetailsJSON)
	}
}
