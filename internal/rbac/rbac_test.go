package rbac

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEnforcer(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Production SQLite runs on one connection; policy writes must not need a second.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := InitEnforcer(db, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}
	return db
}

func TestAdminLifecycle(t *testing.T) {
	setupEnforcer(t)
	user := uuid.New()

	if ok, _ := IsAdmin(user); ok {
		t.Fatal("new user should not be admin")
	}
	if err := MakeAdmin(user); err != nil {
		t.Fatalf("make admin: %v", err)
	}
	if ok, err := IsAdmin(user); err != nil || !ok {
		t.Fatalf("expected admin, got %v (%v)", ok, err)
	}

	admins, err := GetAllAdminUserIDs()
	if err != nil || !admins[user] {
		t.Errorf("admin set missing user: %v (%v)", admins, err)
	}

	if err := RevokeAdmin(user); err != nil {
		t.Fatalf("revoke admin: %v", err)
	}
	if ok, _ := IsAdmin(user); ok {
		t.Error("admin should be revoked")
	}
}

func TestCanManageRole(t *testing.T) {
	setupEnforcer(t)
	owner, other, admin := uuid.New(), uuid.New(), uuid.New()
	if err := MakeAdmin(admin); err != nil {
		t.Fatalf("make admin: %v", err)
	}

	tests := []struct {
		name string
		user uuid.UUID
		want bool
	}{
		{"owner", owner, true},
		{"other client", other, false},
		{"admin", admin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanManageRole(tt.user, owner)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyWritesOnSingleConnection(t *testing.T) {
	db := setupEnforcer(t)
	user := uuid.New()

	done := make(chan error, 1)
	go func() {
		if err := MakeAdmin(user); err != nil {
			done <- err
			return
		}
		done <- RevokeAdmin(user)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("policy write: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("policy write blocked on the single pooled connection")
	}

	var rules int64
	if err := db.Table("casbin_rule").Count(&rules).Error; err != nil {
		t.Fatalf("count rules: %v", err)
	}
	if rules != 0 {
		t.Errorf("expected revoked policy to be removed from storage, found %d rules", rules)
	}
}

func TestMakeAdmin_PersistsAcrossReload(t *testing.T) {
	db := setupEnforcer(t)
	user := uuid.New()
	if err := MakeAdmin(user); err != nil {
		t.Fatalf("make admin: %v", err)
	}

	if err := InitEnforcer(db, slog.Default()); err != nil {
		t.Fatalf("reload rbac: %v", err)
	}
	if ok, err := IsAdmin(user); err != nil || !ok {
		t.Errorf("admin policy should survive a reload, got %v (%v)", ok, err)
	}
}
