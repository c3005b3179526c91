package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.SubscriptionPlan{}, &models.UserSubscription{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func addSubscription(t *testing.T, db *gorm.DB, planID uint, expires *time.Time) uuid.UUID {
	t.Helper()
	sub := models.UserSubscription{
		UserID:           uuid.New(),
		PlanID:           planID,
		Status:           models.SubStatusActive,
		TotalCredits:     5,
		RemainingCredits: 5,
		StartedAt:        time.Now().Add(-48 * time.Hour),
		ExpiresAt:        expires,
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub.ID
}

func statusOf(t *testing.T, db *gorm.DB, id uuid.UUID) models.SubscriptionStatus {
	t.Helper()
	var sub models.UserSubscription
	if err := db.First(&sub, "id = ?", id).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	return sub.Status
}

func TestSweep_ExpiresOnlyPastDue(t *testing.T) {
	db := setupTestDB(t)
	plan := models.SubscriptionPlan{Title: "CV Sourcing", CreditsPerCycle: 5, PriceCents: 100}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	due := addSubscription(t, db, plan.ID, &past)
	notDue := addSubscription(t, db, plan.ID, &future)
	open := addSubscription(t, db, plan.ID, nil)

	w := New(service.NewSubscriptionService(db), quietLogger(), time.Minute)
	if n := w.sweep(context.Background()); n != 1 {
		t.Errorf("expected 1 expired, got %d", n)
	}

	if statusOf(t, db, due) != models.SubStatusExpired {
		t.Error("past-due subscription should be expired")
	}
	if statusOf(t, db, notDue) != models.SubStatusActive || statusOf(t, db, open) != models.SubStatusActive {
		t.Error("subscriptions not yet due should stay active")
	}
}

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestStart_StopsOnCancel(t *testing.T) {
	exp := &countingExpirer{}
	w := New(exp, quietLogger(), 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := w.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if exp.calls.Load() < 2 {
		t.Errorf("expected repeated sweeps, got %d", exp.calls.Load())
	}
}

func TestSweep_ErrorIsNotFatal(t *testing.T) {
	exp := &countingExpirer{err: errors.New("database is locked")}
	w := New(exp, quietLogger(), 0)

	if n := w.sweep(context.Background()); n != 0 {
		t.Errorf("expected 0 on error, got %d", n)
	}
	if w.interval != DefaultInterval {
		t.Errorf("expected default interval, got %s", w.interval)
	}
}
