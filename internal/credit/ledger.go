package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
	"gorm.io/gorm"
)

// Ledger is the subscription store the allocator spends credits from.
type Ledger interface {
	// FindByUserID returns every subscription of the user with its plan loaded.
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error)

	// UseCreditsForService atomically takes amount credits from one active
	// subscription of the given title. It returns false when no subscription
	// could cover the amount.
	UseCreditsForService(ctx context.Context, userID uuid.UUID, title string, amount int) (bool, error)
}

// GormLedger implements Ledger on the user_subscriptions table. Bind it to a
// transaction to make deductions roll back with the surrounding work.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a ledger over db (a connection or a transaction).
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// FindByUserID returns the user's subscriptions, oldest first.
func (l *GormLedger) FindByUserID(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := l.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}
	return subs, nil
}

// UseCreditsForService decrements the oldest active subscription that still
// holds enough credits. The decrement is guarded in SQL so two concurrent
// callers can never take the same credit or push the balance below zero.
func (l *GormLedger) UseCreditsForService(ctx context.Context, userID uuid.UUID, title string, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	db := l.db.WithContext(ctx)
	planIDs := db.Model(&models.SubscriptionPlan{}).Select("id").Where("title = ?", title)

	var candidates []models.UserSubscription
	err := db.
		Select("id").
		Where("user_id = ? AND status = ? AND remaining_credits >= ?", userID, models.SubStatusActive, amount).
		Where("plan_id IN (?)", planIDs).
		Order("created_at ASC").
		Find(&candidates).Error
	if err != nil {
		return false, fmt.Errorf("find credit-bearing subscriptions: %w", err)
	}

	for _, sub := range candidates {
		res := db.Model(&models.UserSubscription{}).
			Where("id = ? AND status = ? AND remaining_credits >= ?", sub.ID, models.SubStatusActive, amount).
			UpdateColumn("remaining_credits", gorm.Expr("remaining_credits - ?", amount))
		if res.Error != nil {
			return false, fmt.Errorf("decrement credits: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return true, nil
		}
	}

	return false, nil
}
