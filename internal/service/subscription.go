package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/audit"
	"github.com/hirewire/portal/internal/credit"
	"github.com/hirewire/portal/internal/models"
	"gorm.io/gorm"
)

// SubscriptionService manages plans, user subscriptions and credit balances.
type SubscriptionService struct {
	db *gorm.DB
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{db: db}
}

// ListPlans returns every plan ordered by title.
func (s *SubscriptionService) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	plans := []models.SubscriptionPlan{}
	if err := s.db.WithContext(ctx).Order("title ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// ListForUser returns the user's subscriptions, newest first.
func (s *SubscriptionService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	subs := []models.UserSubscription{}
	err := s.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// Grant gives a user a new active subscription on the named plan.
func (s *SubscriptionService) Grant(ctx context.Context, actorID uuid.UUID, req GrantRequest) (*models.UserSubscription, error) {
	if req.UserID == uuid.Nil {
		return nil, &ValidationError{Message: "user_id is required"}
	}
	if req.Credits < 0 {
		return nil, &ValidationError{Message: "credits must not be negative"}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, &ValidationError{Message: "expires_at must be in the future"}
	}

	var sub *models.UserSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", req.UserID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ValidationError{Message: "user not found"}
			}
			return err
		}
		var plan models.SubscriptionPlan
		if err := tx.Where("title = ?", req.PlanTitle).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ValidationError{Message: fmt.Sprintf("unknown plan %q", req.PlanTitle)}
			}
			return err
		}

		credits := req.Credits
		if credits == 0 {
			credits = plan.CreditsPerCycle
		}
		sub = &models.UserSubscription{
			UserID:           user.ID,
			PlanID:           plan.ID,
			Status:           models.SubStatusActive,
			TotalCredits:     credits,
			RemainingCredits: credits,
			StartedAt:        time.Now(),
			ExpiresAt:        req.ExpiresAt,
		}
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		sub.Plan = plan

		audit.LogAction(tx, actorID, audit.ActionGrantSubscription, fmt.Sprintf("subscription:%s", sub.ID), map[string]interface{}{
			"user_id": user.ID,
			"plan":    plan.Title,
			"credits": credits,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel stops an active subscription; its remaining credits can no longer be spent.
func (s *SubscriptionService) Cancel(ctx context.Context, actorID uuid.UUID, id uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Plan").Where("id = ?", id).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if sub.Status != models.SubStatusActive {
			return &ConflictError{Message: fmt.Sprintf("subscription is %s", sub.Status)}
		}
		if err := tx.Model(&sub).Update("status", models.SubStatusCancelled).Error; err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		audit.LogAction(tx, actorID, audit.ActionCancelSubscription, fmt.Sprintf("subscription:%s", sub.ID), map[string]interface{}{
			"remaining_credits": sub.RemainingCredits,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Remaining returns the user's spendable credits for a service endpoint.
func (s *SubscriptionService) Remaining(ctx context.Context, userID uuid.UUID, serviceType string) (int, error) {
	n, err := credit.NewAllocator(credit.NewGormLedger(s.db)).GetRemainingCredits(ctx, userID, serviceType)
	if err != nil {
		var de *credit.DeductionError
		if errors.As(err, &de) && de.Reason == credit.ReasonUnknownServiceType {
			return 0, &ValidationError{Message: de.Message}
		}
		return 0, err
	}
	return n, nil
}

// ExpireDue marks active subscriptions whose expiry has passed as expired.
func (s *SubscriptionService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.SubStatusActive, now).
		Update("status", models.SubStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		audit.LogAction(s.db.WithContext(ctx), uuid.Nil, audit.ActionExpireSubscriptions, "subscriptions", map[string]interface{}{
			"count": res.RowsAffected,
		})
	}
	return res.RowsAffected, nil
}
