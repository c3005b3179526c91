package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionStatus represents the state of a user subscription
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusExpired   SubscriptionStatus = "expired"
	SubStatusCancelled SubscriptionStatus = "cancelled"
)

// ErrCreditInvariant is returned when a subscription would hold negative
// credits or more remaining credits than it was granted.
var ErrCreditInvariant = errors.New("remaining credits must be between 0 and total credits")

// SubscriptionPlan is immutable reference data: one plan per service title.
type SubscriptionPlan struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	Title           string    `gorm:"uniqueIndex;not null" json:"title"`
	CreditsPerCycle int       `gorm:"not null" json:"credits_per_cycle"`
	PriceCents      int64     `gorm:"not null" json:"price_cents"`
	Currency        string    `gorm:"not null;default:'GBP'" json:"currency"`
	Interval        string    `gorm:"not null;default:'monthly'" json:"interval"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserSubscription holds the credits a user may spend on one plan's service.
type UserSubscription struct {
	ID               uuid.UUID          `gorm:"type:text;primary_key" json:"id"`
	UserID           uuid.UUID          `gorm:"type:text;not null;index" json:"user_id"`
	PlanID           uint               `gorm:"not null;index" json:"plan_id"`
	Plan             SubscriptionPlan   `gorm:"foreignKey:PlanID" json:"plan"`
	Status           SubscriptionStatus `gorm:"not null;default:'active';index" json:"status"`
	TotalCredits     int                `gorm:"not null" json:"total_credits"`
	RemainingCredits int                `gorm:"not null" json:"remaining_credits"`
	StartedAt        time.Time          `json:"started_at"`
	ExpiresAt        *time.Time         `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// BeforeCreate hook to generate UUID
func (s *UserSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// BeforeSave rejects writes that break the credit invariant. Guarded
// decrements issued with UpdateColumn bypass hooks and enforce it in SQL.
func (s *UserSubscription) BeforeSave(tx *gorm.DB) error {
	if s.RemainingCredits < 0 || s.RemainingCredits > s.TotalCredits {
		return ErrCreditInvariant
	}
	return nil
}

// IsActive reports whether credits on this subscription may be spent
func (s *UserSubscription) IsActive() bool {
	return s.Status == SubStatusActive
}
