// Package credit gates role creation on subscription credits: it resolves the
// subscription title for a service endpoint, checks the user's balance and
// spends exactly one credit per accepted request.
package credit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/servicetag"
)

// Reason classifies a failed deduction.
type Reason string

const (
	ReasonUnknownServiceType    Reason = "unknown_service_type"
	ReasonNoSubscription        Reason = "no_subscription"
	ReasonNoServiceSubscription Reason = "no_service_subscription"
	ReasonInsufficientCredits   Reason = "insufficient_credits"
	ReasonRetry                 Reason = "retry"
	ReasonLookupFailed          Reason = "lookup_failed"
)

// Result is the outcome of CheckAndDeductCredit. Failures are reported here
// rather than as errors.
type Result struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	RemainingCredits *int   `json:"remaining_credits,omitempty"`
	Reason           Reason `json:"reason,omitempty"`
}

// Err returns nil for a successful result and a *DeductionError otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &DeductionError{Reason: r.Reason, Message: r.Message}
}

// DeductionError carries a failed Result across an error boundary, e.g. to
// abort the transaction a deduction was made in.
type DeductionError struct {
	Reason  Reason
	Message string
}

func (e *DeductionError) Error() string { return e.Message }

// Allocator checks and spends subscription credits through a Ledger.
type Allocator struct {
	ledger Ledger
}

// NewAllocator creates an allocator over ledger.
func NewAllocator(ledger Ledger) *Allocator {
	return &Allocator{ledger: ledger}
}

func failure(reason Reason, format string, args ...interface{}) Result {
	return Result{Success: false, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// CheckAndDeductCredit spends one credit of the subscription serving
// serviceType. roleTitle is only used for messages and logs.
func (a *Allocator) CheckAndDeductCredit(ctx context.Context, userID uuid.UUID, serviceType, roleTitle string) Result {
	title, ok := servicetag.SubscriptionTitle(serviceType)
	if !ok {
		return failure(ReasonUnknownServiceType, "Unknown service type %q", serviceType)
	}

	subs, err := a.ledger.FindByUserID(ctx, userID)
	if err != nil {
		slog.Error("Failed to load subscriptions", "user_id", userID, "error", err)
		return failure(ReasonLookupFailed, "Unable to verify your subscription. Please try again.")
	}
	if len(subs) == 0 {
		return failure(ReasonNoSubscription, "No active subscription found. Please subscribe to a plan to create roles.")
	}

	var hasCredit, hasExhausted bool
	for _, s := range subs {
		if s.Plan.Title != title || !s.IsActive() {
			continue
		}
		if s.RemainingCredits > 0 {
			hasCredit = true
			break
		}
		hasExhausted = true
	}

	if !hasCredit {
		if hasExhausted {
			return failure(ReasonInsufficientCredits, "Insufficient credits for %s. Please renew or upgrade your subscription.", title)
		}
		return failure(ReasonNoServiceSubscription, "You do not have an active subscription for %s.", title)
	}

	used, err := a.ledger.UseCreditsForService(ctx, userID, title, 1)
	if err != nil {
		slog.Error("Credit deduction failed", "user_id", userID, "title", title, "error", err)
		return failure(ReasonRetry, "Failed to deduct credit. Please try again.")
	}
	if !used {
		return failure(ReasonRetry, "Failed to deduct credit. Please try again.")
	}

	remaining, err := a.remaining(ctx, userID, title)
	if err != nil {
		// The credit is spent; only the balance report is missing.
		slog.Warn("Failed to re-read remaining credits", "user_id", userID, "title", title, "error", err)
		return Result{Success: true, Message: deductedMessage(title, roleTitle)}
	}

	slog.Info("Credit deducted",
		"user_id", userID,
		"service_type", serviceType,
		"title", title,
		"role_title", roleTitle,
		"remaining_credits", remaining)

	return Result{Success: true, Message: deductedMessage(title, roleTitle), RemainingCredits: &remaining}
}

func deductedMessage(title, roleTitle string) string {
	if roleTitle == "" {
		return fmt.Sprintf("1 %s credit used", title)
	}
	return fmt.Sprintf("1 %s credit used for %q", title, roleTitle)
}

// GetRemainingCredits sums the remaining credits of the user's active
// subscriptions serving serviceType.
func (a *Allocator) GetRemainingCredits(ctx context.Context, userID uuid.UUID, serviceType string) (int, error) {
	title, ok := servicetag.SubscriptionTitle(serviceType)
	if !ok {
		return 0, &DeductionError{Reason: ReasonUnknownServiceType, Message: fmt.Sprintf("Unknown service type %q", serviceType)}
	}
	return a.remaining(ctx, userID, title)
}

func (a *Allocator) remaining(ctx context.Context, userID uuid.UUID, title string) (int, error) {
	subs, err := a.ledger.FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return sumRemaining(subs, title), nil
}

func sumRemaining(subs []models.UserSubscription, title string) int {
	total := 0
	for _, s := range subs {
		if s.Plan.Title == title && s.IsActive() {
			total += s.RemainingCredits
		}
	}
	return total
}
