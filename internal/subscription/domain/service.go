package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CancelOptions controls manual cancellation. Immediate flips the status now;
// otherwise auto-renew is switched off and the subscription lapses at period end.
type CancelOptions struct {
	Immediate bool
	Reason    string
}

// Service covers the human-triggered mutations and the externally invoked
// grace-period entry points. Scheduled sweeps live in internal/scheduler.
type Service interface {
	ExtendTrial(ctx context.Context, subscriptionID snowflake.ID, adminID string, extraDays int) error
	ChangePlan(ctx context.Context, subscriptionID snowflake.ID, adminID string, newPlanID snowflake.ID) error
	CancelSubscription(ctx context.Context, subscriptionID snowflake.ID, adminID string, opts CancelOptions) error

	// StartGracePeriod opens a grace window after a failed payment on an
	// active subscription. Returns the new grace period id.
	StartGracePeriod(ctx context.Context, subscriptionID, tenantID snowflake.ID, failureReason string) (snowflake.ID, error)

	// ResolveGracePeriod marks a grace period paid and reactivates the
	// subscription. Called from a gateway webhook or manual confirmation.
	ResolveGracePeriod(ctx context.Context, gracePeriodID snowflake.ID, resolutionMethod string) error
}
