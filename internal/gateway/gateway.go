// Package gateway defines the payment-gateway seam consulted by grace-period
// retries. The engine only schedules retries; the real charge flow arrives via
// a provider adapter and reports success through ResolveGracePeriod.
package gateway

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// Outcome of one retry attempt.
type Outcome string

const (
	// OutcomePending means the charge was handed off and the result will be
	// reported asynchronously (webhook or manual confirmation).
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ChargeRequest identifies the subscription being retried.
type ChargeRequest struct {
	SubscriptionID snowflake.ID
	TenantID       snowflake.ID
	Attempt        int
}

// Charger attempts to collect an outstanding payment.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (Outcome, error)
}

// StubCharger is the default adapter: it never settles a charge in-process,
// so every retry is recorded as pending and resolution arrives externally.
type StubCharger struct{}

func (StubCharger) Charge(ctx context.Context, req ChargeRequest) (Outcome, error) {
	return OutcomePending, nil
}

var Module = fx.Module("gateway",
	fx.Provide(func() Charger {
		return StubCharger{}
	}),
)
