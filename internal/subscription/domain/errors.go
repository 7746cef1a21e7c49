package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrGracePeriodNotFound  = errors.New("grace_period_not_found")
	ErrInvalidState         = errors.New("invalid_subscription_state")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidExtension     = errors.New("invalid_trial_extension")
)
