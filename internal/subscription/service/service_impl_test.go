package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/clock"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	"github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			plan_id BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'trial',
			ends_at DATETIME,
			auto_renew BOOLEAN NOT NULL DEFAULT 1,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS grace_periods (
			id INTEGER PRIMARY KEY,
			subscription_id BIGINT NOT NULL,
			tenant_id BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			ends_at DATETIME NOT NULL,
			original_failure_reason TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			next_retry_at DATETIME,
			retry_history TEXT NOT NULL DEFAULT '[]',
			resolved_at DATETIME,
			resolution_method TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subscription_events (
			id INTEGER PRIMARY KEY,
			subscription_id BIGINT NOT NULL,
			tenant_id BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			previous_status TEXT,
			new_status TEXT,
			details TEXT NOT NULL DEFAULT '{}',
			notification_type TEXT NOT NULL DEFAULT 'none',
			is_automated BOOLEAN NOT NULL DEFAULT 1,
			triggered_by TEXT,
			dedupe_key TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscription_events_dedupe
			ON subscription_events (dedupe_key)`,
		`CREATE TABLE IF NOT EXISTS platform_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			price_cents BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'EUR',
			limits TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Settings: settings.NewService(settings.Params{DB: db, Log: log}),
		Events:   events.NewLogger(events.LoggerParams{DB: db, Log: log, GenID: node}),
	})
	return svc.(*Service)
}

func mustCreate(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("insert fixture: %v", err)
	}
}

func TestExtendTrialAddsDays(t *testing.T) {
	db := setupServiceTestDB(t)
	now := time.Now().UTC()
	svc := newTestService(t, db, clock.Fixed{At: now})

	endsAt := now.Add(48 * time.Hour)
	mustCreate(t, db, &domain.Subscription{
		ID: 1, TenantID: 1, PlanID: 1,
		Status: domain.SubscriptionStatusTrial, EndsAt: &endsAt,
	})

	if err := svc.ExtendTrial(context.Background(), 1, "ops-1", 7); err != nil {
		t.Fatalf("extend: %v", err)
	}

	var sub domain.Subscription
	if err := db.Take(&sub, "id = ?", 1).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	want := endsAt.AddDate(0, 0, 7)
	if sub.EndsAt == nil || sub.EndsAt.Sub(want) > time.Second || want.Sub(*sub.EndsAt) > time.Second {
		t.Fatalf("expected ends_at near %v, got %v", want, sub.EndsAt)
	}

	var count int64
	db.Model(&events.SubscriptionEvent{}).
		Where("subscription_id = 1 AND event_type = ?", events.TypeManuallyExtended).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 manually_extended event, got %d", count)
	}
}

func TestExtendTrialRejectsNonTrial(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(t, db, clock.Fixed{At: time.Now().UTC()})

	mustCreate(t, db, &domain.Subscription{
		ID: 2, TenantID: 1, PlanID: 1,
		Status: domain.SubscriptionStatusActive,
	})

	err := svc.ExtendTrial(context.Background(), 2, "ops-1", 7)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestExtendTrialRejectsNonPositiveDays(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(t, db, clock.Fixed{At: time.Now().UTC()})

	err := svc.ExtendTrial(context.Background(), 3, "ops-1", 0)
	if !errors.Is(err, domain.ErrInvalidExtension) {
		t.Fatalf("expected ErrInvalidExtension, got %v", err)
	}
}

func TestChangePlanUpAndDown(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(t, db, clock.Fixed{At: time.Now().UTC()})

	if err := db.Exec(`INSERT INTO plans (id, code, name, price_cents) VALUES
		(10, 'free', 'Free', 0), (11, 'pro', 'Pro', 4900)`).Error; err != nil {
		t.Fatalf("insert plans: %v", err)
	}
	mustCreate(t, db, &domain.Subscription{
		ID: 4, TenantID: 1, PlanID: 10,
		Status: domain.SubscriptionStatusActive,
	})

	if err := svc.ChangePlan(context.Background(), 4, "ops-1", 11); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	var count int64
	db.Model(&events.SubscriptionEvent{}).
		Where("subscription_id = 4 AND event_type = ?", events.TypePlanUpgraded).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected plan_upgraded event, got %d", count)
	}

	if err := svc.ChangePlan(context.Background(), 4, "ops-1", 10); err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	db.Model(&events.SubscriptionEvent{}).
		Where("subscription_id = 4 AND event_type = ?", events.TypePlanDowngraded).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected plan_downgraded event, got %d", count)
	}

	// Same plan again is rejected.
	if err := svc.ChangePlan(context.Background(), 4, "ops-1", 10); !errors.Is(err, domain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestCancelImmediate(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(t, db, clock.Fixed{At: time.Now().UTC()})

	mustCreate(t, db, &domain.Subscription{
		ID: 5, TenantID: 1, PlanID: 1,
		Status: domain.SubscriptionStatusActive, AutoRenew: true,
	})

	err := svc.CancelSubscription(context.Background(), 5, "ops-1", domain.CancelOptions{Immediate: true, Reason: "fraud"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var sub domain.Subscription
	db.Take(&sub, "id = ?", 5)
	if sub.Status != domain.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", sub.Status)
	}
	if sub.AutoRenew {
		t.Fatalf("expected auto_renew off")
	}

	// Cancelling again is invalid.
	err = svc.CancelSubscription(context.Background(), 5, "ops-1", domain.CancelOptions{Immediate: true})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelDeferredKeepsStatus(t *testing.T) {
	db := setupServiceTestDB(t)
	now := time.Now().UTC()
	svc := newTestService(t, db, clock.Fixed{At: now})

	endsAt := now.Add(10 * 24 * time.Hour)
	mustCreate(t, db, &domain.Subscription{
		ID: 6, TenantID: 1, PlanID: 1,
		Status: domain.SubscriptionStatusActive, EndsAt: &endsAt, AutoRenew: true,
	})

	err := svc.CancelSubscription(context.Background(), 6, "ops-1", domain.CancelOptions{Reason: "churn"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var sub domain.Subscription
	db.Take(&sub, "id = ?", 6)
	if sub.Status != domain.SubscriptionStatusActive {
		t.Fatalf("deferred cancel must keep status, got %s", sub.Status)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end set")
	}
	if sub.AutoRenew {
		t.Fatalf("expected auto_renew off")
	}
}

func TestStartGracePeriodIsIdempotentPerSubscription(t *testing.T) {
	db := setupServiceTestDB(t)
	now := time.Now().UTC()
	svc := newTestService(t, db, clock.Fixed{At: now})

	mustCreate(t, db, &domain.Subscription{
		ID: 7, TenantID: 2, PlanID: 1,
		Status: domain.SubscriptionStatusActive,
	})

	first, err := svc.StartGracePeriod(context.Background(), 7, 2, "card_declined")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := svc.StartGracePeriod(context.Background(), 7, 2, "card_declined")
	if err != nil {
		t.Fatalf("repeat start: %v", err)
	}
	if first != second {
		t.Fatalf("expected the existing grace period to be reused, got %s and %s", first, second)
	}

	var gp domain.GracePeriod
	if err := db.Take(&gp, "id = ?", first).Error; err != nil {
		t.Fatalf("load grace period: %v", err)
	}
	// Defaults: 7 day window, first retry after 1 day, 3 attempts.
	wantEnds := now.AddDate(0, 0, 7)
	if gp.EndsAt.Sub(wantEnds) > time.Second || wantEnds.Sub(gp.EndsAt) > time.Second {
		t.Fatalf("expected ends_at near %v, got %v", wantEnds, gp.EndsAt)
	}
	if gp.MaxRetries != 3 {
		t.Fatalf("expected 3 max retries, got %d", gp.MaxRetries)
	}
	wantRetry := now.AddDate(0, 0, 1)
	if gp.NextRetryAt == nil || gp.NextRetryAt.Sub(wantRetry) > time.Second || wantRetry.Sub(*gp.NextRetryAt) > time.Second {
		t.Fatalf("expected first retry near %v, got %v", wantRetry, gp.NextRetryAt)
	}
}

func TestResolveGracePeriodReactivates(t *testing.T) {
	db := setupServiceTestDB(t)
	now := time.Now().UTC()
	svc := newTestService(t, db, clock.Fixed{At: now})

	mustCreate(t, db, &domain.Subscription{
		ID: 8, TenantID: 2, PlanID: 1,
		Status: domain.SubscriptionStatusActive,
	})
	gpID, err := svc.StartGracePeriod(context.Background(), 8, 2, "card_declined")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.ResolveGracePeriod(context.Background(), gpID, domain.ResolutionWebhook); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var gp domain.GracePeriod
	db.Take(&gp, "id = ?", gpID)
	if gp.Status != domain.GracePeriodStatusResolvedPaid {
		t.Fatalf("expected resolved_paid, got %s", gp.Status)
	}
	if gp.ResolutionMethod == nil || *gp.ResolutionMethod != domain.ResolutionWebhook {
		t.Fatalf("expected webhook resolution, got %v", gp.ResolutionMethod)
	}

	// Double resolution is invalid.
	err = svc.ResolveGracePeriod(context.Background(), gpID, domain.ResolutionWebhook)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// Unknown id.
	err = svc.ResolveGracePeriod(context.Background(), 999999, domain.ResolutionWebhook)
	if !errors.Is(err, domain.ErrGracePeriodNotFound) {
		t.Fatalf("expected ErrGracePeriodNotFound, got %v", err)
	}
}
