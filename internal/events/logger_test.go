package events

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLoggerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS subscription_events (
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
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscription_events_dedupe
		ON subscription_events (dedupe_key)`).Error; err != nil {
		t.Fatalf("create index: %v", err)
	}
	return db
}

func newTestLogger(t *testing.T, db *gorm.DB) *Logger {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewLogger(LoggerParams{DB: db, Log: zap.NewNop(), GenID: node})
}

func TestLogDedupedInsertsOncePerKey(t *testing.T) {
	db := setupLoggerTestDB(t)
	log := newTestLogger(t, db)
	ctx := context.Background()

	ev := Event{
		SubscriptionID: 42,
		TenantID:       1,
		Type:           TypeTrialEndingSoon,
		Details:        TrialEndingSoonDetails{DaysLeft: 3},
		DedupeKey:      TrialNoticeKey("42"),
	}

	id, inserted := log.LogDeduped(ctx, ev)
	if !inserted || id == 0 {
		t.Fatalf("expected first insert to land, got id=%d inserted=%v", id, inserted)
	}
	_, inserted = log.LogDeduped(ctx, ev)
	if inserted {
		t.Fatalf("expected duplicate key to be suppressed")
	}

	var count int64
	db.Model(&SubscriptionEvent{}).Where("subscription_id = 42").Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestLogWithoutDedupeKeyAlwaysInserts(t *testing.T) {
	db := setupLoggerTestDB(t)
	log := newTestLogger(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev := Event{SubscriptionID: 7, TenantID: 1, Type: TypePaymentRetry}
		if id := log.Log(ctx, ev); id == 0 {
			t.Fatalf("insert %d failed", i)
		}
	}

	var count int64
	db.Model(&SubscriptionEvent{}).Where("subscription_id = 7").Count(&count)
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}
}

func TestHasEventSinceRespectsWindow(t *testing.T) {
	db := setupLoggerTestDB(t)
	log := newTestLogger(t, db)
	ctx := context.Background()

	log.Log(ctx, Event{SubscriptionID: 9, TenantID: 1, Type: TypeRenewalReminder})

	found, err := log.HasEvent(ctx, 9, TypeRenewalReminder)
	if err != nil || !found {
		t.Fatalf("expected event to be found, got found=%v err=%v", found, err)
	}
	found, err = log.HasEvent(ctx, 9, TypeTrialExpired)
	if err != nil || found {
		t.Fatalf("expected no trial_expired event, got found=%v err=%v", found, err)
	}

	found, err = log.HasEventSince(ctx, 9, TypeRenewalReminder, time.Now().UTC().Add(-time.Hour))
	if err != nil || !found {
		t.Fatalf("expected event within the last hour, got found=%v err=%v", found, err)
	}
	found, err = log.HasEventSince(ctx, 9, TypeRenewalReminder, time.Now().UTC().Add(time.Hour))
	if err != nil || found {
		t.Fatalf("expected no event in the future window, got found=%v err=%v", found, err)
	}
}

func TestListBySubscriptionNewestFirst(t *testing.T) {
	db := setupLoggerTestDB(t)
	log := newTestLogger(t, db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	types := []string{TypeTrialEndingSoon, TypeTrialExpired, TypeSubscriptionCancelled}
	for i, eventType := range types {
		id := log.Log(ctx, Event{SubscriptionID: 11, TenantID: 1, Type: eventType})
		// Spread created_at so ordering is unambiguous.
		if err := db.Model(&SubscriptionEvent{}).
			Where("id = ?", id).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error; err != nil {
			t.Fatalf("backdate event: %v", err)
		}
	}
	log.Log(ctx, Event{SubscriptionID: 99, TenantID: 1, Type: TypePaymentRetry})

	got, err := log.ListBySubscription(ctx, 11, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType != TypeSubscriptionCancelled || got[1].EventType != TypeTrialExpired {
		t.Fatalf("expected newest first, got %s then %s", got[0].EventType, got[1].EventType)
	}
}

func TestRenewalReminderKeyStablePerWindow(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	window := 5 * 24 * time.Hour

	a := RenewalReminderKey("77", at, window)
	b := RenewalReminderKey("77", at.Add(3*time.Hour), window)
	if a != b {
		t.Fatalf("keys within one window must match: %q vs %q", a, b)
	}

	c := RenewalReminderKey("77", at.Add(6*24*time.Hour), window)
	if a == c {
		t.Fatalf("keys across windows must differ: %q", a)
	}
	if d := RenewalReminderKey("78", at, window); d == a {
		t.Fatalf("keys across subscriptions must differ: %q", d)
	}
}
