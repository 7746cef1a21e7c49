package settings

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSettingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS platform_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func setValue(t *testing.T, db *gorm.DB, key, value string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO platform_settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	).Error; err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestGettersFallBackOnMissingAndMalformed(t *testing.T) {
	db := setupSettingsTestDB(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	ctx := context.Background()

	if got := svc.GetInt(ctx, "missing", 14); got != 14 {
		t.Fatalf("missing int: got %d", got)
	}
	setValue(t, db, "grace_period_days", "not-a-number")
	if got := svc.GetInt(ctx, "grace_period_days", 7); got != 7 {
		t.Fatalf("malformed int: got %d", got)
	}
	setValue(t, db, "grace_period_days", "10")
	if got := svc.GetInt(ctx, "grace_period_days", 7); got != 10 {
		t.Fatalf("stored int: got %d", got)
	}

	setValue(t, db, "auto_cancel_after_grace", "false")
	if svc.GetBool(ctx, "auto_cancel_after_grace", true) {
		t.Fatalf("stored bool not honored")
	}

	setValue(t, db, "usage_warning_threshold", "0.95")
	if got := svc.GetFloat(ctx, "usage_warning_threshold", 0.8); got != 0.95 {
		t.Fatalf("stored float: got %v", got)
	}

	// Whitespace-only values count as absent.
	setValue(t, db, "trial_notice_days", "   ")
	if got := svc.GetInt(ctx, "trial_notice_days", 3); got != 3 {
		t.Fatalf("blank value: got %d", got)
	}
}

func TestGetIntSliceParsesJSONArray(t *testing.T) {
	db := setupSettingsTestDB(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	ctx := context.Background()

	fallback := []int{1, 3, 7}
	if got := svc.GetIntSlice(ctx, "payment_retry_intervals", fallback); !reflect.DeepEqual(got, fallback) {
		t.Fatalf("missing slice: got %v", got)
	}

	setValue(t, db, "payment_retry_intervals", "[2,5]")
	if got := svc.GetIntSlice(ctx, "payment_retry_intervals", fallback); !reflect.DeepEqual(got, []int{2, 5}) {
		t.Fatalf("stored slice: got %v", got)
	}

	// An empty array is useless for scheduling, treat it like absence.
	setValue(t, db, "payment_retry_intervals", "[]")
	if got := svc.GetIntSlice(ctx, "payment_retry_intervals", fallback); !reflect.DeepEqual(got, fallback) {
		t.Fatalf("empty slice: got %v", got)
	}

	setValue(t, db, "payment_retry_intervals", "1,3,7")
	if got := svc.GetIntSlice(ctx, "payment_retry_intervals", fallback); !reflect.DeepEqual(got, fallback) {
		t.Fatalf("malformed slice: got %v", got)
	}
}

func TestSnapshotMergesStoreOverDefaults(t *testing.T) {
	db := setupSettingsTestDB(t)
	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	ctx := context.Background()

	if got := svc.Snapshot(ctx); !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("empty store should yield defaults, got %+v", got)
	}

	setValue(t, db, KeyGracePeriodDays, "14")
	setValue(t, db, KeyPaymentRetryIntervals, "[1,2,4,8]")
	setValue(t, db, KeyDowngradeToFreeOnCancel, "false")

	snap := svc.Snapshot(ctx)
	if snap.GracePeriodDays != 14 {
		t.Fatalf("grace days: got %d", snap.GracePeriodDays)
	}
	if !reflect.DeepEqual(snap.PaymentRetryIntervals, []int{1, 2, 4, 8}) {
		t.Fatalf("retry intervals: got %v", snap.PaymentRetryIntervals)
	}
	if snap.DowngradeToFreeOnCancel {
		t.Fatalf("downgrade flag not honored")
	}
	// Untouched keys keep their defaults.
	if snap.TrialNoticeDays != Defaults().TrialNoticeDays {
		t.Fatalf("trial notice days: got %d", snap.TrialNoticeDays)
	}
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *Service
	if got := svc.Snapshot(context.Background()); !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("nil service should yield defaults, got %+v", got)
	}
}
