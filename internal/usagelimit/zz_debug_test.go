package usagelimit

import (
	"context"
	"testing"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/clock"
	plandomain "github.com/Wollie333/vilo-sub003/internal/plan/domain"
)

func TestZZDebugMonitor(t *testing.T) {
	db := setupMonitorTestDB(t)
	now := time.Now().UTC()
	m := newTestMonitor(t, db, clock.Fixed{At: now})

	sub := seedPlanAndTenant(t, db, 10, 10)
	run := &automation.Run{}

	var p plandomain.Plan
	if err := db.Where("id = ?", sub.PlanID).Take(&p).Error; err != nil {
		t.Fatalf("load plan: %v", err)
	}
	t.Logf("plan limits: %#v, LimitValue(max_rooms)=%d", p.Limits, p.LimitValue(plandomain.LimitMaxRooms))

	var raw string
	if err := db.Raw(`SELECT limits FROM plans WHERE id = 1`).Scan(&raw).Error; err != nil {
		t.Fatalf("raw: %v", err)
	}
	t.Logf("raw limits column: %s", raw)

	var roomCount int64
	db.Table("rooms").Where("tenant_id = ?", sub.TenantID).Count(&roomCount)
	t.Logf("rooms for tenant %v: %d", sub.TenantID, roomCount)

	if err := m.CheckSubscription(context.Background(), sub, 0.8, run); err != nil {
		t.Fatalf("check: %v", err)
	}
	t.Logf("run: %#v", *run)
}
