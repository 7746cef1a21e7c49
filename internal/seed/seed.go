// Package seed bootstraps the baseline rows a fresh installation needs: the
// free and paid plans, the default platform settings, and a demo tenant on a
// trial subscription outside production.
package seed

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/Wollie333/vilo-sub003/internal/plan/domain"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	subscriptiondomain "github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	tenantdomain "github.com/Wollie333/vilo-sub003/internal/tenant/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PlanCodeFree = "free"
	PlanCodePro  = "pro"

	demoTenantSlug = "demo"
	trialDays      = 14
)

// EnsurePlans inserts the built-in plans when missing. Existing rows are left
// untouched so operators can tune prices and limits in place.
func EnsurePlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	plans := []plandomain.Plan{
		{
			ID:         node.Generate(),
			Code:       PlanCodeFree,
			Name:       "Free",
			PriceCents: 0,
			Currency:   "EUR",
			Limits: datatypes.JSONMap{
				plandomain.LimitMaxRooms:       3,
				plandomain.LimitMaxTeamMembers: 1,
			},
		},
		{
			ID:         node.Generate(),
			Code:       PlanCodePro,
			Name:       "Pro",
			PriceCents: 4900,
			Currency:   "EUR",
			Limits: datatypes.JSONMap{
				plandomain.LimitMaxRooms:       50,
				plandomain.LimitMaxTeamMembers: 10,
			},
		},
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range plans {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).Create(&plan).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureSettings writes the default value for every settings key that has no
// row yet.
func EnsureSettings(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	defaults := map[string]string{
		settings.KeyTrialNoticeDays:         "3",
		settings.KeyDowngradeToFreeOnCancel: "true",
		settings.KeyGracePeriodDays:         "7",
		settings.KeyPaymentRetryIntervals:   "[1,3,7]",
		settings.KeyAutoCancelAfterGrace:    "true",
		settings.KeyRenewalReminderDays:     "7",
		settings.KeyUsageWarningThreshold:   "0.8",
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range defaults {
			row := settings.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoNothing: true,
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoTenant creates a demo tenant on a fresh trial of the pro plan.
// Intended for development and staging only.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant tenantdomain.Tenant
		err := tx.Where("slug = ?", demoTenantSlug).First(&tenant).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var plan plandomain.Plan
		if err := tx.Where("code = ?", PlanCodePro).First(&plan).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		tenant = tenantdomain.Tenant{
			ID:        node.Generate(),
			Name:      "Demo Property",
			Slug:      demoTenantSlug,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		endsAt := now.AddDate(0, 0, trialDays)
		sub := subscriptiondomain.Subscription{
			ID:        node.Generate(),
			TenantID:  tenant.ID,
			PlanID:    plan.ID,
			Status:    subscriptiondomain.SubscriptionStatusTrial,
			EndsAt:    &endsAt,
			AutoRenew: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&sub).Error
	})
}
