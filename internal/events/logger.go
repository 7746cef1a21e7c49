package events

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event describes a subscription event to append to the log.
type Event struct {
	SubscriptionID   snowflake.ID
	TenantID         snowflake.ID
	Type             string
	PreviousStatus   string
	NewStatus        string
	Details          Details
	NotificationType string
	IsAutomated      bool
	TriggeredBy      string
	DedupeKey        string
}

type LoggerParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

// Logger appends subscription events. Persistence failures are logged locally
// and swallowed: the audit trail is best-effort, never transactional with the
// business mutation that produced it.
type Logger struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewLogger(p LoggerParams) *Logger {
	return &Logger{
		db:    p.DB,
		log:   p.Log.Named("events"),
		genID: p.GenID,
	}
}

// Log appends one event. Returns the new id, or zero when the insert failed.
func (l *Logger) Log(ctx context.Context, event Event) snowflake.ID {
	id, _ := l.LogDeduped(ctx, event)
	return id
}

// LogDeduped appends one event unless its dedupe key already exists. The
// second return reports whether a row was actually inserted; a suppressed
// duplicate and a store failure both return false, with only the latter
// logged as a warning.
func (l *Logger) LogDeduped(ctx context.Context, event Event) (snowflake.ID, bool) {
	if l == nil || l.db == nil || l.genID == nil {
		return 0, false
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		l.log.Warn("dropping event with empty type",
			zap.String("subscription_id", event.SubscriptionID.String()))
		return 0, false
	}

	row := SubscriptionEvent{
		ID:               l.genID.Generate(),
		SubscriptionID:   event.SubscriptionID,
		TenantID:         event.TenantID,
		EventType:        eventType,
		Details:          detailsMap(event.Details),
		NotificationType: notificationType(event.NotificationType),
		IsAutomated:      event.IsAutomated,
		CreatedAt:        time.Now().UTC(),
	}
	if event.PreviousStatus != "" {
		row.PreviousStatus = &event.PreviousStatus
	}
	if event.NewStatus != "" {
		row.NewStatus = &event.NewStatus
	}
	if event.TriggeredBy != "" {
		row.TriggeredBy = &event.TriggeredBy
	}
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		row.DedupeKey = &key
	}

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		l.log.Warn("subscription event insert failed",
			zap.String("event_type", eventType),
			zap.String("subscription_id", event.SubscriptionID.String()),
			zap.Error(result.Error),
		)
		return 0, false
	}
	if result.RowsAffected == 0 {
		return 0, false
	}
	return row.ID, true
}

// HasEvent reports whether any event of the given type exists for the
// subscription, with no time bound.
func (l *Logger) HasEvent(ctx context.Context, subscriptionID snowflake.ID, eventType string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&SubscriptionEvent{}).
		Where("subscription_id = ? AND event_type = ?", subscriptionID, eventType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasEventSince reports whether an event of the given type was logged for the
// subscription at or after the given instant.
func (l *Logger) HasEventSince(ctx context.Context, subscriptionID snowflake.ID, eventType string, since time.Time) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&SubscriptionEvent{}).
		Where("subscription_id = ? AND event_type = ? AND created_at >= ?", subscriptionID, eventType, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListBySubscription returns the newest events for a subscription.
func (l *Logger) ListBySubscription(ctx context.Context, subscriptionID snowflake.ID, limit int) ([]SubscriptionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SubscriptionEvent
	err := l.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func detailsMap(d Details) datatypes.JSONMap {
	if d == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(d.ToMap())
}

func notificationType(hint string) string {
	switch hint {
	case NotifyEmail, NotifyInApp, NotifyBoth:
		return hint
	default:
		return NotifyNone
	}
}
