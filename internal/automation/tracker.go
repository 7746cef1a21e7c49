package automation

import (
	"context"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TrackerParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

// Tracker persists automation runs. Tracking is observability, not a
// precondition: when the store is unavailable the job still executes and the
// returned Run simply carries a zero id.
type Tracker struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewTracker(p TrackerParams) *Tracker {
	return &Tracker{
		db:    p.DB,
		log:   p.Log.Named("automation"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Start opens a run ledger row. Never fails the caller.
func (t *Tracker) Start(ctx context.Context, jobName, triggeredBy, adminID string) *Run {
	run := &Run{JobName: jobName}
	if t == nil || t.db == nil || t.genID == nil {
		return run
	}

	row := AutomationRun{
		ID:          t.genID.Generate(),
		JobName:     jobName,
		Status:      RunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   t.now(),
	}
	if adminID != "" {
		row.TriggeredByAdmin = &adminID
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		t.log.Warn("automation run insert failed",
			zap.String("job", jobName),
			zap.Error(err),
		)
		return run
	}
	run.ID = row.ID
	return run
}

// Complete finalizes the ledger row. sweepErr reports a job-level failure
// that escaped per-item guards; it forces status failed regardless of counts.
func (t *Tracker) Complete(ctx context.Context, run *Run, sweepErr error) Result {
	result := run.snapshot()

	status := RunStatusCompleted
	switch {
	case sweepErr != nil:
		status = RunStatusFailed
	case result.ItemsFailed > 0:
		status = RunStatusPartial
	}
	result.Status = status

	if t == nil || t.db == nil || run == nil || run.ID == 0 {
		return result
	}

	results := make(map[string]any, len(result.Buckets))
	for bucket, ids := range result.Buckets {
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		results[bucket] = values
	}

	now := t.now()
	updates := map[string]any{
		"status":          status,
		"items_processed": result.ItemsProcessed,
		"items_succeeded": result.ItemsSucceeded,
		"items_failed":    result.ItemsFailed,
		"results":         datatypes.JSONMap(results),
		"completed_at":    now,
	}
	if sweepErr != nil {
		updates["error_message"] = sweepErr.Error()
	}

	err := t.db.WithContext(ctx).
		Model(&AutomationRun{}).
		Where("id = ? AND status = ?", run.ID, RunStatusRunning).
		Updates(updates).Error
	if err != nil {
		t.log.Warn("automation run completion failed",
			zap.String("job", run.JobName),
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	return result
}

// ListRecent returns the newest runs, optionally filtered by job name.
func (t *Tracker) ListRecent(ctx context.Context, jobName string, limit int) ([]AutomationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := t.db.WithContext(ctx).Model(&AutomationRun{})
	if jobName != "" {
		query = query.Where("job_name = ?", jobName)
	}
	var rows []AutomationRun
	err := query.Order("started_at DESC, id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *Tracker) now() time.Time {
	if t.clock != nil {
		return t.clock.Now()
	}
	return time.Now().UTC()
}
