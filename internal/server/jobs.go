package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// TriggerJob runs one sweep synchronously on behalf of an admin or an
// external cron. "daily" and "hourly" run the full batteries.
func (s *Server) TriggerJob(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	adminID := s.adminIDFromContext(c)

	if !s.jobLimit.Allow(adminID + ":" + name) {
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	ctx := c.Request.Context()
	switch name {
	case "daily":
		c.JSON(http.StatusOK, gin.H{"results": s.sched.RunDailyJobs(ctx, automation.TriggeredByManual, adminID)})
	case "hourly":
		c.JSON(http.StatusOK, gin.H{"results": s.sched.RunHourlyJobs(ctx, automation.TriggeredByManual, adminID)})
	case scheduler.JobExpiringTrials:
		c.JSON(http.StatusOK, gin.H{"result": s.sched.ProcessExpiringTrials(ctx, automation.TriggeredByManual, adminID)})
	case scheduler.JobGracePeriods:
		c.JSON(http.StatusOK, gin.H{"result": s.sched.ProcessGracePeriods(ctx, automation.TriggeredByManual, adminID)})
	case scheduler.JobPendingCancellations:
		c.JSON(http.StatusOK, gin.H{"result": s.sched.ProcessPendingCancellations(ctx, automation.TriggeredByManual, adminID)})
	case scheduler.JobUsageLimits:
		c.JSON(http.StatusOK, gin.H{"result": s.sched.CheckUsageLimits(ctx, automation.TriggeredByManual, adminID)})
	case scheduler.JobRenewalReminders:
		c.JSON(http.StatusOK, gin.H{"result": s.sched.SendRenewalReminders(ctx, automation.TriggeredByManual, adminID)})
	default:
		AbortWithError(c, newValidationError("name", "unknown_job", "unknown job name"))
	}
}

// ListRuns returns recent automation runs, optionally filtered by job name.
func (s *Server) ListRuns(c *gin.Context) {
	jobName := strings.TrimSpace(c.Query("job"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	runs, err := s.tracker.ListRecent(c.Request.Context(), jobName, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}
