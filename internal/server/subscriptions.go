package server

import (
	"net/http"
	"strconv"
	"strings"

	obscontext "github.com/Wollie333/vilo-sub003/internal/observability/context"
	subscriptiondomain "github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type extendTrialRequest struct {
	ExtraDays int `json:"extra_days"`
}

func (s *Server) ExtendTrial(c *gin.Context) {
	subID, ok := idParam(c)
	if !ok {
		return
	}
	var req extendTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.subSvc.ExtendTrial(c.Request.Context(), subID, s.adminIDFromContext(c), req.ExtraDays); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	subID, ok := idParam(c)
	if !ok {
		return
	}
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil {
		AbortWithError(c, newValidationError("plan_id", "invalid_id", "plan_id must be a valid id"))
		return
	}
	if err := s.subSvc.ChangePlan(c.Request.Context(), subID, s.adminIDFromContext(c), planID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type cancelRequest struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason"`
}

func (s *Server) CancelSubscription(c *gin.Context) {
	subID, ok := idParam(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	opts := subscriptiondomain.CancelOptions{
		Immediate: req.Immediate,
		Reason:    strings.TrimSpace(req.Reason),
	}
	if err := s.subSvc.CancelSubscription(c.Request.Context(), subID, s.adminIDFromContext(c), opts); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startGracePeriodRequest struct {
	TenantID      string `json:"tenant_id"`
	FailureReason string `json:"failure_reason"`
}

// StartGracePeriod is the payment-failure entry point, called by the gateway
// webhook relay or manually after an out-of-band decline.
func (s *Server) StartGracePeriod(c *gin.Context) {
	subID, ok := idParam(c)
	if !ok {
		return
	}
	var req startGracePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_id", "tenant_id must be a valid id"))
		return
	}

	ctx := obscontext.WithTenantID(c.Request.Context(), tenantID.String())
	gpID, err := s.subSvc.StartGracePeriod(ctx, subID, tenantID, strings.TrimSpace(req.FailureReason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grace_period_id": gpID.String()})
}

func (s *Server) ResolveGracePeriod(c *gin.Context) {
	gpID, ok := idParam(c)
	if !ok {
		return
	}
	err := s.subSvc.ResolveGracePeriod(c.Request.Context(), gpID, subscriptiondomain.ResolutionManualPayment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListSubscriptionEvents(c *gin.Context) {
	subID, ok := idParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := s.events.ListBySubscription(c.Request.Context(), subID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func idParam(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "id must be a valid id"))
		return 0, false
	}
	return id, true
}
