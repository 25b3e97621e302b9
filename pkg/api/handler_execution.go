package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/monitoring"
	"github.com/codeready-toolchain/execution-core/pkg/stagee"
	"github.com/codeready-toolchain/execution-core/pkg/store"
)

// handleGetExecution implements GET /execution/:id: the execution record
// plus its aggregated step progress.
func (s *Server) handleGetExecution(c *gin.Context) {
	id := c.Param("id")

	exec, err := s.executions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.executionResponse(c, exec, false))
}

// executionResponse builds the wire representation of an execution,
// attaching a progress summary when the step store has rows for it.
func (s *Server) executionResponse(c *gin.Context, exec *models.Execution, deduped bool) ExecutionResponse {
	resp := ExecutionResponse{
		ExecutionID:   exec.ID,
		TenantID:      exec.TenantID,
		Status:        exec.Status,
		SLAClass:      exec.SLAClass,
		ExecutionMode: exec.ExecutionMode,
		ApprovalLevel: exec.ApprovalLevel,
		CreatedAt:     exec.CreatedAt,
		StartedAt:     exec.StartedAt,
		CompletedAt:   exec.CompletedAt,
		TimeoutAt:     exec.TimeoutAt,
		Result:        exec.Result,
		TraceID:       exec.TraceID,
		Tags:          exec.Tags,
		Deduped:       deduped,
	}
	if exec.ErrorMessage != "" && s.masker != nil {
		resp.ErrorMessage = s.masker.Mask(exec.ErrorMessage)
	} else {
		resp.ErrorMessage = exec.ErrorMessage
	}

	if s.steps == nil {
		return resp
	}
	steps, err := s.steps.ListByExecution(c.Request.Context(), exec.ID)
	if err != nil {
		return resp
	}
	progress := monitoring.ProgressOf(steps)
	resp.Progress = progressResponse(progress)
	return resp
}

// handleListExecutions implements GET /executions: a tenant-scoped listing
// with optional status and SLA-class filters, newest first.
func (s *Server) handleListExecutions(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "tenant_id is required"})
		return
	}

	filter := store.ListFilter{
		Status:   models.Status(c.Query("status")),
		SLAClass: models.SLAClass(c.Query("sla_class")),
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	execs, err := s.executions.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := ExecutionListResponse{Executions: make([]ExecutionResponse, 0, len(execs))}
	for _, exec := range execs {
		resp.Executions = append(resp.Executions, s.executionResponse(c, exec, false))
	}
	c.JSON(http.StatusOK, resp)
}

// handleListEvents implements GET /execution/:id/events: a paginated
// catch-up read of the audit trail, cursor-based on event ID exactly as
// the live stream's catchup request uses it (pkg/events).
func (s *Server) handleListEvents(c *gin.Context) {
	id := c.Param("id")
	cursor := c.Query("after")

	events, err := s.eventStore.ListSince(c.Request.Context(), id, cursor)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := EventListResponse{Events: make([]EventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, EventResponse{
			EventID:      ev.ID,
			ExecutionID:  ev.ExecutionID,
			EventType:    ev.EventType,
			FromStatus:   ev.FromStatus,
			ToStatus:     ev.ToStatus,
			ActorID:      ev.ActorID,
			ActorType:    ev.ActorType,
			ErrorMessage: ev.ErrorMessage,
			CreatedAt:    ev.CreatedAt,
		})
	}
	if len(events) > 0 {
		resp.Next = events[len(events)-1].ID
	}
	c.JSON(http.StatusOK, resp)
}

// handleCancel implements POST /execution/:id/cancel: a user-initiated
// cancellation. Closes both cancellation windows an
// execution can be in — already claimed by a worker (cooperative
// cancellation via the pool's token) and still sitting in the queue
// unclaimed (no token exists yet, so the queue row itself must be flipped)
// — plus the pre-queue case where the execution hasn't reached the queue
// at all (pending-approval/approved).
func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = models.ReasonUserInitiated
	}

	ctx := c.Request.Context()
	exec, err := s.executions.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	if exec.Status.Terminal() {
		c.JSON(http.StatusOK, CancelResponse{ExecutionID: id, Message: "already terminal"})
		return
	}

	if s.pool != nil {
		s.pool.CancelExecution(id, reason, req.Message)
	}
	if s.queueStore != nil {
		_ = s.queueStore.CancelByExecution(ctx, id)
	}

	if exec.Status == models.StatusPendingApproval || exec.Status == models.StatusApproved || exec.Status == models.StatusQueued {
		if err := s.executions.UpdateStatus(ctx, id, exec.Status, models.StatusCancelled, reason); err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, CancelResponse{ExecutionID: id, Message: "cancellation requested"})
}

// handleApprovalDecision implements POST /approval/:id: a human grant or
// deny against a pending approval gate.
func (s *Server) handleApprovalDecision(c *gin.Context) {
	id := c.Param("id")

	var req ApprovalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := s.executor.Decide(c.Request.Context(), stagee.DecideRequest{
		ApprovalID: id,
		Approve:    req.Approve,
		DecidedBy:  extractActor(c),
		Reason:     req.Reason,
		Priority:   models.PriorityNormal,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	approvalStatus := models.ApprovalDenied
	if req.Approve {
		approvalStatus = models.ApprovalGranted
	}
	c.JSON(http.StatusOK, ApprovalResponse{
		ApprovalID:  id,
		ExecutionID: result.Execution.ID,
		Status:      approvalStatus,
	})
}
