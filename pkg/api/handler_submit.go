package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/stagee"
)

// handleSubmit implements POST /submission: accepts a plan, runs it
// through the submission front door, and returns the resulting execution
// record, fresh or deduplicated.
func (s *Server) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	actor := req.ActorID
	if actor == "" {
		actor = extractActor(c)
	}

	priority := models.PriorityNormal
	if req.Priority != nil {
		priority = *req.Priority
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = traceIDFrom(c.Request.Context())
	}

	result, err := s.executor.Submit(c.Request.Context(), stagee.SubmitRequest{
		TenantID:          req.TenantID,
		ActorID:           actor,
		Plan:              req.Plan,
		SLAClass:          req.SLAClass,
		ApprovalLevel:     req.ApprovalLevel,
		ExecutionMode:     req.ExecutionMode,
		Priority:          priority,
		TraceID:           traceID,
		ParentExecutionID: req.ParentExecutionID,
		Tags:              req.Tags,
		Metadata:          req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.executionResponse(c, result.Execution, result.Deduped))
}
