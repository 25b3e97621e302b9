package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/rbac"
	"github.com/codeready-toolchain/execution-core/pkg/store"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "empty plan maps to 400",
			err:        models.ErrEmptyPlan,
			expectCode: http.StatusBadRequest,
			expectMsg:  models.ErrEmptyPlan.Error(),
		},
		{
			name:       "rbac denied maps to 403",
			err:        fmt.Errorf("wrapped: %w", rbac.ErrDenied),
			expectCode: http.StatusForbidden,
			expectMsg:  "rbac denied",
		},
		{
			name:       "not found maps to 404",
			err:        fmt.Errorf("wrapped: %w", store.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "resource not found",
		},
		{
			name:       "stale transition maps to 409",
			err:        fmt.Errorf("wrapped: %w", store.ErrStaleTransition),
			expectCode: http.StatusConflict,
			expectMsg:  "resource state changed concurrently",
		},
		{
			name:       "already exists maps to 409",
			err:        fmt.Errorf("wrapped: %w", store.ErrAlreadyExists),
			expectCode: http.StatusConflict,
			expectMsg:  "resource already exists",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	gin.SetMode(gin.TestMode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			writeError(c, tt.err)

			assert.Equal(t, tt.expectCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectMsg)
		})
	}
}
