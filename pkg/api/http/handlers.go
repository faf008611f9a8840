package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/weftworks/weft/internal/application/orchestrator"
	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/ports"
)

// RunSubmitRequest represents a run submission request
type RunSubmitRequest struct {
	Workflow *WorkflowPayload   `json:"workflow" binding:"required"`
	Options  *RunOptionsPayload `json:"options"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RunSummary is the condensed listing form of a run.
type RunSummary struct {
	RunID     string     `json:"run_id"`
	Workflow  string     `json:"workflow"`
	Status    run.Status `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"manager": "ok",
		},
	})
}

// handleSubmitRun builds the project from the payload and submits a run.
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	project, err := buildProject(req.Workflow)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    graphErrorCode(err),
				Message: err.Error(),
			},
		})
		return
	}

	opts, err := submitOptions(req.Options)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_OPTIONS",
				Message: err.Error(),
			},
		})
		return
	}

	runID, err := s.manager.SubmitRun(c.Request.Context(), project, opts)
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC(),
	})
}

// handleValidateWorkflow builds and validates a workflow without running it.
func (s *Server) handleValidateWorkflow(c *gin.Context) {
	var payload WorkflowPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	project, err := buildProject(&payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    graphErrorCode(err),
				Message: err.Error(),
			},
		})
		return
	}

	if err := s.manager.ValidateProject(project); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "VALIDATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":       true,
		"workflow":    project.Name,
		"items":       len(project.ItemNames()),
		"connections": len(project.Connections()),
		"jumps":       len(project.BackwardJumps()),
	})
}

// handleListRuns handles listing runs
func (s *Server) handleListRuns(c *gin.Context) {
	snaps, err := s.manager.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to list runs",
			},
		})
		return
	}

	summaries := make([]RunSummary, len(snaps))
	for i, snap := range snaps {
		summaries[i] = RunSummary{
			RunID:     snap.ID,
			Workflow:  snap.Workflow,
			Status:    snap.Status,
			CreatedAt: snap.CreatedAt,
			StartedAt: snap.StartedAt,
			EndedAt:   snap.EndedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  summaries,
		"total": len(summaries),
	})
}

// handleGetRun returns the full snapshot of a run.
func (s *Server) handleGetRun(c *gin.Context) {
	runID := c.Param("id")

	snap, err := s.manager.RunStatus(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RUN_NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// handleGetStatus handles getting run status
func (s *Server) handleGetStatus(c *gin.Context) {
	runID := c.Param("id")

	snap, err := s.manager.RunStatus(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RUN_NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":     snap.ID,
		"workflow":   snap.Workflow,
		"status":     snap.Status,
		"created_at": snap.CreatedAt,
		"started_at": snap.StartedAt,
		"ended_at":   snap.EndedAt,
	})
}

// handleGetResult handles getting the final result of a run
func (s *Server) handleGetResult(c *gin.Context) {
	runID := c.Param("id")

	result, err := s.manager.RunResult(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunActive) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NOT_COMPLETED",
					Message: "Run has not completed yet",
				},
			})
			return
		}
		if errors.Is(err, ports.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "RUN_NOT_FOUND",
					Message: "Run not found",
				},
			})
			return
		}
		s.logger.Error("failed to get run result", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to load run result",
			},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.CancelRun(c.Request.Context(), runID); err != nil {
		if errors.Is(err, ports.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "RUN_NOT_FOUND",
					Message: "Run not found",
				},
			})
			return
		}
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       "cancelling",
		"requested_at": time.Now().UTC(),
	})
}

// graphErrorCode maps graph operation errors onto stable API codes.
func graphErrorCode(err error) string {
	switch {
	case errors.Is(err, workflow.ErrDuplicateName):
		return "DUPLICATE_NAME"
	case errors.Is(err, workflow.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, workflow.ErrSelfLoop):
		return "SELF_LOOP"
	case errors.Is(err, workflow.ErrDuplicateEdge):
		return "DUPLICATE_EDGE"
	case errors.Is(err, workflow.ErrCycle):
		return "CYCLE"
	case errors.Is(err, workflow.ErrInvalidDefinition):
		return "INVALID_DEFINITION"
	default:
		return "INVALID_WORKFLOW"
	}
}
