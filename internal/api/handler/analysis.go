package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/api/middleware"
	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// ndjsonContentType is the media type of streamed analysis events
const ndjsonContentType = "application/x-ndjson"

// Runner runs one analysis synchronously; *orchestrator.Orchestrator
// satisfies it
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request, sink aiclient.Sink) *orchestrator.Result
}

// AnalysisHandler serves the analysis trigger and query endpoints
type AnalysisHandler struct {
	runner Runner
	store  store.Store
	log    *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(runner Runner, s store.Store) *AnalysisHandler {
	return &AnalysisHandler{runner: runner, store: s, log: logger.Named("api")}
}

// TriggerRequest is the body of POST /api/v1/analysis
type TriggerRequest struct {
	ProjectID      uint   `json:"projectId" binding:"required"`
	PRNumber       int    `json:"pullRequestId" binding:"required,min=1"`
	CommitHash     string `json:"commitHash"`
	SourceBranch   string `json:"sourceBranchName"`
	TargetBranch   string `json:"targetBranchName"`
	OutputLanguage string `json:"outputLanguage"`
}

// Trigger handles POST /api/v1/analysis. It runs the analysis while the
// client waits and streams every event as one JSON object per line; the
// last line is the final event with the outcome.
func (h *AnalysisHandler) Trigger(c *gin.Context) {
	var body TriggerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	project, err := h.store.Project().GetByID(c.Request.Context(), body.ProjectID)
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, errors.ErrNotFound("project"))
		return
	}
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load project", err))
		return
	}

	c.Header("Content-Type", ndjsonContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	var (
		mu     sync.Mutex
		broken bool
	)
	enc := json.NewEncoder(c.Writer)
	sink := func(ev aiclient.Event) {
		mu.Lock()
		defer mu.Unlock()
		if broken {
			return
		}
		if err := enc.Encode(ev.Fields); err != nil {
			broken = true
			h.log.Debug("Client stopped reading the event stream", zap.Error(err))
			return
		}
		c.Writer.Flush()
	}

	// A disconnecting client stops the stream, not the analysis.
	res := h.runner.Run(context.WithoutCancel(c.Request.Context()), orchestrator.Request{
		Project:        project,
		PRNumber:       body.PRNumber,
		CommitHash:     body.CommitHash,
		SourceBranch:   body.SourceBranch,
		TargetBranch:   body.TargetBranch,
		OutputLanguage: body.OutputLanguage,
	}, sink)

	h.log.Info("Streamed analysis finished",
		zap.Uint(logger.FieldProjectID, project.ID),
		zap.Int(logger.FieldPRNumber, body.PRNumber),
		zap.String("requested_by", c.GetString(middleware.ContextKeySubject)),
		zap.String(logger.FieldRunID, res.RunID),
		zap.String("outcome", string(res.Outcome)),
	)
}

// ListAnalyses handles GET /api/v1/projects/:id/analyses?pr=N&limit=&offset=
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	projectID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var pr *int
	if c.Query("pr") != "" {
		n := queryInt(c, "pr", 0)
		if n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    errors.ErrCodeValidation,
				"message": "Invalid pr",
			})
			return
		}
		pr = &n
	}
	limit := config.PageSize(queryInt(c, "limit", 0))
	offset := max(queryInt(c, "offset", 0), 0)

	analyses, total, err := h.store.Analysis().ListByProject(c.Request.Context(), projectID, pr, limit, offset)
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to list analyses", err))
		return
	}
	if analyses == nil {
		analyses = []model.CodeAnalysis{}
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  analyses,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetAnalysis handles GET /api/v1/analyses/:id
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	analysis, err := h.store.Analysis().GetByID(c.Request.Context(), id)
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeAnalysisNotFound,
			"message": "Analysis not found",
		})
		return
	}
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load analysis", err))
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// ListLocks handles GET /api/v1/locks
func (h *AnalysisHandler) ListLocks(c *gin.Context) {
	locks, err := h.store.Lock().ListActive(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to list locks", err))
		return
	}
	if locks == nil {
		locks = []model.AnalysisLock{}
	}
	c.JSON(http.StatusOK, gin.H{"items": locks, "total": len(locks)})
}
