package handler

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// ProviderSource resolves configured VCS providers by name
type ProviderSource interface {
	Get(name string) (provider.Provider, error)
}

// PushResolver maps a pushed commit to its open pull request
type PushResolver interface {
	ResolvePush(ctx context.Context, project *model.Project, branch, commit string) (int, error)
}

// Submitter queues analyses for background execution
type Submitter interface {
	Submit(req orchestrator.Request) error
}

// WebhookHandler handles webhook-related HTTP requests
type WebhookHandler struct {
	providers ProviderSource
	secrets   map[string]string
	projects  store.ProjectStore
	pushes    PushResolver
	queue     Submitter
	log       *zap.Logger
}

// NewWebhookHandler creates a new webhook handler. secrets maps provider
// names to webhook secrets.
func NewWebhookHandler(providers ProviderSource, secrets map[string]string, projects store.ProjectStore, pushes PushResolver, queue Submitter) *WebhookHandler {
	return &WebhookHandler{
		providers: providers,
		secrets:   secrets,
		projects:  projects,
		pushes:    pushes,
		queue:     queue,
		log:       logger.Named("webhook"),
	}
}

// HandleWebhook handles POST /api/v1/webhooks/:provider. Accepted events
// are analyzed in the background and answered with 202.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")

	prov, err := h.providers.Get(providerName)
	if err != nil {
		h.log.Warn("Unknown webhook provider", zap.String("provider", providerName), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeVCSNotFound,
			"message": "Unknown provider: " + providerName,
		})
		return
	}

	secret := h.secrets[providerName]
	if secret == "" {
		h.log.Warn("Webhook secret not configured, signature validation skipped",
			zap.String("provider", providerName),
			zap.String("hint", "Configure webhook_secret in providers for security"),
		)
	}

	event, err := prov.ParseWebhook(c.Request, secret)
	if stderrors.Is(err, provider.ErrUnsupported) {
		c.JSON(http.StatusOK, gin.H{"message": "Event received but not processed"})
		return
	}
	if err != nil {
		h.log.Warn("Failed to parse webhook", zap.String("provider", providerName), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeVCSWebhook,
			"message": "Failed to parse webhook: " + err.Error(),
		})
		return
	}

	h.log.Info("Webhook received",
		zap.String("provider", providerName),
		zap.String("type", string(event.Type)),
		zap.String("repo", event.Owner+"/"+event.Repo),
		zap.String("ref", event.Ref),
		zap.String("action", event.Action),
		zap.String("sender", event.Sender),
		zap.Int(logger.FieldPRNumber, event.PRNumber),
	)

	project, err := h.projects.GetByRepo(c.Request.Context(), providerName, event.Owner, event.Repo)
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Repository is not configured, skipping",
			"repo":    event.Owner + "/" + event.Repo,
		})
		return
	}
	if err != nil {
		respondError(c, errors.Wrap(errors.ErrCodeDBQuery, "failed to load project", err))
		return
	}

	switch event.Type {
	case provider.EventTypePullRequest:
		h.handlePREvent(c, project, event)
	case provider.EventTypePush:
		h.handlePushEvent(c, project, event)
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": "Event received but not processed",
			"type":    event.Type,
		})
	}
}

func (h *WebhookHandler) handlePREvent(c *gin.Context, project *model.Project, event *provider.WebhookEvent) {
	if !provider.ShouldProcessPREvent(event.Action) {
		c.JSON(http.StatusOK, gin.H{
			"message": "PR action does not trigger an analysis, skipping",
			"action":  event.Action,
		})
		return
	}

	h.submit(c, orchestrator.Request{
		Project:      project,
		PRNumber:     event.PRNumber,
		PREntityID:   event.PREntityID,
		CommitHash:   event.CommitSHA,
		SourceBranch: event.Ref,
		TargetBranch: event.BaseRef,
		Title:        event.PRTitle,
		Description:  event.PRDescription,
		Author:       event.Sender,
	})
}

// handlePushEvent analyzes the open PR whose head is the pushed commit
func (h *WebhookHandler) handlePushEvent(c *gin.Context, project *model.Project, event *provider.WebhookEvent) {
	if event.CommitSHA == "" || event.Ref == "" {
		c.JSON(http.StatusOK, gin.H{"message": "Push without branch head, skipping"})
		return
	}

	number, err := h.pushes.ResolvePush(c.Request.Context(), project, event.Ref, event.CommitSHA)
	if errors.HasCode(err, errors.ErrCodeAnalysisLocked) {
		c.JSON(http.StatusAccepted, gin.H{"message": "Push is already being processed"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if number == 0 {
		c.JSON(http.StatusOK, gin.H{
			"message": "No open pull request for pushed commit, skipping",
			"branch":  event.Ref,
		})
		return
	}

	h.submit(c, orchestrator.Request{
		Project:      project,
		PRNumber:     number,
		CommitHash:   event.CommitSHA,
		SourceBranch: event.Ref,
		Author:       event.Sender,
	})
}

func (h *WebhookHandler) submit(c *gin.Context, req orchestrator.Request) {
	err := h.queue.Submit(req)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"message":   "Analysis queued",
			"pr_number": req.PRNumber,
			"commit":    req.CommitHash,
		})
	case stderrors.Is(err, orchestrator.ErrAlreadyQueued):
		c.JSON(http.StatusAccepted, gin.H{
			"message":   "Analysis of this revision is already queued",
			"pr_number": req.PRNumber,
		})
	default:
		h.log.Warn("Failed to queue analysis", zap.Uint(logger.FieldProjectID, req.Project.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    errors.ErrCodeRateLimited,
			"message": err.Error(),
		})
	}
}
