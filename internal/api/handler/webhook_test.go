package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	apperrors "github.com/rostilos/CodeCrow-sub008/pkg/errors"
)

type webhookFixture struct {
	router  *gin.Engine
	vcs     *fakeProvider
	queue   *fakeQueue
	pushes  *fakePushes
	project *model.Project
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	f := &webhookFixture{
		vcs:    &fakeProvider{},
		queue:  &fakeQueue{},
		pushes: &fakePushes{},
	}
	f.project = store.CreateTestProject(t, s, func(p *model.Project) { p.Repo = "api" })

	h := NewWebhookHandler(fakeProviders{"github": f.vcs}, map[string]string{"github": "s3cret"}, s.Project(), f.pushes, f.queue)
	f.router = gin.New()
	f.router.POST("/api/v1/webhooks/:provider", h.HandleWebhook)
	return f
}

func (f *webhookFixture) post(t *testing.T, providerName string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+providerName, strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func prEvent(action string) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		Type:       provider.EventTypePullRequest,
		Provider:   "github",
		Owner:      "acme",
		Repo:       "api",
		Ref:        "feature",
		BaseRef:    "main",
		CommitSHA:  "abc",
		PRNumber:   7,
		PREntityID: 900,
		Action:     action,
		Sender:     "dev",
		PRTitle:    "Add cache",
	}
}

func TestHandleWebhook_PullRequestQueued(t *testing.T) {
	f := newWebhookFixture(t)
	f.vcs.event = prEvent("synchronize")

	w, body := f.post(t, "github")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "Analysis queued", body["message"])
	assert.Equal(t, "s3cret", f.vcs.seen)

	require.Len(t, f.queue.reqs, 1)
	got := f.queue.reqs[0]
	assert.Equal(t, f.project.ID, got.Project.ID)
	assert.Equal(t, 7, got.PRNumber)
	assert.Equal(t, int64(900), got.PREntityID)
	assert.Equal(t, "abc", got.CommitHash)
	assert.Equal(t, "feature", got.SourceBranch)
	assert.Equal(t, "main", got.TargetBranch)
	assert.Equal(t, "Add cache", got.Title)
}

func TestHandleWebhook_SkippedActions(t *testing.T) {
	f := newWebhookFixture(t)
	f.vcs.event = prEvent("closed")

	w, _ := f.post(t, "github")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.queue.reqs)
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	f := newWebhookFixture(t)

	w, body := f.post(t, "bitbucket")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeVCSNotFound), body["code"])
}

func TestHandleWebhook_ParseFailures(t *testing.T) {
	f := newWebhookFixture(t)

	f.vcs.err = errors.New("invalid webhook signature")
	w, body := f.post(t, "github")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeVCSWebhook), body["code"])

	f.vcs.err = provider.Unsupported("github", "ping")
	w, _ = f.post(t, "github")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.queue.reqs)
}

func TestHandleWebhook_UnconfiguredRepository(t *testing.T) {
	f := newWebhookFixture(t)
	ev := prEvent("opened")
	ev.Repo = "other"
	f.vcs.event = ev

	w, _ := f.post(t, "github")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.queue.reqs)
}

func TestHandleWebhook_QueueErrors(t *testing.T) {
	f := newWebhookFixture(t)
	f.vcs.event = prEvent("opened")

	f.queue.err = orchestrator.ErrAlreadyQueued
	w, _ := f.post(t, "github")
	assert.Equal(t, http.StatusAccepted, w.Code)

	f.queue.err = orchestrator.ErrQueueFull
	w, _ = f.post(t, "github")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleWebhook_Push(t *testing.T) {
	pushEvent := &provider.WebhookEvent{
		Type:      provider.EventTypePush,
		Owner:     "acme",
		Repo:      "api",
		Ref:       "feature",
		CommitSHA: "abc",
		Sender:    "dev",
	}

	t.Run("resolved", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.vcs.event = pushEvent
		f.pushes.number = 12

		w, _ := f.post(t, "github")

		assert.Equal(t, http.StatusAccepted, w.Code)
		require.Len(t, f.queue.reqs, 1)
		assert.Equal(t, 12, f.queue.reqs[0].PRNumber)
		assert.Equal(t, "abc", f.queue.reqs[0].CommitHash)
		assert.Equal(t, "feature", f.queue.reqs[0].SourceBranch)
	})

	t.Run("no pull request", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.vcs.event = pushEvent

		w, _ := f.post(t, "github")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, f.pushes.calls)
		assert.Empty(t, f.queue.reqs)
	})

	t.Run("locked", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.vcs.event = pushEvent
		f.pushes.err = apperrors.ErrLocked("BRANCH_ANALYSIS:1:feature:c=abc")

		w, _ := f.post(t, "github")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Empty(t, f.queue.reqs)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.vcs.event = pushEvent
		f.pushes.err = apperrors.Wrap(apperrors.ErrCodeVCSRequest, "failed to find pull request for commit", errors.New("boom"))

		w, _ := f.post(t, "github")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
