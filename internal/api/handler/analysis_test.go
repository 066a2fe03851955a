package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/api/middleware"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
)

func newAnalysisRouter(t *testing.T, runner Runner) (*gin.Engine, store.Store) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	h := NewAnalysisHandler(runner, s)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeySubject, "ci-bot")
		c.Next()
	})
	r.POST("/api/v1/analysis", h.Trigger)
	r.GET("/api/v1/projects/:id/analyses", h.ListAnalyses)
	r.GET("/api/v1/analyses/:id", h.GetAnalysis)
	r.GET("/api/v1/locks", h.ListLocks)
	return r, s
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrigger_StreamsEvents(t *testing.T) {
	runner := &fakeRunner{
		events: []aiclient.Event{
			{Type: "progress", Fields: map[string]any{"type": "progress", "message": "reading diff"}},
			{Type: "final", Fields: map[string]any{"type": "final", "outcome": "success"}},
		},
		result: &orchestrator.Result{Outcome: orchestrator.OutcomeSuccess},
	}
	r, s := newAnalysisRouter(t, runner)
	project := store.CreateTestProject(t, s)

	body := fmt.Sprintf(`{"projectId":%d,"pullRequestId":42,"commitHash":"abc","sourceBranchName":"feature","targetBranchName":"main","outputLanguage":"de"}`, project.ID)
	w := doRequest(r, http.MethodPost, "/api/v1/analysis", body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ndjsonContentType, w.Header().Get("Content-Type"))

	var lines []map[string]any
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "reading diff", lines[0]["message"])
	assert.Equal(t, "final", lines[1]["type"])

	assert.Equal(t, project.ID, runner.got.Project.ID)
	assert.Equal(t, 42, runner.got.PRNumber)
	assert.Equal(t, "abc", runner.got.CommitHash)
	assert.Equal(t, "feature", runner.got.SourceBranch)
	assert.Equal(t, "main", runner.got.TargetBranch)
	assert.Equal(t, "de", runner.got.OutputLanguage)
	assert.Empty(t, runner.got.Author, "author comes from the pull request, not the API caller")
}

func TestTrigger_ClientDisconnectDoesNotCancelRun(t *testing.T) {
	runner := &fakeRunner{
		events: []aiclient.Event{{Type: "final", Fields: map[string]any{"type": "final", "outcome": "success"}}},
		result: &orchestrator.Result{Outcome: orchestrator.OutcomeSuccess},
	}
	r, s := newAnalysisRouter(t, runner)
	project := store.CreateTestProject(t, s)

	ctx, disconnect := context.WithCancel(context.Background())
	defer disconnect()
	runner.onRun = disconnect

	body := fmt.Sprintf(`{"projectId":%d,"pullRequestId":42}`, project.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Error(t, ctx.Err())
	assert.NoError(t, runner.ctxErr, "analysis keeps running after the client left")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrigger_Rejections(t *testing.T) {
	runner := &fakeRunner{result: &orchestrator.Result{Outcome: orchestrator.OutcomeSuccess}}
	r, _ := newAnalysisRouter(t, runner)

	w := doRequest(r, http.MethodPost, "/api/v1/analysis", `{"projectId":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/analysis", `{"projectId":999,"pullRequestId":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Nil(t, runner.got.Project)
}

func TestListAnalyses(t *testing.T) {
	r, s := newAnalysisRouter(t, &fakeRunner{})
	project := store.CreateTestProject(t, s)
	store.CreateTestAnalysis(t, s, project.ID, "c1", 42, nil)
	store.CreateTestAnalysis(t, s, project.ID, "c2", 42, nil, func(a *model.CodeAnalysis) { a.PRVersion = 2 })
	store.CreateTestAnalysis(t, s, project.ID, "c3", 7, nil)

	var page struct {
		Items  []model.CodeAnalysis `json:"items"`
		Total  int64                `json:"total"`
		Limit  int                  `json:"limit"`
		Offset int                  `json:"offset"`
	}

	w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d/analyses", project.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 20, page.Limit)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d/analyses?pr=42&limit=1", project.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 1)

	w = doRequest(r, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d/analyses?pr=abc", project.ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/projects/zero/analyses", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAnalysis(t *testing.T) {
	r, s := newAnalysisRouter(t, &fakeRunner{})
	project := store.CreateTestProject(t, s)
	a := store.CreateTestAnalysis(t, s, project.ID, "c1", 42, nil)

	w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/v1/analyses/%d", a.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.CodeAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "c1", got.CommitHash)

	w = doRequest(r, http.MethodGet, "/api/v1/analyses/9999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListLocks(t *testing.T) {
	r, s := newAnalysisRouter(t, &fakeRunner{})
	now := time.Now().UTC()

	ok, err := s.Lock().TryAcquire(t.Context(), &model.AnalysisLock{
		LockKey:         "PR_ANALYSIS:1:feature:pr=42",
		ProjectID:       1,
		Branch:          "feature",
		LockType:        model.LockTypePRAnalysis,
		OwnerInstanceID: "node-a",
		ExpiresAt:       now.Add(time.Hour),
	}, now)
	require.NoError(t, err)
	require.True(t, ok)

	w := doRequest(r, http.MethodGet, "/api/v1/locks", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []model.AnalysisLock `json:"items"`
		Total int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "node-a", body.Items[0].OwnerInstanceID)
}
