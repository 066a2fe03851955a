package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	m.Run()
}

// newTestProvider points an enterprise client at mux; API paths are served
// under /api/v3.
func newTestProvider(t *testing.T, mux *http.ServeMux) *GitHubProvider {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewProvider(&provider.ProviderOptions{Token: "tok", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return p.(*GitHubProvider)
}

func TestNewProvider(t *testing.T) {
	prov, err := NewProvider(&provider.ProviderOptions{Token: "test-token"})
	require.NoError(t, err)
	assert.Equal(t, "github", prov.Name())
	assert.Equal(t, "https://github.com", prov.GetBaseURL())

	created, err := provider.Create("github", &provider.ProviderOptions{BaseURL: "https://ghe.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/", created.GetBaseURL())
}

func TestGetPullRequestDiff(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/api/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, "diff --git a/x b/x\n+added\n")
	})
	p := newTestProvider(t, mux)

	diff, err := p.GetPullRequestDiff(context.Background(), "acme", "api", 7)
	require.NoError(t, err)
	assert.Contains(t, diff, "+added")
}

func TestGetCommitRangeDiff(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/api/compare/aaa...bbb", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "-old\n+new\n")
	})
	p := newTestProvider(t, mux)

	diff, err := p.GetCommitRangeDiff(context.Background(), "acme", "api", "aaa", "bbb")
	require.NoError(t, err)
	assert.Equal(t, "-old\n+new\n", diff)
}

func TestCheckFileExistsInBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/api/contents/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		if strings.HasSuffix(r.URL.Path, "present.go") {
			fmt.Fprint(w, `{"type":"file","name":"present.go","path":"present.go"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	p := newTestProvider(t, mux)

	ok, err := p.CheckFileExistsInBranch(context.Background(), "acme", "api", "main", "present.go")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.CheckFileExistsInBranch(context.Background(), "acme", "api", "main", "missing.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindPullRequestForCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/api/commits/abc/pulls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"number":3,"state":"closed"},{"number":5,"state":"open"}]`)
	})
	p := newTestProvider(t, mux)

	n, err := p.FindPullRequestForCommit(context.Background(), "acme", "api", "abc")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestPostAnalysisResults_ReplacesMarkedComments(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	var posted string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/api/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprintf(w, `[{"id":1,"body":%q},{"id":2,"body":"lgtm"}]`, consts.CommentMarker+"\nold")
		case http.MethodPost:
			var c struct {
				Body string `json:"body"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
			mu.Lock()
			posted = c.Body
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":10}`)
		}
	})
	mux.HandleFunc("/api/v3/repos/acme/api/issues/comments/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		mu.Lock()
		deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/api/v3/repos/acme/api/issues/comments/"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	p := newTestProvider(t, mux)

	analysis := &model.CodeAnalysis{CommitHash: "abc", Comment: "summary text"}
	project := &model.Project{Name: "api", Owner: "acme", Repo: "api"}
	require.NoError(t, p.PostAnalysisResults(context.Background(), analysis, project, 7, 0))

	assert.Equal(t, []string{"1"}, deleted)
	assert.True(t, strings.HasPrefix(posted, consts.CommentMarker))
	assert.Contains(t, posted, "summary text")
}

func TestPostComment_ErrorCarriesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/api/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"Resource not accessible"}`)
	})
	p := newTestProvider(t, mux)

	_, err := p.PostComment(context.Background(), "acme", "api", 7, "hi")
	require.Error(t, err)
	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(event, body, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/github", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-GitHub-Event", event)
	if signature != "" {
		r.Header.Set("X-Hub-Signature-256", signature)
	}
	return r
}

const prPayload = `{
	"action": "synchronize",
	"number": 7,
	"pull_request": {
		"id": 900, "number": 7, "title": "Add cache", "body": "details",
		"head": {"ref": "feature", "sha": "headsha"},
		"base": {"ref": "main", "sha": "basesha"}
	},
	"repository": {"name": "api", "owner": {"login": "acme"}},
	"sender": {"login": "dev"}
}`

func TestParseWebhook_PullRequest(t *testing.T) {
	p := &GitHubProvider{log: logger.Named("test")}

	event, err := p.ParseWebhook(webhookRequest("pull_request", prPayload, sign("s3cret", prPayload)), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, provider.EventTypePullRequest, event.Type)
	assert.Equal(t, "acme", event.Owner)
	assert.Equal(t, "api", event.Repo)
	assert.Equal(t, 7, event.PRNumber)
	assert.Equal(t, int64(900), event.PREntityID)
	assert.Equal(t, "feature", event.Ref)
	assert.Equal(t, "main", event.BaseRef)
	assert.Equal(t, "headsha", event.CommitSHA)
	assert.Equal(t, "synchronize", event.Action)
	assert.Equal(t, "Add cache", event.PRTitle)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	p := &GitHubProvider{log: logger.Named("test")}
	_, err := p.ParseWebhook(webhookRequest("pull_request", prPayload, sign("wrong", prPayload)), "s3cret")
	assert.ErrorContains(t, err, "invalid webhook signature")
}

func TestParseWebhook_Push(t *testing.T) {
	p := &GitHubProvider{log: logger.Named("test")}
	body := `{"ref":"refs/heads/main","before":"b0","after":"a1","repository":{"name":"api","owner":{"login":"acme"}},"sender":{"login":"dev"}}`

	event, err := p.ParseWebhook(webhookRequest("push", body, ""), "")
	require.NoError(t, err)
	assert.Equal(t, provider.EventTypePush, event.Type)
	assert.Equal(t, "main", event.Ref)
	assert.Equal(t, "a1", event.CommitSHA)
}

func TestParseWebhook_UnsupportedEvent(t *testing.T) {
	p := &GitHubProvider{log: logger.Named("test")}
	_, err := p.ParseWebhook(webhookRequest("ping", `{}`, ""), "")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}
