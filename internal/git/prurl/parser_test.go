package prurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		provider string
		owner    string
		repo     string
		number   int
	}{
		{"github", "https://github.com/owner/repo/pull/123", "github", "owner", "repo", 123},
		{"github trailing tab", "https://github.com/my-org/my-repo/pull/789/files", "github", "my-org", "my-repo", 789},
		{"gitlab", "https://gitlab.com/owner/repo/-/merge_requests/5", "gitlab", "owner", "repo", 5},
		{"gitlab nested group", "https://gitlab.com/org/team/repo/-/merge_requests/456", "gitlab", "org/team", "repo", 456},
		{"gitlab legacy path", "https://gitlab.example.com/group/repo/merge_requests/9", "gitlab", "group", "repo", 9},
		{"gitea", "https://gitea.com/owner/repo/pulls/12", "gitea", "owner", "repo", 12},
		{"path shape only", "https://code.example.org/a/b/pulls/3", "gitea", "a", "b", 3},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parser.Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, info.Provider)
			assert.Equal(t, tt.owner, info.Owner)
			assert.Equal(t, tt.repo, info.Repo)
			assert.Equal(t, tt.number, info.Number)
			assert.Equal(t, tt.url, info.OriginalURL)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty URL":            "",
		"no host":              "not-a-url",
		"missing PR number":    "https://github.com/owner/repo/pull/",
		"repository URL":       "https://github.com/owner/repo",
		"issue URL":            "https://github.com/owner/repo/issues/123",
		"zero number":          "https://github.com/owner/repo/pull/0",
		"unsupported provider": "https://bitbucket.org/owner/repo/pull-requests/123",
		"gitlab without group": "https://gitlab.com/repo/-/merge_requests/1",
	}

	parser := NewParser()
	for name, u := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parser.Parse(u)
			assert.Error(t, err)
		})
	}
}

func TestRegisterBaseURL(t *testing.T) {
	parser := NewParser()
	parser.RegisterBaseURL("gitlab", "https://git.mycompany.com/")
	parser.RegisterBaseURL("github", "https://github.com")
	parser.RegisterBaseURL("gitea", "")

	info, err := parser.Parse("https://git.mycompany.com/team/project/-/merge_requests/42")
	require.NoError(t, err)
	assert.Equal(t, "gitlab", info.Provider)
	assert.Equal(t, "git.mycompany.com", info.Host)
	assert.Equal(t, "team", info.Owner)

	assert.Len(t, parser.hosts, 1)
}

func TestRegisterHost_OverridesPathShape(t *testing.T) {
	parser := NewParser()
	parser.RegisterHost("Code.Example.com", "github")

	info, err := parser.Parse("https://code.example.com/team/project/pull/42")
	require.NoError(t, err)
	assert.Equal(t, "github", info.Provider)
	assert.Equal(t, "owner/repo#42 (github)", (&PRInfo{Provider: "github", Owner: "owner", Repo: "repo", Number: 42}).String())
}
