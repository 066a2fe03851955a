// Package prurl resolves pull/merge request web URLs to provider, owner,
// repository and number.
package prurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// PRInfo contains parsed information from a PR URL
type PRInfo struct {
	// Provider is the registered provider name (github, gitlab, gitea)
	Provider string

	// Host is the lowercased host, e.g. github.com or git.example.com
	Host string

	Owner  string
	Repo   string
	Number int

	OriginalURL string
}

var (
	githubPath    = regexp.MustCompile(`^/([^/]+)/([^/]+)/pull/(\d+)`)
	giteaPath     = regexp.MustCompile(`^/([^/]+)/([^/]+)/pulls/(\d+)`)
	gitlabPath    = regexp.MustCompile(`^/(.+?)/-/merge_requests/(\d+)`)
	gitlabOldPath = regexp.MustCompile(`^/(.+?)/merge_requests/(\d+)`)
)

// Parser parses PR URLs from different providers
type Parser struct {
	hosts map[string]string
}

// NewParser creates a new PR URL parser
func NewParser() *Parser {
	return &Parser{hosts: make(map[string]string)}
}

// RegisterHost maps a self-hosted host to a provider name
func (p *Parser) RegisterHost(host, provider string) {
	p.hosts[strings.ToLower(host)] = provider
}

// RegisterBaseURL maps the host of a configured provider base URL. Empty
// URLs and the public SaaS hosts are ignored.
func (p *Parser) RegisterBaseURL(provider, baseURL string) {
	if baseURL == "" {
		return
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return
	}
	host := strings.ToLower(u.Host)
	switch host {
	case "github.com", "gitlab.com", "gitea.com":
		return
	}
	p.RegisterHost(host, provider)
}

// Parse parses a PR URL. Supported forms:
//   - https://github.com/owner/repo/pull/123
//   - https://gitlab.com/group/sub/repo/-/merge_requests/123
//   - https://gitea.com/owner/repo/pulls/123
func (p *Parser) Parse(prURL string) (*PRInfo, error) {
	prURL = strings.TrimSpace(prURL)
	if prURL == "" {
		return nil, fmt.Errorf("empty PR URL")
	}

	u, err := url.Parse(prURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return nil, fmt.Errorf("missing host in URL")
	}

	provider := p.detectProvider(host, u.Path)

	var info *PRInfo
	switch provider {
	case "github":
		info, err = parseOwnerRepo(githubPath, u.Path)
	case "gitea":
		info, err = parseOwnerRepo(giteaPath, u.Path)
	case "gitlab":
		info, err = parseGitLab(u.Path)
	default:
		return nil, fmt.Errorf("unsupported provider for host: %s", host)
	}
	if err != nil {
		return nil, err
	}

	info.Provider = provider
	info.Host = host
	info.OriginalURL = prURL
	return info, nil
}

// detectProvider checks registered hosts, then well-known host names, then
// path shapes
func (p *Parser) detectProvider(host, path string) string {
	if provider, ok := p.hosts[host]; ok {
		return provider
	}

	switch {
	case strings.Contains(host, "github"):
		return "github"
	case strings.Contains(host, "gitlab"):
		return "gitlab"
	case strings.Contains(host, "gitea"):
		return "gitea"
	}

	switch {
	case strings.Contains(path, "/pull/"):
		return "github"
	case strings.Contains(path, "/pulls/"):
		return "gitea"
	case strings.Contains(path, "/merge_requests/"):
		return "gitlab"
	}
	return ""
}

func parseOwnerRepo(pattern *regexp.Regexp, path string) (*PRInfo, error) {
	m := pattern.FindStringSubmatch(path)
	if len(m) != 4 {
		return nil, fmt.Errorf("invalid PR URL path: %s", path)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid PR number: %s", m[3])
	}
	return &PRInfo{Owner: m[1], Repo: m[2], Number: n}, nil
}

// parseGitLab keeps nested groups in Owner; the last segment is the repo
func parseGitLab(path string) (*PRInfo, error) {
	m := gitlabPath.FindStringSubmatch(path)
	if len(m) != 3 {
		m = gitlabOldPath.FindStringSubmatch(path)
		if len(m) != 3 {
			return nil, fmt.Errorf("invalid GitLab MR URL path: %s", path)
		}
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid MR number: %s", m[2])
	}

	idx := strings.LastIndex(m[1], "/")
	if idx <= 0 {
		return nil, fmt.Errorf("invalid GitLab project path: %s", m[1])
	}
	return &PRInfo{Owner: m[1][:idx], Repo: m[1][idx+1:], Number: n}, nil
}

// String returns a human-readable string representation
func (info *PRInfo) String() string {
	return fmt.Sprintf("%s/%s#%d (%s)", info.Owner, info.Repo, info.Number, info.Provider)
}
