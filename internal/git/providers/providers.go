// Package providers imports every provider implementation so their init()
// functions register them, and resolves configured provider instances by name.
package providers

import (
	"fmt"
	"sync"

	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"

	_ "github.com/rostilos/CodeCrow-sub008/internal/git/gitea"
	_ "github.com/rostilos/CodeCrow-sub008/internal/git/github"
	_ "github.com/rostilos/CodeCrow-sub008/internal/git/gitlab"
)

// Set creates providers lazily from per-name options and reuses them, so
// every caller shares one HTTP client per provider.
type Set struct {
	mu        sync.Mutex
	opts      map[string]provider.ProviderOptions
	instances map[string]provider.Provider
}

// NewSet creates a Set. Only names present in opts can be resolved.
func NewSet(opts map[string]provider.ProviderOptions) *Set {
	copied := make(map[string]provider.ProviderOptions, len(opts))
	for name, o := range opts {
		copied[name] = o
	}
	return &Set{opts: copied, instances: make(map[string]provider.Provider)}
}

// Get returns the provider configured under name
func (s *Set) Get(name string) (provider.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.instances[name]; ok {
		return p, nil
	}
	opts, ok := s.opts[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	p, err := provider.Create(name, &opts)
	if err != nil {
		return nil, err
	}
	s.instances[name] = p
	return p, nil
}

// Token returns the access token configured for name
func (s *Set) Token(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts[name].Token
}

// Names returns the configured provider names that are also registered
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, name := range provider.Names() {
		if _, ok := s.opts[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
