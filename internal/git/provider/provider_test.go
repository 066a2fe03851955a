package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ====================
// Tests for ShouldProcessPREvent
// ====================

func TestShouldProcessPREvent(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		expected bool
	}{
		{
			name:     "opened action",
			action:   PREventActionOpened,
			expected: true,
		},
		{
			name:     "synchronize action",
			action:   PREventActionSynchronize,
			expected: true,
		},
		{
			name:     "reopened action",
			action:   PREventActionReopened,
			expected: true,
		},
		{
			name:     "open (lowercase)",
			action:   "open",
			expected: true,
		},
		{
			name:     "update",
			action:   "update",
			expected: true,
		},
		{
			name:     "reopen",
			action:   "reopen",
			expected: true,
		},
		{
			name:     "OPEN (uppercase)",
			action:   "OPEN",
			expected: true,
		},
		{
			name:     "closed action",
			action:   "closed",
			expected: false,
		},
		{
			name:     "merged action",
			action:   "merged",
			expected: false,
		},
		{
			name:     "labeled action",
			action:   "labeled",
			expected: false,
		},
		{
			name:     "empty action",
			action:   "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ShouldProcessPREvent(tt.action)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// ====================
// Tests for ProviderError
// ====================

func TestProviderError(t *testing.T) {
	t.Run("error without wrapped error", func(t *testing.T) {
		err := &ProviderError{
			Provider: "github",
			Message:  "test error",
		}
		assert.Equal(t, "[github] test error", err.Error())
	})

	t.Run("error with wrapped error", func(t *testing.T) {
		wrappedErr := errors.New("wrapped error")
		err := &ProviderError{
			Provider: "gitlab",
			Message:  "test error",
			Err:      wrappedErr,
		}
		assert.Equal(t, "[gitlab] test error: wrapped error", err.Error())
		assert.Equal(t, wrappedErr, err.Unwrap())
	})

	t.Run("unsupported wraps sentinel", func(t *testing.T) {
		err := Unsupported("gitea", "post comment reply")
		assert.True(t, errors.Is(err, ErrUnsupported))
		assert.Contains(t, err.Error(), "[gitea] post comment reply")
	})
}

// ====================
// Tests for Register and Create
// ====================

// mockProvider embeds the interface so only the methods a test needs exist
type mockProvider struct {
	Provider
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func TestRegisterAndCreate(t *testing.T) {
	t.Run("register and create provider", func(t *testing.T) {
		Register("test-provider", func(opts *ProviderOptions) (Provider, error) {
			return &mockProvider{name: "test"}, nil
		})

		p, err := Create("test-provider", nil)
		require.NoError(t, err)
		assert.Equal(t, "test", p.Name())
		assert.Contains(t, Names(), "test-provider")
	})

	t.Run("create non-existent provider", func(t *testing.T) {
		_, err := Create("nonexistent", &ProviderOptions{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "provider not registered")
	})

	t.Run("factory returns error", func(t *testing.T) {
		Register("error-provider", func(opts *ProviderOptions) (Provider, error) {
			return nil, errors.New("factory error")
		})

		_, err := Create("error-provider", &ProviderOptions{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "factory error")
	})
}

func TestNewHTTPClient(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	_, err := NewHTTPClient("secret", false).Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)

	_, err = NewHTTPClient("", false).Get(srv.URL)
	require.NoError(t, err)
	assert.Empty(t, auth)
}

type memComments struct {
	comments  []*Comment
	deleted   []int64
	failOnDel int64
}

func (m *memComments) ListComments(_ context.Context, _, _ string, _ int) ([]*Comment, error) {
	return m.comments, nil
}

func (m *memComments) DeleteComment(_ context.Context, _, _ string, _ int, id int64) error {
	if id == m.failOnDel {
		return errors.New("forbidden")
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func TestDeleteCommentsContaining(t *testing.T) {
	cs := &memComments{comments: []*Comment{
		{ID: 1, Body: "<!-- m -->\nold summary"},
		{ID: 2, Body: "human comment"},
		{ID: 3, Body: "another <!-- m -->"},
	}}

	n, err := DeleteCommentsContaining(context.Background(), cs, "o", "r", 1, "<!-- m -->")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, cs.deleted)

	n, err = DeleteCommentsContaining(context.Background(), cs, "o", "r", 1, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	cs = &memComments{comments: cs.comments, failOnDel: 3}
	n, err = DeleteCommentsContaining(context.Background(), cs, "o", "r", 1, "<!-- m -->")
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
