package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFactoryIDs(t *testing.T) {
	require.Equal(t, []string{"claude", "gemini", "groq", "nvidia", "openai"}, FactoryIDs())
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(map[string]string{"groq": "k1", "claude": "k2"})

	byID := make(map[string]bool)
	for _, info := range r.List() {
		byID[info.ID] = info.Configured
	}
	require.True(t, byID["groq"])
	require.True(t, byID["claude"])
	require.False(t, byID["openai"])
	require.False(t, byID["gemini"])
	require.False(t, byID["nvidia"])
}

func TestRegistryProviderNotConfigured(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Provider("groq")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = r.Provider("no-such")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotConfigured)
}

func TestRegistryHasConfigured(t *testing.T) {
	require.False(t, NewRegistry(nil).HasConfigured())
	require.True(t, NewRegistry(map[string]string{"openai": "k"}).HasConfigured())
}

func TestModelsFallbackWhenUnconfigured(t *testing.T) {
	r := NewRegistry(nil)
	models, err := r.Models(context.Background(), "claude")
	require.NoError(t, err)
	require.NotEmpty(t, models)
	require.Equal(t, "claude-sonnet-4-5", models[0].ID)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(ErrTimeout))
	require.True(t, IsRetryable(context.DeadlineExceeded))
	require.True(t, IsRetryable(&ProviderError{Provider: "groq", Status: 503}))
	require.False(t, IsRetryable(&ProviderError{Provider: "groq", Status: 401}))
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(ErrNotConfigured))
}

func TestSplitThinking(t *testing.T) {
	thinking, rest := splitThinking("<think>step one</think>\nanswer")
	require.Equal(t, "step one", thinking)
	require.Equal(t, "answer", rest)

	thinking, rest = splitThinking("plain answer")
	require.Empty(t, thinking)
	require.Equal(t, "plain answer", rest)

	// Unclosed tag passes through untouched.
	thinking, rest = splitThinking("<think>never closed")
	require.Empty(t, thinking)
	require.Equal(t, "<think>never closed", rest)
}

func TestLRUCacheExpiry(t *testing.T) {
	c := newLRUCache[string, int](2, 20*time.Millisecond)
	c.set("a", 1)

	got, ok := c.get("a")
	require.True(t, ok)
	require.Equal(t, 1, got)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get("a")
	require.False(t, ok)
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache[string, int](2, time.Minute)
	c.set("a", 1)
	c.set("b", 2)
	c.get("a") // a is now most recent
	c.set("c", 3)

	_, ok := c.get("b")
	require.False(t, ok)
	_, ok = c.get("a")
	require.True(t, ok)
	_, ok = c.get("c")
	require.True(t, ok)
}

func TestPrefixedPrompt(t *testing.T) {
	req := &Request{Prompt: "question"}
	require.Equal(t, "question", prefixedPrompt(req))

	req.ContextPrefix = "[Previous conversation summary: topics]\n\n"
	require.Equal(t, "[Previous conversation summary: topics]\n\nquestion", prefixedPrompt(req))
}
