// Package providers abstracts the LLM backends. Each backend registers
// itself in init(); the registry builds configured instances from profile
// keys and serves cached model lists.
package providers

import (
	"context"
	"sort"
	"sync"
)

// Model is one selectable model of a provider.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message is one prior conversation turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single completion call. ContextPrefix, when set, is prepended
// to Prompt before the call.
type Request struct {
	Model         string
	System        string
	Prompt        string
	History       []Message
	ContextPrefix string
}

// Reply carries the completion. Thinking aggregates reasoning output and is
// empty for providers without reasoning support.
type Reply struct {
	Thinking string `json:"thinking,omitempty"`
	Content  string `json:"content"`
}

// Provider is one LLM backend.
type Provider interface {
	ID() string
	IsConfigured() bool
	// FetchModels queries the provider's list endpoint. Callers fall back to
	// Fallback() on error.
	FetchModels(ctx context.Context) ([]Model, error)
	// Fallback is the curated static model list.
	Fallback() []Model
	Call(ctx context.Context, req *Request) (*Reply, error)
}

// Streamer is implemented by providers that can deliver token chunks.
// Non-streaming providers degrade to a single chunk at the call site.
type Streamer interface {
	Stream(ctx context.Context, req *Request, sink func(chunk string)) (*Reply, error)
}

// Factory builds a provider instance bound to an API key.
type Factory func(apiKey string) Provider

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a backend available under id. Called from init().
func RegisterFactory(id string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[id] = f
}

// FactoryIDs returns every registered backend id, sorted.
func FactoryIDs() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func factoryFor(id string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[id]
	return f, ok
}

// prefixedPrompt folds the context prefix into the final user prompt.
func prefixedPrompt(req *Request) string {
	if req.ContextPrefix != "" {
		return req.ContextPrefix + req.Prompt
	}
	return req.Prompt
}
