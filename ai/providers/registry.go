package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const modelCacheTTL = 30 * time.Minute

// Info describes one backend for listing endpoints.
type Info struct {
	ID         string `json:"id"`
	Configured bool   `json:"configured"`
}

// Registry holds the provider instances built from configured API keys and
// caches model lists.
type Registry struct {
	providers map[string]Provider
	models    *lruCache[string, []Model]
}

// NewRegistry instantiates every registered backend with its key from keys
// (empty key means unconfigured).
func NewRegistry(keys map[string]string) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		models:    newLRUCache[string, []Model](16, modelCacheTTL),
	}
	for _, id := range FactoryIDs() {
		factory, _ := factoryFor(id)
		r.providers[id] = factory(keys[id])
	}
	return r
}

// Provider returns the backend under id; ErrNotConfigured when it has no key.
func (r *Registry) Provider(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	if !p.IsConfigured() {
		return nil, fmt.Errorf("%s: %w", id, ErrNotConfigured)
	}
	return p, nil
}

// List returns every backend with its configured flag, sorted by id.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.providers))
	for _, id := range FactoryIDs() {
		infos = append(infos, Info{ID: id, Configured: r.providers[id].IsConfigured()})
	}
	return infos
}

// HasConfigured reports whether at least one backend carries a key.
func (r *Registry) HasConfigured() bool {
	for _, p := range r.providers {
		if p.IsConfigured() {
			return true
		}
	}
	return false
}

// Models returns the model list for id: the cached last successful fetch, a
// fresh fetch, or the curated fallback when the provider is unreachable or
// unconfigured.
func (r *Registry) Models(ctx context.Context, id string) ([]Model, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	if !p.IsConfigured() {
		return p.Fallback(), nil
	}
	if cached, ok := r.models.get(id); ok {
		return cached, nil
	}
	models, err := p.FetchModels(ctx)
	if err != nil || len(models) == 0 {
		if err != nil {
			slog.Warn("model list fetch failed, serving fallback",
				slog.String("provider", id), slog.Any("err", err))
		}
		return p.Fallback(), nil
	}
	r.models.set(id, models)
	return models, nil
}

// Call dispatches req to the backend under id.
func (r *Registry) Call(ctx context.Context, id string, req *Request) (*Reply, error) {
	p, err := r.Provider(id)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, req)
}

// Stream dispatches req to the backend under id, delivering chunks to sink.
// Backends without streaming degrade to one chunk carrying the full reply.
func (r *Registry) Stream(ctx context.Context, id string, req *Request, sink func(chunk string)) (*Reply, error) {
	p, err := r.Provider(id)
	if err != nil {
		return nil, err
	}
	if s, ok := p.(Streamer); ok {
		return s.Stream(ctx, req, sink)
	}
	reply, err := p.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if reply.Content != "" {
		sink(reply.Content)
	}
	return reply, nil
}
