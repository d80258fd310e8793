package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Router dispatches a request to a backend chosen by the model identifier's
// provider prefix ("anthropic:claude-sonnet-4-5"). Unprefixed identifiers go
// to the default provider, as do identifiers whose prefix is not registered.
// The prefix is stripped before the backend sees it.
type Router struct {
	backends map[string]Client
	fallback string
}

func NewRouter(defaultProvider string) *Router {
	return &Router{backends: map[string]Client{}, fallback: strings.ToLower(strings.TrimSpace(defaultProvider))}
}

func (r *Router) Register(provider string, client Client) {
	r.backends[strings.ToLower(strings.TrimSpace(provider))] = client
}

func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	provider, model := SplitModel(req.Model)
	client, ok := r.backends[provider]
	if !ok {
		// Not a known prefix: the colon belongs to the model name itself.
		client, ok = r.backends[r.fallback]
		if !ok {
			return "", fmt.Errorf("no backend registered for provider %q", r.fallback)
		}
		model = strings.TrimSpace(req.Model)
	}
	req.Model = model
	return client.Complete(ctx, req)
}

// SplitModel separates an optional "provider:" prefix from a model name.
func SplitModel(id string) (provider, model string) {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, ":"); i > 0 {
		return strings.ToLower(id[:i]), id[i+1:]
	}
	return "", id
}
