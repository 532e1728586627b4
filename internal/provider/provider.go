package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"zeke-gateway/internal/models"
)

// Provider identifies one upstream backend. The set is closed; Resolve maps
// every model name onto exactly one of these.
type Provider string

const (
	Local   Provider = "local"
	OpenAI  Provider = "openai"
	Claude  Provider = "claude"
	Google  Provider = "google"
	Copilot Provider = "copilot"
)

// Parse maps a provider name onto its variant. The second return value is
// false for names outside the closed set.
func Parse(name string) (Provider, bool) {
	switch Provider(name) {
	case Local, OpenAI, Claude, Google, Copilot:
		return Provider(name), true
	}
	return "", false
}

// Error taxonomy sentinels. Adapters wrap these with %w so callers can
// classify failures with errors.Is.
var (
	// ErrNotConfigured marks a provider whose credential is absent. It is
	// raised before any network I/O is attempted, and is distinct from a
	// transport failure. Wrapped as e.g. "OpenAI API key not configured".
	ErrNotConfigured = errors.New("not configured")

	// ErrTransport marks a connect/DNS/IO failure reaching an upstream.
	ErrTransport = errors.New("upstream transport failure")

	// ErrTranslation marks an upstream reply that does not match the
	// expected wire shape. Never retried.
	ErrTranslation = errors.New("upstream response translation failure")

	// ErrUnknownProvider indicates a variant with no registered adapter.
	ErrUnknownProvider = errors.New("provider not registered")
)

// Adapter translates canonical requests to one upstream wire format and
// normalizes the reply back into the canonical response shape.
type Adapter interface {
	Name() Provider
	Models() []models.ModelInfo
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// Registry maps provider variants to their adapters. Registration happens
// once at startup; lookups afterwards are read-only.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Provider]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Provider]Adapter),
	}
}

// Register adds an adapter keyed by its provider variant.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("provider %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Lookup returns the adapter registered for the given variant.
func (r *Registry) Lookup(p Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return a, nil
}

// Models aggregates every registered adapter's catalog, sorted by ID for a
// stable listing.
func (r *Registry) Models() []models.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ModelInfo
	for _, a := range r.adapters {
		out = append(out, a.Models()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
