package router

import (
	"context"
	"time"

	"zeke-gateway/internal/metrics"
	"zeke-gateway/internal/models"
	"zeke-gateway/internal/provider"
)

// Router dispatches canonical requests: resolve the provider from the model
// name (or explicit override), look up its adapter, call it.
type Router struct {
	registry *provider.Registry
	metrics  *metrics.Metrics
}

// New constructs a router backed by the provided registry.
func New(registry *provider.Registry, m *metrics.Metrics) *Router {
	return &Router{
		registry: registry,
		metrics:  m,
	}
}

// Chat routes a chat completion to the resolved provider. Adapter errors
// are returned unwrapped so their taxonomy classification survives to the
// HTTP layer.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	target := provider.Resolve(req.Model, req.Provider)

	adapter, err := r.registry.Lookup(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := adapter.Chat(ctx, req)
	if r.metrics != nil {
		r.metrics.ObserveUpstream(string(target), err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Models aggregates the catalogs of every registered adapter.
func (r *Router) Models() []models.ModelInfo {
	return r.registry.Models()
}
