// Package provider defines the enrichment provider boundary and the
// rate-limited client used to call providers in batches.
package provider

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrGone is returned by a provider when it positively reports that the
// subject no longer exists (dead domain, deleted profile). The orchestrator
// invalidates the cache entry for that key.
var ErrGone = eris.New("provider: subject no longer exists")

// Query identifies one lead to look up. Queries handed to Client.Fetch must
// carry unique keys; in-batch coalescing happens upstream in the
// orchestrator.
type Query struct {
	Key       identity.Key
	FirstName string
	LastName  string
	Company   string
	Domain    string
}

// Provider is a single external lookup service. Implementations classify
// their failures with resilience.NewTransientError / NewPermanentError so
// the client knows what to retry.
type Provider interface {
	// Name returns the provider identifier used for cache provenance,
	// rate-limit configuration, and precedence ordering.
	Name() string

	// Fetch looks up one lead. The returned payload may be partial; an
	// empty payload with a nil error means the provider had nothing for
	// this lead (a cacheable negative result).
	Fetch(ctx context.Context, q Query) (model.EnrichmentPayload, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Resolve maps an ordered precedence list to providers, failing on any name
// with no registered provider.
func (r *Registry) Resolve(precedence []string) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(precedence))
	for _, name := range precedence {
		p, ok := r.providers[name]
		if !ok {
			return nil, eris.Errorf("provider: %q is not registered", name)
		}
		out = append(out, p)
	}
	return out, nil
}
