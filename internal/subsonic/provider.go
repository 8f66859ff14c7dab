package subsonic

import (
	"sync"

	"github.com/mikey-austin/sonic_utopia/internal/servers"
)

// Provider hands out a Client bound to whichever server is active right now.
// Callers must ask again for every operation instead of holding on to a Client,
// since the active server can change between calls.
type Provider struct {
	registry *servers.Registry
	opts     Options

	mu    sync.Mutex
	bound *Client
}

// NewProvider creates a provider over registry.
func NewProvider(registry *servers.Registry, opts Options) *Provider {
	return &Provider{registry: registry, opts: opts.withDefaults()}
}

// API returns the client for the active binding. The same client is returned
// until the binding generation changes.
func (p *Provider) API() (*Client, error) {
	binding := p.registry.Binding()
	if !binding.Active() {
		return nil, servers.ErrNoActiveServer
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bound != nil && p.bound.generation == binding.Generation {
		return p.bound, nil
	}
	p.bound = NewClient(binding.Connection, binding.Generation, p.opts)
	return p.bound, nil
}

// Generation returns the registry's current binding generation.
func (p *Provider) Generation() uint64 {
	return p.registry.Generation()
}

// Registry returns the underlying registry.
func (p *Provider) Registry() *servers.Registry {
	return p.registry
}
