package syncview

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tmcgame/platform/internal/changefeed"
)

// Registry hands out one shared Adapter per session, so every dashboard
// reading the same session rides one set of change feed subscriptions and
// one fallback poll.
type Registry struct {
	fetcher   Fetcher
	transport changefeed.Transport
	clock     clockwork.Clock
	cfg       Config

	mu       sync.Mutex
	adapters map[uuid.UUID]*Adapter
}

func NewRegistry(fetcher Fetcher, transport changefeed.Transport, clock clockwork.Clock, cfg Config) *Registry {
	return &Registry{
		fetcher:   fetcher,
		transport: transport,
		clock:     clock,
		cfg:       cfg,
		adapters:  make(map[uuid.UUID]*Adapter),
	}
}

// Get returns the adapter for the session, starting one on first use.
func (r *Registry) Get(ctx context.Context, sessionID uuid.UUID) *Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.adapters[sessionID]; ok {
		return adapter
	}
	adapter := NewAdapter(sessionID, r.fetcher, r.transport, r.clock, r.cfg)
	adapter.Start(ctx)
	r.adapters[sessionID] = adapter
	return adapter
}

// Release closes and removes the adapter for one session, e.g. after the
// session finished.
func (r *Registry) Release(sessionID uuid.UUID) {
	r.mu.Lock()
	adapter, ok := r.adapters[sessionID]
	delete(r.adapters, sessionID)
	r.mu.Unlock()
	if ok {
		adapter.Close()
	}
}

// CloseAll tears down every adapter. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	adapters := make([]*Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	r.adapters = make(map[uuid.UUID]*Adapter)
	r.mu.Unlock()

	for _, adapter := range adapters {
		adapter.Close()
	}
}
