// Package registry implements ClientRegistry: the in-memory client set
// mirrored to TaskStore. Equality is by name only. Writes
// only ever happen from the Dispatcher's single-threaded loop, so reads
// from Scheduler/Executor goroutines are safe under the registry's own
// mutex without a broader lock.
package registry

import (
	"context"
	"sync"

	"github.com/EliseyGodX/SchedulerGodX/v1/store"
)

// Client is the in-memory mirror of a store.Client row.
type Client struct {
	Name          string
	EnableOverdue bool
}

// Store is the subset of store.Store ClientRegistry mirrors writes to.
type Store interface {
	AddClient(ctx context.Context, c store.Client) error
	GetClients(ctx context.Context) ([]store.Client, error)
}

// Registry is the in-memory ClientRegistry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	store   Store
}

// New constructs an empty registry backed by s.
func New(s Store) *Registry {
	return &Registry{clients: make(map[string]Client), store: s}
}

// Load populates the registry from TaskStore.GetClients:
// "On startup, populated from TaskStore.get_clients()".
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.store.GetClients(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.clients[row.Name] = Client{Name: row.Name, EnableOverdue: row.EnableOverdue}
	}
	return nil
}

// Contains reports whether name is a registered client.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// Get returns the registered client by name, if any.
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Append registers (or idempotently re-registers) a client, mirroring the
// write to TaskStore. Re-registration under an existing name is an upsert
// (a decided open question), matching the original's
// SQLAlchemy session.merge semantics in DB.add_client.
func (r *Registry) Append(ctx context.Context, c Client) error {
	if err := r.store.AddClient(ctx, store.Client{Name: c.Name, EnableOverdue: c.EnableOverdue}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name] = c
	return nil
}
