// Package registry keeps the last full client list loaded from the store.
//
// The snapshot is replaced as a whole after every reload and never patched in
// place, so readers always see one complete list.
package registry

import (
	"sync/atomic"

	"crm-clients/models"
	"crm-clients/monitoring"
)

type Registry struct {
	snapshot atomic.Pointer[[]models.Client]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := []models.Client{}
	r.snapshot.Store(&empty)
	return r
}

// Replace swaps in a copy of clients.
func (r *Registry) Replace(clients []models.Client) {
	next := make([]models.Client, len(clients))
	copy(next, clients)
	r.snapshot.Store(&next)
	monitoring.RegistryClients.Set(float64(len(next)))
}

// Snapshot returns the current list. Callers must not modify it.
func (r *Registry) Snapshot() []models.Client {
	return *r.snapshot.Load()
}

func (r *Registry) Len() int {
	return len(r.Snapshot())
}

func (r *Registry) Find(id uint) (models.Client, bool) {
	for _, c := range r.Snapshot() {
		if c.ID == id {
			return c, true
		}
	}
	return models.Client{}, false
}
