package loader

import (
	"fmt"

	"github.com/graph-gophers/dataloader"
)

// Registry holds the named loaders for one request, so handlers can retrieve
// a loader without knowing how it was wired. Build a fresh registry per
// inbound request: loaders cache resolved rows for their lifetime, and a
// shared registry would leak authorization-sensitive rows across users.
type Registry struct {
	loaders map[string]*dataloader.Loader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]*dataloader.Loader)}
}

// Register stores a loader under name, replacing any previous registration.
func (r *Registry) Register(name string, dl *dataloader.Loader) {
	r.loaders[name] = dl
}

// Get returns the loader registered under name.
func (r *Registry) Get(name string) (*dataloader.Loader, error) {
	dl, ok := r.loaders[name]
	if !ok {
		return nil, fmt.Errorf("no loader registered under %q", name)
	}
	return dl, nil
}
