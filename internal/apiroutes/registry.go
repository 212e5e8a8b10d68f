// Package apiroutes records the routes a server mounts so they can be
// listed at /api.
package apiroutes

import (
	"sort"
	"sync"
)

// APIRoute describes one mounted route.
type APIRoute struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// Registry is a concurrency-safe list of routes.
type Registry struct {
	mu     sync.RWMutex
	routes []APIRoute
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a route.
func (r *Registry) Register(path, method, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, APIRoute{Path: path, Method: method, Description: description})
}

// Get returns a copy of the routes sorted by path.
func (r *Registry) Get() []APIRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]APIRoute, len(r.routes))
	copy(out, r.routes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
