package pluginmodule

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Registry holds the plugins that bridged successfully, keyed by name.
type Registry struct {
	discoverer Discoverer
	bridger    Bridger
	prefix     string
	logger     hclog.Logger

	once sync.Once

	mu       sync.RWMutex
	order    []string
	plugins  map[string]Plugin
	closers  []BridgedPlugin
	listener func(Descriptor)
}

// NewRegistry creates an empty registry. Nothing is discovered until Init.
func NewRegistry(discoverer Discoverer, bridger Bridger, prefix string, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		discoverer: discoverer,
		bridger:    bridger,
		prefix:     prefix,
		logger:     logger,
		plugins:    make(map[string]Plugin),
	}
}

// OnPluginLoaded sets a function called for every registered plugin.
// It must be set before Init.
func (r *Registry) OnPluginLoaded(fn func(Descriptor)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = fn
}

// Init discovers and bridges plugins. Only the first call does any work;
// concurrent callers block until it has finished.
func (r *Registry) Init(ctx context.Context) {
	r.once.Do(func() {
		r.load(ctx)
	})
}

func (r *Registry) load(ctx context.Context) {
	handles := r.discoverer.Discover(ctx, r.prefix)

	// Bridge in parallel, register in discovery order
	bridged := make([]BridgedPlugin, len(handles))
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h ModuleHandle) {
			defer wg.Done()
			p, err := r.bridger.Bridge(ctx, h)
			if err != nil {
				r.logger.Error("failed to bridge plugin", "plugin_id", h.ID, "error", err)
				return
			}
			bridged[i] = p
		}(i, h)
	}
	wg.Wait()

	r.mu.Lock()
	listener := r.listener
	loaded := make([]Descriptor, 0, len(bridged))
	for _, p := range bridged {
		if p == nil {
			continue
		}
		name := p.Name()
		if _, exists := r.plugins[name]; exists {
			r.logger.Warn("duplicate plugin name, keeping first", "name", name, "plugin_id", p.Descriptor().ID)
			_ = p.Close()
			continue
		}
		r.plugins[name] = p
		r.order = append(r.order, name)
		r.closers = append(r.closers, p)
		loaded = append(loaded, p.Descriptor())
	}
	r.mu.Unlock()

	r.logger.Info("plugin registry initialized", "discovered", len(handles), "registered", len(loaded))
	if listener != nil {
		for _, d := range loaded {
			listener(d)
		}
	}
}

// Plugins returns the registered plugins keyed by name.
func (r *Registry) Plugins() map[string]Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Plugin, len(r.plugins))
	for name, p := range r.plugins {
		out[name] = p
	}
	return out
}

// List returns the registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name])
	}
	return out
}

// Get looks up a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Descriptors returns the descriptors of registered plugins in registration order.
func (r *Registry) Descriptors() []Descriptor {
	plugins := r.List()
	out := make([]Descriptor, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, DescribePlugin(p))
	}
	return out
}

// OwnerOf returns the first registered plugin declaring category.
func (r *Registry) OwnerOf(category string) (Plugin, bool) {
	for _, p := range r.List() {
		for _, c := range p.MediaCategories() {
			if c == category {
				return p, true
			}
		}
	}
	return nil, false
}

// HandleRedirect hands the query of an external redirect to the first plugin
// that claimed host. Patterns may use path.Match wildcards.
func (r *Registry) HandleRedirect(host, query string) bool {
	host = strings.ToLower(host)
	for _, p := range r.List() {
		handlers := p.Callbacks()
		patterns := make([]string, 0, len(handlers))
		for pattern := range handlers {
			patterns = append(patterns, pattern)
		}
		sort.Strings(patterns)

		for _, pattern := range patterns {
			if !hostMatches(strings.ToLower(pattern), host) {
				continue
			}
			r.logger.Info("dispatching redirect", "plugin", p.Name(), "host", host)
			handlers[pattern](query)
			return true
		}
	}
	r.logger.Warn("no plugin claims redirect host", "host", host)
	return false
}

func hostMatches(pattern, host string) bool {
	if pattern == host {
		return true
	}
	ok, err := path.Match(pattern, host)
	return err == nil && ok
}

// Shutdown closes every bridged plugin.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	for _, p := range closers {
		if err := p.Close(); err != nil {
			r.logger.Warn("failed to close plugin", "name", p.Name(), "error", err)
		}
	}
}

// DescribePlugin returns the descriptor of p, building one from the contract
// methods when p is not a bridged plugin.
func DescribePlugin(p Plugin) Descriptor {
	if bp, ok := p.(BridgedPlugin); ok {
		return bp.Descriptor()
	}
	redirects := make([]string, 0)
	for host := range p.Callbacks() {
		redirects = append(redirects, host)
	}
	sort.Strings(redirects)
	return Descriptor{
		Name:        p.Name(),
		Categories:  p.MediaCategories(),
		Preferences: p.Preferences(),
		Icon:        p.Icon(),
		Redirects:   redirects,
	}
}
