package pluginmodule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
)

type fakeDiscoverer struct {
	handles []ModuleHandle
	calls   atomic.Int32
}

func (d *fakeDiscoverer) Discover(ctx context.Context, prefix string) []ModuleHandle {
	d.calls.Add(1)
	return d.handles
}

// fakePlugin is a BridgedPlugin answering from fixed data.
type fakePlugin struct {
	id         string
	name       string
	categories []string
	redirects  map[string]RedirectHandler
	closed     atomic.Bool
}

func (p *fakePlugin) Name() string { return p.name }
func (p *fakePlugin) MediaCategories() []string { return p.categories }
func (p *fakePlugin) GetMediaItems(category string, cb Callback) {
	cb.OnObjects([]Object{})
}
func (p *fakePlugin) GetSubcategoryItems(category, subcategory string, cb Callback) {
	cb.OnObjects([]Object{})
}
func (p *fakePlugin) SearchMediaItems(category, query string, page int, cb Callback) {
	cb.OnObjects([]Object{})
}
func (p *fakePlugin) GetMediaURL(metadata Object, cb Callback) { cb.OnObject(Object{"url": "x"}) }
func (p *fakePlugin) Preferences() []Preference { return nil }
func (p *fakePlugin) Icon() []byte { return nil }
func (p *fakePlugin) Callbacks() map[string]RedirectHandler { return p.redirects }
func (p *fakePlugin) Close() error {
	p.closed.Store(true)
	return nil
}
func (p *fakePlugin) Descriptor() Descriptor {
	return Descriptor{ID: p.id, Name: p.name, Categories: p.categories}
}

type fakeBridger struct {
	plugins map[string]*fakePlugin // by handle id
	calls   atomic.Int32
}

func (b *fakeBridger) Bridge(ctx context.Context, h ModuleHandle) (BridgedPlugin, error) {
	b.calls.Add(1)
	p, ok := b.plugins[h.ID]
	if !ok {
		return nil, apperrors.BridgeFailure("describe", errors.New("no such plugin")).WithSubject(h.ID)
	}
	return p, nil
}

func newTestRegistry(handles []string, plugins ...*fakePlugin) (*Registry, *fakeDiscoverer, *fakeBridger) {
	d := &fakeDiscoverer{}
	for _, id := range handles {
		d.handles = append(d.handles, ModuleHandle{ID: id})
	}
	b := &fakeBridger{plugins: make(map[string]*fakePlugin)}
	for _, p := range plugins {
		b.plugins[p.id] = p
	}
	return NewRegistry(d, b, "soundcrowd.plugins.", hclog.NewNullLogger()), d, b
}

func TestRegistry_InitRunsOnce(t *testing.T) {
	r, d, b := newTestRegistry([]string{"p.a"}, &fakePlugin{id: "p.a", name: "A"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Init(context.Background())
		}()
	}
	wg.Wait()
	r.Init(context.Background())

	assert.Equal(t, int32(1), d.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Len(t, r.Plugins(), 1)
}

func TestRegistry_FirstRegisteredWins(t *testing.T) {
	first := &fakePlugin{id: "p.first", name: "Same", categories: []string{"tracks"}}
	second := &fakePlugin{id: "p.second", name: "Same", categories: []string{"tracks"}}
	other := &fakePlugin{id: "p.other", name: "Other", categories: []string{"tracks", "radio"}}

	r, _, _ := newTestRegistry([]string{"p.first", "p.second", "p.other"}, first, second, other)
	r.Init(context.Background())

	p, ok := r.Get("Same")
	require.True(t, ok)
	assert.Equal(t, "p.first", p.(BridgedPlugin).Descriptor().ID)
	assert.True(t, second.closed.Load())
	assert.False(t, first.closed.Load())

	names := make([]string, 0)
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Same", "Other"}, names)

	owner, ok := r.OwnerOf("tracks")
	require.True(t, ok)
	assert.Equal(t, "Same", owner.Name())
	owner, ok = r.OwnerOf("radio")
	require.True(t, ok)
	assert.Equal(t, "Other", owner.Name())
	_, ok = r.OwnerOf("podcasts")
	assert.False(t, ok)
}

func TestRegistry_BridgeFailureOmitsModule(t *testing.T) {
	r, _, _ := newTestRegistry([]string{"p.broken", "p.good"}, &fakePlugin{id: "p.good", name: "Good"})

	var loaded []string
	r.OnPluginLoaded(func(d Descriptor) { loaded = append(loaded, d.Name) })
	r.Init(context.Background())

	assert.Len(t, r.Plugins(), 1)
	_, ok := r.Get("Good")
	assert.True(t, ok)
	assert.Equal(t, []string{"Good"}, loaded)
}

func TestRegistry_EmptyDiscovery(t *testing.T) {
	r, _, _ := newTestRegistry(nil)
	r.Init(context.Background())
	assert.Empty(t, r.Plugins())
	assert.Empty(t, r.Descriptors())
}

func TestRegistry_HandleRedirect(t *testing.T) {
	got := make(chan string, 1)
	p := &fakePlugin{id: "p.a", name: "A", redirects: map[string]RedirectHandler{
		"*.example.com": func(q string) { got <- q },
	}}
	r, _, _ := newTestRegistry([]string{"p.a"}, p)
	r.Init(context.Background())

	assert.True(t, r.HandleRedirect("Auth.Example.com", "code=1"))
	assert.Equal(t, "code=1", <-got)
	assert.False(t, r.HandleRedirect("other.host", "code=2"))
}

func TestRegistry_Shutdown(t *testing.T) {
	a := &fakePlugin{id: "p.a", name: "A"}
	b := &fakePlugin{id: "p.b", name: "B"}
	r, _, _ := newTestRegistry([]string{"p.a", "p.b"}, a, b)
	r.Init(context.Background())

	r.Shutdown()
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
}
