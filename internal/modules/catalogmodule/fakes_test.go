package catalogmodule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/types"
	"github.com/mantonx/soundcrowd/internal/utils"
)

// fakeLocal returns fixed items. A non-nil gate holds Scan until closed.
type fakeLocal struct {
	items []types.MediaItem
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (l *fakeLocal) Scan(ctx context.Context) ([]types.MediaItem, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.items, l.err
}

// call is one plugin invocation waiting for a test to answer it.
type call struct {
	method   string
	category string
	arg      string
	page     int
	metadata pluginmodule.Object
	cb       pluginmodule.Callback
}

// scriptedPlugin hands every async call to the test through calls.
type scriptedPlugin struct {
	name       string
	categories []string
	calls      chan call
}

func newScriptedPlugin(name string, categories ...string) *scriptedPlugin {
	return &scriptedPlugin{name: name, categories: categories, calls: make(chan call, 16)}
}

func (p *scriptedPlugin) Name() string { return p.name }
func (p *scriptedPlugin) MediaCategories() []string { return p.categories }
func (p *scriptedPlugin) GetMediaItems(category string, cb pluginmodule.Callback) {
	p.calls <- call{method: "items", category: category, cb: cb}
}
func (p *scriptedPlugin) GetSubcategoryItems(category, subcategory string, cb pluginmodule.Callback) {
	p.calls <- call{method: "subcategory", category: category, arg: subcategory, cb: cb}
}
func (p *scriptedPlugin) SearchMediaItems(category, query string, page int, cb pluginmodule.Callback) {
	p.calls <- call{method: "search", category: category, arg: query, page: page, cb: cb}
}
func (p *scriptedPlugin) GetMediaURL(metadata pluginmodule.Object, cb pluginmodule.Callback) {
	p.calls <- call{method: "url", metadata: metadata, cb: cb}
}
func (p *scriptedPlugin) Preferences() []pluginmodule.Preference { return nil }
func (p *scriptedPlugin) Icon() []byte { return nil }
func (p *scriptedPlugin) Callbacks() map[string]pluginmodule.RedirectHandler {
	return nil
}

func (p *scriptedPlugin) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-p.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("plugin was not called")
		return call{}
	}
}

func (p *scriptedPlugin) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-p.calls:
		t.Fatalf("unexpected plugin call %s(%s)", c.method, c.category)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakePlugins struct {
	plugins []pluginmodule.Plugin
}

func (f *fakePlugins) List() []pluginmodule.Plugin { return f.plugins }

func (f *fakePlugins) OwnerOf(category string) (pluginmodule.Plugin, bool) {
	for _, p := range f.plugins {
		for _, c := range p.MediaCategories() {
			if c == category {
				return p, true
			}
		}
	}
	return nil, false
}

type memStore struct {
	mu        sync.Mutex
	items     map[string]types.MediaItem
	cues      map[string][]types.CuePoint
	positions map[string]int64
	queries   []string
	err       error
	gate      chan struct{} // holds GetMediaItemsWithCuePoints until closed
}

func newMemStore() *memStore {
	return &memStore{
		items:     make(map[string]types.MediaItem),
		cues:      make(map[string][]types.CuePoint),
		positions: make(map[string]int64),
	}
}

func (s *memStore) GetMediaItemsWithCuePoints(ctx context.Context) ([]types.MediaItem, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []types.MediaItem
	for id, cues := range s.cues {
		if len(cues) == 0 {
			continue
		}
		out = append(out, s.items[id].WithExtra(types.ExtraCuePoints, cues))
	}
	return out, nil
}

func (s *memStore) GetCuePoints(ctx context.Context, mediaID string) ([]types.CuePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cues := append([]types.CuePoint(nil), s.cues[mediaID]...)
	types.SortCuePoints(cues)
	return cues, s.err
}

func (s *memStore) GetLastPosition(ctx context.Context, mediaID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[mediaID], s.err
}

func (s *memStore) UpsertPosition(ctx context.Context, mediaID string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.positions[mediaID] = position
	return nil
}

func (s *memStore) AddCuePoint(ctx context.Context, item types.MediaItem, position int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items[item.ID] = item
	s.cues[item.ID] = append(s.cues[item.ID], types.CuePoint{Position: position, Description: description})
	return nil
}

func (s *memStore) DeleteCuePoint(ctx context.Context, mediaID string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cues[mediaID][:0]
	for _, c := range s.cues[mediaID] {
		if c.Position != position {
			kept = append(kept, c)
		}
	}
	s.cues[mediaID] = kept
	return s.err
}

func (s *memStore) SetCuePointDescription(ctx context.Context, mediaID string, position int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.cues[mediaID] {
		if c.Position == position {
			s.cues[mediaID][i].Description = description
		}
	}
	return s.err
}

func (s *memStore) AddSearchQuery(ctx context.Context, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.err
}

func (s *memStore) recordedQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) PublishAsync(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	catalog   *Catalog
	local     *fakeLocal
	plugin    *scriptedPlugin
	store     *memStore
	publisher *recordingPublisher
	executor  *utils.Executor
}

func newFixture(t *testing.T, items ...types.MediaItem) *fixture {
	t.Helper()
	executor := utils.NewExecutor(hclog.NewNullLogger())
	t.Cleanup(executor.Stop)

	f := &fixture{
		local:     &fakeLocal{items: items},
		plugin:    newScriptedPlugin("Radio", "tracks", "genres"),
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		executor:  executor,
	}
	f.catalog = NewCatalog(Config{
		Local:    f.local,
		Plugins:  &fakePlugins{plugins: []pluginmodule.Plugin{f.plugin}},
		Store:    f.store,
		Executor: executor,
		Events:   f.publisher,
	}, hclog.NewNullLogger())
	t.Cleanup(f.catalog.Close)
	return f
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return Result{}
	}
}

func track(id, title, artist, album string, duration int64) types.MediaItem {
	return types.MediaItem{
		ID:         id,
		Title:      title,
		Artist:     artist,
		Album:      album,
		DurationMs: duration,
		SourceURI:  "file:///music/" + id + ".mp3",
		Kind:       types.KindMedia,
	}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
