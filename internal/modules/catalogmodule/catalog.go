// Package catalogmodule aggregates the local library and plugin catalogs into
// one browsable, category-indexed collection.
//
// The Catalog owns the canonical item map and the category index. Requests
// never block on I/O: EnsureLoaded returns a buffered channel that is either
// filled immediately from the index or later by a worker once the local scan
// or plugin call completes.
package catalogmodule

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule/mediaid"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/types"
)

const opEnsureLoaded = "ensure_loaded"

// Catalog is the media catalog aggregator.
type Catalog struct {
	local    LocalSource
	plugins  PluginSource
	store    Store
	executor pluginmodule.Submitter
	events   Publisher
	logger   hclog.Logger
	pageSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	generation  uint64
	epoch       uint64
	items       map[string]types.MediaItem
	categories  map[string][]string
	pending     map[string]*fetch
	rootWaiters []waiter
}

// waiter is one caller of EnsureLoaded waiting for a page of key.
type waiter struct {
	ch   chan Result
	key  string
	opts Options
}

// fetch is an in-flight plugin call shared by every caller of its category.
// epoch is the refresh epoch it was dispatched in.
type fetch struct {
	epoch   uint64
	waiters []waiter
}

// Config holds the catalog's collaborators. Local, Plugins, Store and Events
// are optional.
type Config struct {
	Local    LocalSource
	Plugins  PluginSource
	Store    Store
	Executor pluginmodule.Submitter
	Events   Publisher
	PageSize int
}

// NewCatalog creates an EMPTY catalog.
func NewCatalog(cfg Config, logger hclog.Logger) *Catalog {
	ctx, cancel := context.WithCancel(context.Background())
	return &Catalog{
		local:      cfg.Local,
		plugins:    cfg.Plugins,
		store:      cfg.Store,
		executor:   cfg.Executor,
		events:     cfg.Events,
		logger:     logger.Named("catalog"),
		pageSize:   cfg.PageSize,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateEmpty,
		items:      make(map[string]types.MediaItem),
		categories: make(map[string][]string),
		pending:    make(map[string]*fetch),
	}
}

// Close cancels scans and storage calls started by the catalog.
func (c *Catalog) Close() {
	c.cancel()
}

// State returns the lifecycle state of the root catalog.
func (c *Catalog) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the number of root loads started so far.
func (c *Catalog) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// GetMusic looks up an item by canonical or hierarchy-aware id.
func (c *Catalog) GetMusic(mediaID string) (types.MediaItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[mediaid.ExtractID(mediaID)]
	return item, ok
}

// Refresh reloads the root catalog. It is a no-op while a load is running.
func (c *Catalog) Refresh() <-chan Result {
	return c.EnsureLoaded(mediaid.Root, Options{Refresh: true})
}

// EnsureLoaded delivers a page of the category addressed by path on the
// returned channel, fetching it first when it is not indexed yet. Exactly one
// Result is delivered.
func (c *Catalog) EnsureLoaded(path string, opts Options) <-chan Result {
	w := waiter{ch: make(chan Result, 1), opts: opts}

	segments := mediaid.Hierarchy(path)
	if len(segments) == 0 {
		segments = []string{mediaid.Root}
	}
	w.key = mediaid.Category(segments...)

	switch segments[0] {
	case mediaid.Root:
		if len(segments) != 1 {
			c.reject(w)
			break
		}
		c.ensureRoot(w)
	case mediaid.Artist, mediaid.Album:
		if len(segments) != 2 {
			c.reject(w)
			break
		}
		c.ensureRoot(w)
	case mediaid.Plugins:
		if len(segments) == 1 {
			c.listPlugins(w)
		} else {
			c.ensurePlugin(w)
		}
	case mediaid.Search:
		c.search(w)
	case mediaid.Cues:
		c.loadCues(w)
	default:
		c.reject(w)
	}
	return w.ch
}

func (c *Catalog) reject(w waiter) {
	w.ch <- Result{
		Category: w.key,
		Err:      apperrors.ValidationError(opEnsureLoaded, apperrors.ErrUnknownCategory).WithSubject(w.key),
	}
}

// ensureRoot serves root and the artist/album buckets derived from it.
func (c *Catalog) ensureRoot(w waiter) {
	c.mu.Lock()
	switch {
	case c.state == StateLoading:
		c.rootWaiters = append(c.rootWaiters, w)
		c.mu.Unlock()
		return
	case c.state == StateReady && !w.opts.Refresh:
		res := c.pageLocked(w.key, w.opts)
		c.mu.Unlock()
		w.ch <- res
		return
	}

	if c.state == StateReady {
		c.items = make(map[string]types.MediaItem)
		c.categories = make(map[string][]string)
		c.epoch++
	}
	c.generation++
	gen := c.generation
	c.state = StateLoading
	c.rootWaiters = append(c.rootWaiters, w)
	c.mu.Unlock()

	c.logger.Info("loading root catalog", "generation", gen)
	c.publish(events.EventCatalogStateChanged, "catalog loading", map[string]interface{}{
		"state":      StateLoading,
		"generation": gen,
	})

	if !c.executor.Submit(func() { c.ingestRoot(gen) }) {
		c.finishRoot(gen, nil, nil, apperrors.IngestionFailure(opEnsureLoaded, apperrors.ErrShutdown).WithSubject(mediaid.Root))
	}
}

func (c *Catalog) ingestRoot(gen uint64) {
	var scanned []types.MediaItem
	if c.local != nil {
		items, err := c.local.Scan(c.ctx)
		if err != nil {
			c.finishRoot(gen, nil, nil, apperrors.IngestionFailure("scan", err).WithSubject(mediaid.Root))
			return
		}
		scanned = items
	}

	if c.store != nil {
		cued, err := c.store.GetMediaItemsWithCuePoints(c.ctx)
		if err != nil {
			c.logger.Warn("failed to load cue points", "error", err)
		} else {
			scanned = applyCues(scanned, cued)
		}
	}

	index := flatten(scanned)
	c.finishRoot(gen, index.items, index.categories, nil)
}

// finishRoot moves LOADING to READY and completes every root waiter.
func (c *Catalog) finishRoot(gen uint64, items map[string]types.MediaItem, categories map[string][]string, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale root ingestion", "generation", gen)
		return
	}

	for id, item := range items {
		c.items[id] = item
	}
	for key, ids := range categories {
		c.categories[key] = ids
	}
	c.state = StateReady
	waiters := c.rootWaiters
	c.rootWaiters = nil

	results := make([]Result, len(waiters))
	for i, w := range waiters {
		if err != nil {
			results[i] = Result{Category: w.key, Err: err}
			continue
		}
		results[i] = c.pageLocked(w.key, w.opts)
	}
	total := len(c.categories[mediaid.Root])
	c.mu.Unlock()

	for i, w := range waiters {
		w.ch <- results[i]
	}

	if err != nil {
		c.logger.Error("root ingestion failed", "generation", gen, "error", err)
		c.publish(events.EventCatalogCategoryFailed, err.Error(), map[string]interface{}{"category": mediaid.Root})
	} else {
		c.logger.Info("root catalog ready", "generation", gen, "entries", total, "items", len(items))
	}
	c.publish(events.EventCatalogStateChanged, "catalog ready", map[string]interface{}{
		"state":      StateReady,
		"generation": gen,
		"entries":    total,
	})
}

// pageLocked slices the category list of key into a Result.
func (c *Catalog) pageLocked(key string, opts Options) Result {
	ids, ok := c.categories[key]
	if !ok {
		return Result{
			Category: key,
			Err:      apperrors.ValidationError(opEnsureLoaded, apperrors.ErrUnknownCategory).WithSubject(key),
		}
	}
	return c.pageOfLocked(key, ids, opts)
}

// pageOfLocked slices ids, the members of category key, into a Result.
func (c *Catalog) pageOfLocked(key string, ids []string, opts Options) Result {
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(ids) {
		start = len(ids)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = c.pageSize
	}
	end := len(ids)
	if limit > 0 && limit < end-start {
		end = start + limit
	}

	entries := make([]Entry, 0, end-start)
	for _, id := range ids[start:end] {
		item, ok := c.items[id]
		if !ok {
			continue
		}
		entries = append(entries, Entry{MediaID: entryID(key, item), MediaItem: item})
	}
	return Result{Category: key, Items: entries, Offset: start, Total: len(ids)}
}

// entryID gives item its hierarchy-aware id under category key.
func entryID(key string, item types.MediaItem) string {
	if item.Kind == types.KindMedia {
		return mediaid.Encode(item.ID, mediaid.Hierarchy(key)...)
	}
	if req, ok := mediaid.ParsePluginPath(key); ok {
		if req.IsQuery {
			return mediaid.PluginCategory(req.Category, item.ID)
		}
		return mediaid.Category(key, mediaid.Escape(item.ID))
	}
	return item.ID
}

// listPlugins serves the plugins category: one STREAM entry per plugin
// category, owned by the plugin that serves it.
func (c *Catalog) listPlugins(w waiter) {
	var entries []types.MediaItem
	if c.plugins != nil {
		seen := make(map[string]bool)
		for _, p := range c.plugins.List() {
			for _, category := range p.MediaCategories() {
				id := mediaid.PluginCategory(category)
				if seen[id] {
					continue
				}
				seen[id] = true
				entries = append(entries, types.MediaItem{
					ID:          id,
					Title:       category,
					Subtitle:    p.Name(),
					Kind:        types.KindStream,
					OwnerPlugin: p.Name(),
					ArtworkURI:  "/api/plugins/" + p.Name() + "/icon",
				})
			}
		}
	}

	c.mu.Lock()
	ids := make([]string, 0, len(entries))
	for _, item := range entries {
		c.items[item.ID] = item
		ids = append(ids, item.ID)
	}
	c.categories[mediaid.Plugins] = ids
	res := c.pageLocked(mediaid.Plugins, w.opts)
	c.mu.Unlock()

	w.ch <- res
}

// ensurePlugin serves a plugin-owned category, dispatching one plugin call
// when the index cannot satisfy the requested offset.
func (c *Catalog) ensurePlugin(w waiter) {
	req, ok := mediaid.ParsePluginPath(w.key)
	if !ok {
		c.reject(w)
		return
	}

	var owner pluginmodule.Plugin
	if c.plugins != nil {
		owner, ok = c.plugins.OwnerOf(req.Category)
	}

	c.mu.Lock()
	if w.opts.Refresh {
		delete(c.categories, w.key)
	}
	if f, joined := c.pending[w.key]; joined && f.epoch == c.epoch {
		f.waiters = append(f.waiters, w)
		c.mu.Unlock()
		return
	}
	if ids, cached := c.categories[w.key]; cached && len(ids) > w.opts.Offset {
		res := c.pageLocked(w.key, w.opts)
		c.mu.Unlock()
		w.ch <- res
		return
	}
	if !ok {
		c.mu.Unlock()
		w.ch <- Result{
			Category: w.key,
			Err:      apperrors.IngestionFailure(opEnsureLoaded, apperrors.ErrNoOwningPlugin).WithSubject(req.Category),
		}
		return
	}
	f := &fetch{epoch: c.epoch, waiters: []waiter{w}}
	c.pending[w.key] = f
	c.mu.Unlock()

	name := owner.Name()
	cb := c.pluginCallback(w.key, name, f)
	c.logger.Debug("fetching plugin category", "plugin", name, "category", w.key, "epoch", f.epoch)

	submitted := c.executor.Submit(func() {
		switch {
		case req.IsQuery:
			owner.SearchMediaItems(req.Category, req.Query, w.opts.Page, cb)
		case req.Subcategory != "":
			owner.GetSubcategoryItems(req.Category, req.Subcategory, cb)
		default:
			owner.GetMediaItems(req.Category, cb)
		}
	})
	if !submitted {
		cb.OnError(apperrors.BridgeFailure(opEnsureLoaded, apperrors.ErrShutdown).WithSubject(name))
		return
	}
	if req.IsQuery {
		c.recordQuery(req.Query)
	}
}

// pluginCallback adapts the four callback shapes onto completePlugin. Only
// the first outcome counts.
func (c *Catalog) pluginCallback(key, plugin string, f *fetch) pluginmodule.Callback {
	var once sync.Once
	complete := func(objs []pluginmodule.Object, err error) {
		once.Do(func() { c.completePlugin(key, plugin, f, objs, err) })
	}

	return pluginmodule.CallbackFuncs{
		Objects: func(objs []pluginmodule.Object) { complete(objs, nil) },
		Object:  func(obj pluginmodule.Object) { complete([]pluginmodule.Object{obj}, nil) },
		String: func(payload string) {
			objs, err := parseJSONPayload(payload)
			if err != nil {
				complete(nil, apperrors.IngestionFailure(opEnsureLoaded, err).WithSubject(key))
				return
			}
			complete(objs, nil)
		},
		Bool: func(ok bool) {
			if !ok {
				complete(nil, apperrors.IngestionFailure(opEnsureLoaded, apperrors.ErrPluginReported).WithSubject(key))
				return
			}
			complete(nil, nil)
		},
		Error: func(err error) {
			complete(nil, apperrors.Wrap(err, apperrors.KindIngestion, opEnsureLoaded))
		},
	}
}

// completePlugin merges a plugin response into the index unless a root
// refresh started since the fetch was dispatched.
func (c *Catalog) completePlugin(key, plugin string, f *fetch, objs []pluginmodule.Object, err error) {
	var parsed []types.MediaItem
	if err == nil {
		parsed = parsePayload(plugin, key, objs)
	}

	c.mu.Lock()
	if c.pending[key] == f {
		delete(c.pending, key)
	}

	if f.epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding stale plugin result", "plugin", plugin, "category", key,
			"epoch", f.epoch)
		stale := apperrors.IngestionFailure(opEnsureLoaded, apperrors.ErrStaleResult).WithSubject(key)
		for _, w := range f.waiters {
			w.ch <- Result{Category: key, Err: stale}
		}
		return
	}

	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("plugin category failed", "plugin", plugin, "category", key, "error", err)
		for _, w := range f.waiters {
			w.ch <- Result{Category: key, Err: err}
		}
		c.publish(events.EventCatalogCategoryFailed, err.Error(), map[string]interface{}{
			"category": key,
			"plugin":   plugin,
		})
		return
	}

	ids := c.categories[key]
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	added := 0
	for _, item := range parsed {
		c.items[item.ID] = item
		if !present[item.ID] {
			present[item.ID] = true
			ids = append(ids, item.ID)
			added++
		}
	}
	c.categories[key] = ids

	results := make([]Result, len(f.waiters))
	for i, w := range f.waiters {
		results[i] = c.pageLocked(key, w.opts)
	}
	c.mu.Unlock()

	for i, w := range f.waiters {
		w.ch <- results[i]
	}
	c.logger.Debug("plugin category loaded", "plugin", plugin, "category", key, "added", added, "total", len(ids))
	c.publish(events.EventCatalogCategoryLoaded, "category loaded", map[string]interface{}{
		"category": key,
		"plugin":   plugin,
		"added":    added,
		"total":    len(ids),
	})
}

// search materializes search/<q> from every MEDIA item currently indexed.
func (c *Catalog) search(w waiter) {
	query, ok := mediaid.CategoryValue(w.key)
	if !ok || strings.TrimSpace(query) == "" {
		w.ch <- Result{
			Category: w.key,
			Err:      apperrors.ValidationError(opEnsureLoaded, apperrors.ErrInvalidInput).WithSubject(w.key),
		}
		return
	}
	needle := strings.ToLower(query)

	c.mu.Lock()
	keys := make([]string, 0, len(c.categories))
	for key := range c.categories {
		if !strings.HasPrefix(key, mediaid.Search+mediaid.CategorySeparator) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	var matches []string
	for _, key := range keys {
		for _, id := range c.categories[key] {
			if seen[id] {
				continue
			}
			item, ok := c.items[id]
			if !ok || item.Kind != types.KindMedia {
				continue
			}
			seen[id] = true
			if matchesQuery(item, needle) {
				matches = append(matches, id)
			}
		}
	}
	// search results are paged once and never indexed
	res := c.pageOfLocked(w.key, matches, w.opts)
	c.mu.Unlock()

	w.ch <- res
	c.recordQuery(query)
}

func matchesQuery(item types.MediaItem, needle string) bool {
	for _, v := range []string{item.Title, item.Artist, item.Album} {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func (c *Catalog) recordQuery(query string) {
	if c.store == nil {
		return
	}
	c.executor.Submit(func() {
		if err := c.store.AddSearchQuery(c.ctx, query); err != nil {
			c.logger.Warn("failed to record search query", "query", query, "error", err)
		}
	})
}

func (c *Catalog) publish(eventType events.EventType, message string, data map[string]interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishAsync(events.Event{
		Type:    eventType,
		Source:  "catalog",
		Message: message,
		Data:    data,
	}); err != nil {
		c.logger.Debug("event not published", "type", eventType, "error", err)
	}
}
