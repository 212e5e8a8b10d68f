package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/soundcrowd/internal/config"
	"github.com/mantonx/soundcrowd/internal/database"
	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/types"
	"github.com/mantonx/soundcrowd/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticLibrary []types.MediaItem

func (l staticLibrary) Scan(ctx context.Context) ([]types.MediaItem, error) {
	return l, nil
}

type fakeDirectory struct {
	descriptors []pluginmodule.Descriptor
	redirects   map[string][]string
}

func (d *fakeDirectory) Descriptors() []pluginmodule.Descriptor { return d.descriptors }

func (d *fakeDirectory) HandleRedirect(host, query string) bool {
	if host != "radio.example" {
		return false
	}
	d.redirects[host] = append(d.redirects[host], query)
	return true
}

type testServer struct {
	server    *Server
	directory *fakeDirectory
	store     *database.Store
	bus       *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := hclog.NewNullLogger()

	executor := utils.NewExecutor(logger)
	t.Cleanup(executor.Stop)

	db, err := database.Initialize(config.DatabaseConfig{Type: "sqlite", Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	store := database.NewStore(db, logger)

	bus := events.NewBus(events.DefaultBusConfig(), logger)
	require.NoError(t, bus.Start())
	t.Cleanup(func() { bus.Stop(context.Background()) })

	library := staticLibrary{
		{ID: "a", Title: "Alpha", Artist: "Ann", Album: "First", SourceURI: "file:///music/a.mp3", Kind: types.KindMedia},
		{ID: "b", Title: "Beta", Artist: "Bob", Album: "Second", SourceURI: "file:///music/b.mp3", Kind: types.KindMedia},
	}
	directory := &fakeDirectory{
		descriptors: []pluginmodule.Descriptor{{
			ID:          "soundcrowd.plugins.radio",
			Name:        "Radio",
			Version:     "1.0.0",
			Categories:  []string{"stations"},
			Preferences: []pluginmodule.Preference{{Key: "region", Label: "Region"}},
			Icon:        []byte("\x89PNG\r\n\x1a\n0000"),
		}},
		redirects: map[string][]string{},
	}

	catalog := catalogmodule.NewCatalog(catalogmodule.Config{
		Local:    library,
		Store:    store,
		Executor: executor,
		Events:   bus,
	}, logger)
	t.Cleanup(catalog.Close)
	resolver := catalogmodule.NewResolver(catalog, nil, executor, 0, logger)

	s := New(config.ServerConfig{}, Dependencies{
		Catalog:  catalog,
		Resolver: resolver,
		Plugins:  directory,
		History:  store,
		DB:       store,
		Bus:      bus,
	}, logger)
	return &testServer{server: s, directory: directory, store: store, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["plugins"])
	assert.Equal(t, map[string]interface{}{"ok": true}, body["database"])
	assert.Contains(t, body, "process")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBrowse(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/api/catalog/browse", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "root", body["category"])
	assert.Equal(t, float64(2), body["total"])
	items := body["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, "root|a", first["media_id"])

	// single-item buckets are promoted to root rather than indexed
	rec, _ = ts.do(t, http.MethodGet, "/api/catalog/browse?id="+url.QueryEscape("artist/Ann"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/catalog/browse?id=nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	rec, _ = ts.do(t, http.MethodGet, "/api/catalog/browse?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/catalog/browse?offset=1&limit=9223372036854775807", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 1)
	rec, _ = ts.do(t, http.MethodGet, "/api/catalog/item?id=a", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/catalog/state", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", body["state"])
}

func TestItemAndResolve(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/catalog/browse", nil)

	rec, body := ts.do(t, http.MethodGet, "/api/catalog/item?id="+url.QueryEscape("root|b"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Beta", body["title"])

	rec, _ = ts.do(t, http.MethodGet, "/api/catalog/item?id=zzz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/catalog/resolve?id="+url.QueryEscape("root|a"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["resolved"])
	item := body["item"].(map[string]interface{})
	assert.Equal(t, "file:///music/a.mp3", item["source_uri"])

	rec, _ = ts.do(t, http.MethodGet, "/api/catalog/resolve?id=zzz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCuePointsAndPosition(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/catalog/browse", nil)

	rec, _ := ts.do(t, http.MethodPost, "/api/catalog/cues", map[string]interface{}{"id": "root|a", "position": 1500, "description": "intro"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/catalog/cues", map[string]interface{}{"id": "root|a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/api/catalog/browse?id=cues", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])

	rec, _ = ts.do(t, http.MethodPut, "/api/catalog/cues", map[string]interface{}{"id": "a", "position": 1500, "description": "start"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodDelete, "/api/catalog/cues?id=a&position=1500", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodPut, "/api/catalog/position", map[string]interface{}{"id": "root|b", "position": 42000})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = ts.do(t, http.MethodGet, "/api/catalog/position?id=b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42000), body["position"])

	rec, _ = ts.do(t, http.MethodPut, "/api/catalog/position", map[string]interface{}{"id": "b", "position": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchHistory(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.AddSearchQuery(context.Background(), "jazz"))

	rec, body := ts.do(t, http.MethodGet, "/api/search/history?prefix=ja", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"jazz"}, body["queries"])
}

func TestPlugins(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/api/plugins", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	plugin := body["plugins"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "/api/plugins/Radio/icon", plugin["icon"])
	assert.Equal(t, map[string]interface{}{"stations": "plugins/stations"}, plugin["browse"])

	rec, _ = ts.do(t, http.MethodGet, "/api/plugins/soundcrowd.plugins.radio", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/plugins/Radio/icon", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec, body = ts.do(t, http.MethodGet, "/api/plugins/Radio/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["preferences"], 1)

	rec, _ = ts.do(t, http.MethodGet, "/api/plugins/Missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedirectCallback(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/callback/radio.example?code=xyz&state=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"code=xyz&state=1"}, ts.directory.redirects["radio.example"])

	rec, _ = ts.do(t, http.MethodGet, "/callback/unknown.example?code=1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesAndEvents(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/api", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["routes"])
	assert.NotEmpty(t, ts.server.Routes())

	require.NoError(t, ts.bus.Publish(context.Background(), events.Event{Type: events.EventSystemStarted, Source: "test"}))
	assert.Eventually(t, func() bool { return len(ts.bus.Recent(0)) > 0 }, 2*time.Second, 10*time.Millisecond)
	rec, body = ts.do(t, http.MethodGet, "/api/events?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, body["count"], float64(1))

	rec, _ = ts.do(t, http.MethodGet, "/api/events/ws", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
