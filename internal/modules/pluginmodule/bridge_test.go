package pluginmodule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/utils"
	sdk "github.com/mantonx/soundcrowd/sdk"
)

// echoProvider answers each category with a different callback shape.
type echoProvider struct {
	sdk.BaseProvider
	redirects chan string
}

func (p *echoProvider) Name() string { return "Echo" }

func (p *echoProvider) MediaCategories() []string { return []string{"tracks", "shapes"} }

func (p *echoProvider) GetMediaItems(category string, cb sdk.Callback) {
	switch category {
	case "json":
		cb.OnResult(`[{"title":"From JSON","source":"https://json"}]`)
	case "object":
		cb.OnResult(sdk.Object{"title": "Single"})
	case "objects":
		cb.OnResult([]sdk.Object{{"title": "A"}, {"title": "B"}})
	case "bool":
		cb.OnResult(true)
	case "number":
		cb.OnResult(7)
	default:
		cb.OnError(errors.New("unknown category " + category))
	}
}

func (p *echoProvider) GetSubcategoryItems(category, subcategory string, cb sdk.Callback) {
	cb.OnResult([]sdk.Object{{"title": category + ":" + subcategory}})
}

func (p *echoProvider) SearchMediaItems(category, query string, page int, cb sdk.Callback) {
	cb.OnResult(sdk.Object{"query": query, "page": page})
}

func (p *echoProvider) GetMediaURL(metadata sdk.Object, cb sdk.Callback) {
	cb.OnResult(sdk.Object{"url": "https://stream/" + metadata["id"].(string)})
}

func (p *echoProvider) Preferences() []sdk.Preference {
	return []sdk.Preference{{Key: "api_key", Label: "API key", Secret: true}}
}

func (p *echoProvider) Icon() []byte { return []byte{0x89, 'P', 'N', 'G'} }

func (p *echoProvider) Callbacks() map[string]sdk.RedirectHandler {
	return map[string]sdk.RedirectHandler{
		"echo.auth": func(query string) { p.redirects <- query },
	}
}

// loopbackPlugin pairs the SDK server half with the host client half so both
// run in one test process.
type loopbackPlugin struct {
	goplugin.NetRPCUnsupportedPlugin
	server *sdk.ProviderPlugin
	client *providerGRPCPlugin
}

func (p *loopbackPlugin) GRPCServer(b *goplugin.GRPCBroker, s *grpc.Server) error {
	return p.server.GRPCServer(b, s)
}

func (p *loopbackPlugin) GRPCClient(ctx context.Context, b *goplugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return p.client.GRPCClient(ctx, b, c)
}

func newLoopbackProxy(t *testing.T, provider sdk.Provider, opts ProxyOptions) *Proxy {
	t.Helper()

	executor := utils.NewExecutor(hclog.NewNullLogger())
	t.Cleanup(executor.Stop)

	lp := &loopbackPlugin{
		server: &sdk.ProviderPlugin{Impl: provider, Logger: hclog.NewNullLogger()},
		client: &providerGRPCPlugin{
			handle:   ModuleHandle{ID: "soundcrowd.plugins.echo", Version: "1.0.0"},
			executor: executor,
			opts:     opts,
			logger:   hclog.NewNullLogger(),
		},
	}

	client, server := goplugin.TestPluginGRPCConn(t, false, map[string]goplugin.Plugin{pluginName: lp})
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})

	raw, err := client.Dispense(pluginName)
	require.NoError(t, err)
	proxy, ok := raw.(*Proxy)
	require.True(t, ok)
	require.NoError(t, proxy.describe(context.Background()))
	t.Cleanup(func() { _ = proxy.Close() })
	return proxy
}

type outcome struct {
	method string
	value  interface{}
	err    error
}

func capture() (Callback, <-chan outcome) {
	ch := make(chan outcome, 1)
	return CallbackFuncs{
		String:  func(v string) { ch <- outcome{method: "string", value: v} },
		Object:  func(v Object) { ch <- outcome{method: "object", value: v} },
		Objects: func(v []Object) { ch <- outcome{method: "objects", value: v} },
		Bool:    func(v bool) { ch <- outcome{method: "bool", value: v} },
		Error:   func(err error) { ch <- outcome{method: "error", err: err} },
	}, ch
}

func await(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
		return outcome{}
	}
}

func TestProxy_Describe(t *testing.T) {
	proxy := newLoopbackProxy(t, &echoProvider{}, ProxyOptions{})

	desc := proxy.Descriptor()
	assert.Equal(t, "Echo", desc.Name)
	assert.Equal(t, "soundcrowd.plugins.echo", desc.ID)
	assert.Equal(t, []string{"tracks", "shapes"}, proxy.MediaCategories())
	assert.Equal(t, []Preference{{Key: "api_key", Label: "API key", Secret: true}}, proxy.Preferences())
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, proxy.Icon())
	assert.Equal(t, []string{"echo.auth"}, desc.Redirects)
	assert.True(t, desc.HasCategory("tracks"))
}

func TestProxy_CallbackShapes(t *testing.T) {
	proxy := newLoopbackProxy(t, &echoProvider{}, ProxyOptions{})

	tests := []struct {
		category string
		method   string
		check    func(t *testing.T, o outcome)
	}{
		{"json", "string", func(t *testing.T, o outcome) {
			assert.Contains(t, o.value, "From JSON")
		}},
		{"object", "object", func(t *testing.T, o outcome) {
			assert.Equal(t, Object{"title": "Single"}, o.value)
		}},
		{"objects", "objects", func(t *testing.T, o outcome) {
			assert.Equal(t, []Object{{"title": "A"}, {"title": "B"}}, o.value)
		}},
		{"bool", "bool", func(t *testing.T, o outcome) {
			assert.Equal(t, true, o.value)
		}},
		{"number", "error", func(t *testing.T, o outcome) {
			assert.True(t, apperrors.IsKind(o.err, apperrors.KindContract))
		}},
		{"missing", "error", func(t *testing.T, o outcome) {
			assert.ErrorIs(t, o.err, apperrors.ErrPluginReported)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			cb, ch := capture()
			proxy.GetMediaItems(tt.category, cb)
			o := await(t, ch)
			require.Equal(t, tt.method, o.method, "err: %v", o.err)
			tt.check(t, o)
		})
	}
}

func TestProxy_SubcategorySearchAndURL(t *testing.T) {
	proxy := newLoopbackProxy(t, &echoProvider{}, ProxyOptions{})

	cb, ch := capture()
	proxy.GetSubcategoryItems("genres", "rock/live", cb)
	o := await(t, ch)
	assert.Equal(t, []Object{{"title": "genres:rock/live"}}, o.value)

	cb, ch = capture()
	proxy.SearchMediaItems("tracks", "daft punk", 2, cb)
	o = await(t, ch)
	assert.Equal(t, Object{"query": "daft punk", "page": float64(2)}, o.value)

	cb, ch = capture()
	proxy.GetMediaURL(Object{"id": "42", "title": "Song"}, cb)
	o = await(t, ch)
	assert.Equal(t, Object{"url": "https://stream/42"}, o.value)
}

func TestProxy_Redirect(t *testing.T) {
	provider := &echoProvider{redirects: make(chan string, 1)}
	proxy := newLoopbackProxy(t, provider, ProxyOptions{})

	handler, ok := proxy.Callbacks()["echo.auth"]
	require.True(t, ok)
	handler("code=xyz")

	select {
	case q := <-provider.redirects:
		assert.Equal(t, "code=xyz", q)
	case <-time.After(5 * time.Second):
		t.Fatal("redirect never reached the plugin")
	}
}

func TestProxy_ClosedRejectsCalls(t *testing.T) {
	proxy := newLoopbackProxy(t, &echoProvider{}, ProxyOptions{})
	require.NoError(t, proxy.Close())

	cb, ch := capture()
	proxy.GetMediaItems("objects", cb)
	o := await(t, ch)
	assert.ErrorIs(t, o.err, apperrors.ErrShutdown)
	assert.True(t, apperrors.IsKind(o.err, apperrors.KindBridge))
}

func TestServiceNames_MatchSDK(t *testing.T) {
	assert.Equal(t, sdk.ProviderService, providerService)
	assert.Equal(t, sdk.CallbackService, callbackServiceDesc.ServiceName)
	assert.Equal(t, sdk.FullMethod(sdk.CallbackService, methodOnResult), fullMethod(callbackServiceName, methodOnResult))
}
