// Package pluginmodule loads provider plugins and exposes them to the host.
//
// Providers are separate executables. Discovery finds them through plugin.cue
// manifests, the bridge starts each one as a go-plugin subprocess and wraps it
// in a Proxy implementing Plugin, and the Registry keeps the proxies that
// bridged successfully. The host never links against the provider SDK; both
// sides agree only on gRPC service and method names.
package pluginmodule

import "context"

// Object is a structured, string-keyed value received from or sent to a plugin.
type Object = map[string]interface{}

// Callback receives the result of an asynchronous plugin call. Exactly one of
// its methods is invoked, exactly once, per call. The method invoked follows
// the shape of the value the plugin produced.
type Callback interface {
	OnString(value string)
	OnObject(value Object)
	OnObjects(values []Object)
	OnBool(value bool)
	OnError(err error)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields ignore the
// corresponding outcome.
type CallbackFuncs struct {
	String  func(string)
	Object  func(Object)
	Objects func([]Object)
	Bool    func(bool)
	Error   func(error)
}

func (f CallbackFuncs) OnString(value string) {
	if f.String != nil {
		f.String(value)
	}
}

func (f CallbackFuncs) OnObject(value Object) {
	if f.Object != nil {
		f.Object(value)
	}
}

func (f CallbackFuncs) OnObjects(values []Object) {
	if f.Objects != nil {
		f.Objects(values)
	}
}

func (f CallbackFuncs) OnBool(value bool) {
	if f.Bool != nil {
		f.Bool(value)
	}
}

func (f CallbackFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Preference describes one user-configurable plugin setting.
type Preference struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Secret      bool   `json:"secret"`
}

// RedirectHandler receives the query string of an external redirect.
type RedirectHandler func(query string)

// Plugin is the host's view of a provider.
//
// Methods taking a Callback return immediately; the result arrives later on
// the callback. The remaining methods answer from data captured when the
// plugin was bridged and never perform I/O.
type Plugin interface {
	Name() string
	MediaCategories() []string
	GetMediaItems(category string, cb Callback)
	GetSubcategoryItems(category, subcategory string, cb Callback)
	SearchMediaItems(category, query string, page int, cb Callback)
	GetMediaURL(metadata Object, cb Callback)
	Preferences() []Preference
	Icon() []byte
	Callbacks() map[string]RedirectHandler
}

// Descriptor is the immutable identity of a bridged plugin.
type Descriptor struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Categories  []string     `json:"categories"`
	Preferences []Preference `json:"preferences"`
	Icon        []byte       `json:"-"`
	Redirects   []string     `json:"redirects,omitempty"`
}

// HasCategory reports whether the plugin declared category.
func (d Descriptor) HasCategory(category string) bool {
	for _, c := range d.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ModuleHandle identifies one discovered plugin executable.
type ModuleHandle struct {
	ID          string
	Name        string
	Version     string
	Description string
	Dir         string
	EntryPoint  string // absolute path of the executable
}

// Discoverer enumerates installed plugin modules.
type Discoverer interface {
	Discover(ctx context.Context, prefix string) []ModuleHandle
}

// Bridger turns a module handle into a usable plugin.
type Bridger interface {
	Bridge(ctx context.Context, handle ModuleHandle) (BridgedPlugin, error)
}

// BridgedPlugin is a Plugin with a process lifetime behind it.
type BridgedPlugin interface {
	Plugin
	Descriptor() Descriptor
	Close() error
}

// Submitter runs work off the caller's goroutine.
type Submitter interface {
	Submit(work func()) bool
}
