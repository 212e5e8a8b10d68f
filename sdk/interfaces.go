// Package plugins is the SDK for soundcrowd provider plugins.
//
// A provider is an independently built executable that the host starts as a
// subprocess and talks to over gRPC. Provider authors implement Provider
// (usually by embedding BaseProvider) and call Serve from main. The host does
// not link against these types; both sides agree only on service and method
// names and on the wire messages declared in wire.go.
package plugins

// Object is a structured, string-keyed value exchanged with the host.
type Object = map[string]interface{}

// Callback delivers the asynchronous result of a provider call to the host.
// OnResult accepts exactly one of: string, Object, []Object, bool. Any other
// value is rejected by the host as a contract violation. A callback may be
// completed once; later calls are ignored.
type Callback interface {
	OnResult(value interface{})
	OnError(err error)
}

// RedirectHandler receives the query string of an external redirect (for
// example an OAuth callback) addressed to a host pattern the provider claimed.
type RedirectHandler func(query string)

// Preference describes one user-configurable setting of a provider.
type Preference struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Secret      bool   `json:"secret"`
}

// Provider is the contract every plugin implements.
//
// Methods taking a Callback may perform I/O and must not assume the host
// waits for them; they are invoked on their own goroutine and complete by
// calling the callback. The remaining methods are expected to be fast.
type Provider interface {
	// Name returns the unique display name of the provider.
	Name() string
	// MediaCategories lists the top-level categories the provider serves.
	MediaCategories() []string
	// GetMediaItems lists the items of a category.
	GetMediaItems(category string, callback Callback)
	// GetSubcategoryItems lists the items below a path inside a category.
	GetSubcategoryItems(category, subcategory string, callback Callback)
	// SearchMediaItems runs a query within a category; page starts at 0.
	SearchMediaItems(category, query string, page int, callback Callback)
	// GetMediaURL resolves an item's metadata into a playable locator,
	// delivered as an Object carrying at least "url".
	GetMediaURL(metadata Object, callback Callback)
	// Preferences describes the provider's settings.
	Preferences() []Preference
	// Icon returns encoded image bytes, or nil.
	Icon() []byte
	// Callbacks maps redirect host patterns to handlers.
	Callbacks() map[string]RedirectHandler
}
