package plugins

import "errors"

// ErrNotSupported is reported by BaseProvider for calls a provider does not implement.
var ErrNotSupported = errors.New("not supported by this provider")

// BaseProvider provides default implementations for optional Provider methods.
// Embed it and override what the provider supports.
type BaseProvider struct{}

// GetSubcategoryItems reports ErrNotSupported.
func (b *BaseProvider) GetSubcategoryItems(category, subcategory string, callback Callback) {
	callback.OnError(ErrNotSupported)
}

// SearchMediaItems reports ErrNotSupported.
func (b *BaseProvider) SearchMediaItems(category, query string, page int, callback Callback) {
	callback.OnError(ErrNotSupported)
}

// Preferences returns no settings.
func (b *BaseProvider) Preferences() []Preference {
	return nil
}

// Icon returns no icon.
func (b *BaseProvider) Icon() []byte {
	return nil
}

// Callbacks registers no redirect handlers.
func (b *BaseProvider) Callbacks() map[string]RedirectHandler {
	return nil
}

// CallbackFunc adapts two functions to Callback, mainly for provider tests.
type CallbackFunc struct {
	Result func(value interface{})
	Error  func(err error)
}

// OnResult implements Callback.
func (f CallbackFunc) OnResult(value interface{}) {
	if f.Result != nil {
		f.Result(value)
	}
}

// OnError implements Callback.
func (f CallbackFunc) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}
