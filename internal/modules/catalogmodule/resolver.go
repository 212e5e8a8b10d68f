package catalogmodule

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule/mediaid"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/types"
)

const opResolve = "resolve"

// Resolution completes a Resolve request. Item is set whenever the item was
// found, including pass-through fallbacks that also carry Err.
type Resolution struct {
	Item     types.MediaItem `json:"item"`
	Resolved bool            `json:"resolved"` // a plugin supplied the locator
	Err      error           `json:"-"`
}

// Resolver turns a hierarchy-aware id into a playable item, asking at most
// one plugin for a stream URL.
type Resolver struct {
	catalog  *Catalog
	plugins  PluginSource
	executor pluginmodule.Submitter
	timeout  time.Duration
	logger   hclog.Logger
}

// NewResolver creates a resolver over catalog. A zero timeout waits for the
// plugin indefinitely.
func NewResolver(catalog *Catalog, plugins PluginSource, executor pluginmodule.Submitter, timeout time.Duration, logger hclog.Logger) *Resolver {
	return &Resolver{
		catalog:  catalog,
		plugins:  plugins,
		executor: executor,
		timeout:  timeout,
		logger:   logger.Named("resolver"),
	}
}

// Resolve delivers exactly one Resolution on the returned channel.
func (r *Resolver) Resolve(mediaID string) <-chan Resolution {
	ch := make(chan Resolution, 1)

	item, ok := r.catalog.GetMusic(mediaID)
	if !ok {
		ch <- Resolution{Err: apperrors.ResolutionFailure(opResolve, apperrors.ErrItemNotFound).WithSubject(mediaID)}
		return ch
	}

	category := owningCategory(mediaID, item)
	if category == "" {
		ch <- Resolution{Item: item}
		return ch
	}

	req, _ := mediaid.ParsePluginPath(category)
	var owner pluginmodule.Plugin
	if r.plugins != nil {
		owner, ok = r.plugins.OwnerOf(req.Category)
	}
	if owner == nil || !ok {
		r.logger.Warn("no plugin owns category, passing item through", "id", item.ID, "category", req.Category)
		ch <- Resolution{Item: item}
		return ch
	}

	var once sync.Once
	deliver := func(res Resolution) { once.Do(func() { ch <- res }) }

	var timer *time.Timer
	if r.timeout > 0 {
		timer = time.AfterFunc(r.timeout, func() {
			r.logger.Warn("plugin did not resolve in time", "plugin", owner.Name(), "id", item.ID, "timeout", r.timeout)
			deliver(Resolution{
				Item: item,
				Err:  apperrors.ResolutionFailure(opResolve, apperrors.ErrCallbackTimeout).WithSubject(item.ID),
			})
		})
	}
	finish := func(res Resolution) {
		if timer != nil {
			timer.Stop()
		}
		deliver(res)
	}

	fail := func(err error) {
		finish(Resolution{Item: item, Err: apperrors.Wrap(err, apperrors.KindResolution, opResolve)})
	}
	cb := pluginmodule.CallbackFuncs{
		Object: func(obj pluginmodule.Object) {
			url, _ := obj["url"].(string)
			if url == "" {
				fail(apperrors.ResolutionFailure(opResolve, apperrors.ErrMalformedPayload).WithSubject(item.ID))
				return
			}
			resolved := item.Clone()
			resolved.SourceURI = url
			finish(Resolution{Item: resolved, Resolved: true})
		},
		String:  func(string) { fail(apperrors.ResolutionFailure(opResolve, apperrors.ErrMalformedPayload).WithSubject(item.ID)) },
		Objects: func([]pluginmodule.Object) { fail(apperrors.ResolutionFailure(opResolve, apperrors.ErrMalformedPayload).WithSubject(item.ID)) },
		Bool: func(bool) {
			fail(apperrors.ResolutionFailure(opResolve, apperrors.ErrPluginReported).WithSubject(item.ID))
		},
		Error: fail,
	}

	metadata := itemMetadata(item)
	if !r.executor.Submit(func() { owner.GetMediaURL(metadata, cb) }) {
		fail(apperrors.ResolutionFailure(opResolve, apperrors.ErrShutdown).WithSubject(item.ID))
	}
	return ch
}

// owningCategory returns the plugin category an item was reached through, or
// "" for items that resolve to themselves.
func owningCategory(mediaID string, item types.MediaItem) string {
	if path := mediaid.Path(mediaID); path != mediaID && mediaid.IsPluginPath(path) {
		return path
	}
	if origin, ok := item.Extras[types.ExtraOrigin].(string); ok && mediaid.IsPluginPath(origin) {
		return origin
	}
	return ""
}

// itemMetadata is the structured object passed to GetMediaURL.
func itemMetadata(item types.MediaItem) pluginmodule.Object {
	metadata := pluginmodule.Object{}
	for k, v := range item.Extras {
		switch k {
		case types.ExtraCuePoints, types.ExtraLastPosition, types.ExtraOrigin:
		default:
			metadata[k] = v
		}
	}
	metadata[keyID] = item.ID
	metadata[keyTitle] = item.Title
	metadata[keyArtist] = item.Artist
	metadata[keyAlbum] = item.Album
	metadata[keyDuration] = item.DurationMs
	metadata[keySource] = item.SourceURI
	metadata[keyArtwork] = item.ArtworkURI
	metadata[keyType] = string(item.Kind)
	return metadata
}
