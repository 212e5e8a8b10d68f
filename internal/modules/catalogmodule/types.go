package catalogmodule

import (
	"context"

	"github.com/mantonx/soundcrowd/internal/events"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/types"
)

// State is the lifecycle state of the root catalog.
type State string

const (
	StateEmpty   State = "EMPTY"
	StateLoading State = "LOADING"
	StateReady   State = "READY"
)

// Options qualifies an EnsureLoaded request.
type Options struct {
	Offset  int  // first entry of the page
	Limit   int  // page size; 0 uses the catalog default
	Page    int  // page passed to plugin searches
	Refresh bool // discard cached entries and fetch again
}

// Entry is a catalog item as reached through one browsing path.
type Entry struct {
	// MediaID is the hierarchy-aware id of the item under the requested
	// category. Browsable entries carry a category key instead.
	MediaID string `json:"media_id"`
	types.MediaItem
}

// Browsable reports whether the entry addresses a category node.
func (e Entry) Browsable() bool {
	return e.Kind != types.KindMedia
}

// Result completes an EnsureLoaded request.
type Result struct {
	Category string  `json:"category"`
	Items    []Entry `json:"items"`
	Offset   int     `json:"offset"`
	Total    int     `json:"total"`
	Err      error   `json:"-"`
}

// PluginSource is the part of the plugin registry the catalog depends on.
type PluginSource interface {
	List() []pluginmodule.Plugin
	OwnerOf(category string) (pluginmodule.Plugin, bool)
}

// LocalSource produces the items of the local library.
type LocalSource interface {
	Scan(ctx context.Context) ([]types.MediaItem, error)
}

// Store is the storage collaborator for cue points, playback positions and
// search history.
type Store interface {
	GetMediaItemsWithCuePoints(ctx context.Context) ([]types.MediaItem, error)
	GetCuePoints(ctx context.Context, mediaID string) ([]types.CuePoint, error)
	GetLastPosition(ctx context.Context, mediaID string) (int64, error)
	UpsertPosition(ctx context.Context, mediaID string, position int64) error
	AddCuePoint(ctx context.Context, item types.MediaItem, position int64, description string) error
	DeleteCuePoint(ctx context.Context, mediaID string, position int64) error
	SetCuePointDescription(ctx context.Context, mediaID string, position int64, description string) error
	AddSearchQuery(ctx context.Context, query string) error
}

// Publisher receives catalog events.
type Publisher interface {
	PublishAsync(event events.Event) error
}
