package types

import (
	"sort"
	"strings"
)

// Kind distinguishes playable items from browsable nodes.
type Kind string

const (
	KindMedia      Kind = "MEDIA"
	KindCollection Kind = "COLLECTION"
	KindStream     Kind = "STREAM"
)

// ParseKind maps a payload value onto a Kind. Unknown or empty values are MEDIA.
func ParseKind(s string) Kind {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindCollection:
		return KindCollection
	case KindStream:
		return KindStream
	default:
		return KindMedia
	}
}

// Well-known Extras keys
const (
	ExtraCuePoints    = "cues"
	ExtraLastPosition = "last_position"
	ExtraOrigin       = "origin"
)

// MediaItem is one piece of content: a track, a browsable collection header,
// or a stream category placeholder.
type MediaItem struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Artist      string                 `json:"artist,omitempty"`
	Album       string                 `json:"album,omitempty"`
	Subtitle    string                 `json:"subtitle,omitempty"`
	DurationMs  int64                  `json:"duration_ms"`
	SourceURI   string                 `json:"source_uri,omitempty"`
	ArtworkURI  string                 `json:"artwork_uri,omitempty"`
	Kind        Kind                   `json:"kind"`
	OwnerPlugin string                 `json:"owner_plugin,omitempty"` // empty means local
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// IsLocal reports whether the item came from the host rather than a plugin.
func (m MediaItem) IsLocal() bool {
	return m.OwnerPlugin == ""
}

// Playable reports whether a MEDIA item carries a locator.
func (m MediaItem) Playable() bool {
	return m.Kind != KindMedia || m.SourceURI != ""
}

// Clone returns a copy whose Extras can be modified without affecting m.
func (m MediaItem) Clone() MediaItem {
	c := m
	if m.Extras != nil {
		c.Extras = make(map[string]interface{}, len(m.Extras))
		for k, v := range m.Extras {
			c.Extras[k] = v
		}
	}
	return c
}

// WithExtra returns a copy of m with key set in Extras.
func (m MediaItem) WithExtra(key string, value interface{}) MediaItem {
	c := m.Clone()
	if c.Extras == nil {
		c.Extras = make(map[string]interface{})
	}
	c.Extras[key] = value
	return c
}

// CuePoint marks a position of interest within a track.
type CuePoint struct {
	Position    int64  `json:"position"`
	Description string `json:"description,omitempty"`
}

// SortCuePoints orders cue points by position.
func SortCuePoints(cues []CuePoint) {
	sort.Slice(cues, func(i, j int) bool { return cues[i].Position < cues[j].Position })
}
