package catalogmodule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/modules/pluginmodule"
	"github.com/mantonx/soundcrowd/internal/types"
	"github.com/mantonx/soundcrowd/internal/utils"
)

// Payload keys understood in plugin item objects. Anything else is kept in
// MediaItem.Extras.
const (
	keyID       = "id"
	keyTitle    = "title"
	keyArtist   = "artist"
	keyAlbum    = "album"
	keySubtitle = "subtitle"
	keyDuration = "duration"
	keySource   = "source"
	keyArtwork  = "artwork"
	keyType     = "type"
)

// parseJSONPayload decodes a string callback value: a JSON array of objects.
func parseJSONPayload(payload string) ([]pluginmodule.Object, error) {
	var objs []pluginmodule.Object
	if err := json.Unmarshal([]byte(payload), &objs); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	return objs, nil
}

// parsePayload turns plugin objects into items owned by plugin, dropping
// MEDIA items without a source.
func parsePayload(plugin, origin string, objs []pluginmodule.Object) []types.MediaItem {
	items := make([]types.MediaItem, 0, len(objs))
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		item := parseItem(plugin, origin, obj)
		if !item.Playable() {
			continue
		}
		items = append(items, item)
	}
	return items
}

func parseItem(plugin, origin string, obj pluginmodule.Object) types.MediaItem {
	item := types.MediaItem{
		ID:          stringOf(obj[keyID]),
		Title:       stringOf(obj[keyTitle]),
		Artist:      stringOf(obj[keyArtist]),
		Album:       stringOf(obj[keyAlbum]),
		Subtitle:    stringOf(obj[keySubtitle]),
		DurationMs:  durationOf(obj[keyDuration]),
		SourceURI:   stringOf(obj[keySource]),
		ArtworkURI:  stringOf(obj[keyArtwork]),
		Kind:        types.ParseKind(stringOf(obj[keyType])),
		OwnerPlugin: plugin,
		Extras:      map[string]interface{}{types.ExtraOrigin: origin},
	}

	for k, v := range obj {
		switch k {
		case keyID, keyTitle, keyArtist, keyAlbum, keySubtitle, keyDuration, keySource, keyArtwork, keyType:
		default:
			item.Extras[k] = v
		}
	}

	if item.ID == "" {
		item.ID = utils.ContentID(plugin, item.Title, item.Artist, item.SourceURI)
	}
	if item.Subtitle == "" {
		item.Subtitle = item.Artist
	}
	return item
}

func stringOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func durationOf(v interface{}) int64 {
	var ms int64
	switch t := v.(type) {
	case float64:
		ms = int64(t)
	case int:
		ms = int64(t)
	case int64:
		ms = t
	case json.Number:
		n, _ := t.Float64()
		ms = int64(n)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			ms = int64(n)
		}
	}
	if ms < 0 {
		return 0
	}
	return ms
}

// applyCues copies cue points and last positions recorded in storage onto
// matching scanned items.
func applyCues(items []types.MediaItem, stored []types.MediaItem) []types.MediaItem {
	if len(stored) == 0 {
		return items
	}
	byID := make(map[string]types.MediaItem, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}

	out := make([]types.MediaItem, len(items))
	for i, item := range items {
		s, ok := byID[item.ID]
		if !ok {
			out[i] = item
			continue
		}
		for _, key := range []string{types.ExtraCuePoints, types.ExtraLastPosition} {
			if v, ok := s.Extras[key]; ok {
				item = item.WithExtra(key, v)
			}
		}
		out[i] = item
	}
	return out
}
