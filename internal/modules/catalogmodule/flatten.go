package catalogmodule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule/mediaid"
	"github.com/mantonx/soundcrowd/internal/types"
)

// rootIndex is the result of flattening one local ingestion.
type rootIndex struct {
	items      map[string]types.MediaItem
	categories map[string][]string
}

// flatten builds root and the artist/album buckets from scanned items.
//
// Every item is placed in an artist and an album bucket. A bucket holding a
// single item is dissolved and the item is listed directly under root. A
// bucket holding more items stays a category and is represented in root by
// one COLLECTION item summarizing it. Items without artist or album go
// straight to root.
func flatten(scanned []types.MediaItem) rootIndex {
	index := rootIndex{
		items:      make(map[string]types.MediaItem),
		categories: make(map[string][]string),
	}

	var order []string
	for _, item := range scanned {
		if !item.Playable() {
			continue
		}
		if _, seen := index.items[item.ID]; !seen {
			order = append(order, item.ID)
		}
		index.items[item.ID] = item
	}

	type bucket struct {
		key    string
		value  string
		kind   string
		ids    []string
		member map[string]bool
	}
	var buckets []*bucket
	byKey := make(map[string]*bucket)
	bucketed := make(map[string]bool)

	for _, id := range order {
		item := index.items[id]
		if item.Kind != types.KindMedia {
			continue
		}
		for _, field := range []struct{ kind, value string }{
			{mediaid.Artist, item.Artist},
			{mediaid.Album, item.Album},
		} {
			if field.value == "" {
				continue
			}
			key := mediaid.Category(field.kind, mediaid.Escape(field.value))
			b, ok := byKey[key]
			if !ok {
				b = &bucket{key: key, value: field.value, kind: field.kind, member: make(map[string]bool)}
				byKey[key] = b
				buckets = append(buckets, b)
			}
			if !b.member[id] {
				b.member[id] = true
				b.ids = append(b.ids, id)
			}
			bucketed[id] = true
		}
	}

	var root []string
	inRoot := make(map[string]bool)
	addRoot := func(id string) {
		if !inRoot[id] {
			inRoot[id] = true
			root = append(root, id)
		}
	}

	for _, id := range order {
		if !bucketed[id] {
			addRoot(id)
		}
	}

	for _, b := range buckets {
		if len(b.ids) == 1 {
			addRoot(b.ids[0])
			continue
		}

		first := index.items[b.ids[0]]
		var total int64
		for _, id := range b.ids {
			total += index.items[id].DurationMs
		}
		node := types.MediaItem{
			ID:         b.key,
			Title:      b.value,
			Subtitle:   fmt.Sprintf("%d Tracks", len(b.ids)),
			DurationMs: total,
			ArtworkURI: first.ArtworkURI,
			Kind:       types.KindCollection,
		}
		if b.kind == mediaid.Album {
			node.Artist = first.Artist
			node.Album = b.value
		} else {
			node.Artist = b.value
		}
		index.items[node.ID] = node
		index.categories[b.key] = b.ids
		addRoot(node.ID)
	}

	sort.SliceStable(root, func(i, j int) bool {
		return strings.ToLower(index.items[root[i]].Title) < strings.ToLower(index.items[root[j]].Title)
	})
	if root == nil {
		root = []string{}
	}
	index.categories[mediaid.Root] = root
	return index
}
