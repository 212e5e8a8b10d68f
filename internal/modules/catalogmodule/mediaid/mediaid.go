// Package mediaid encodes hierarchy-aware media ids of the form
//
//	segment[/segment...][|itemId]
//
// '/' separates category path segments and '|' separates the path from the
// leaf item id. An id without '|' is browsable (a category node). The same
// item reached through two browsing paths gets two ids that both resolve to
// one canonical item id.
package mediaid

import (
	"strings"
)

const (
	CategorySeparator = "/"
	LeafSeparator     = "|"
)

// Reserved category types.
const (
	Root    = "root"
	Artist  = "artist"
	Album   = "album"
	Plugins = "plugins"
	Search  = "search"
	Cues    = "cues"

	// QueryPrefix marks the segment carrying a plugin search query, as in
	// plugins/<category>/query:<q>.
	QueryPrefix = "query:"
)

var (
	escaper = strings.NewReplacer(
		"%", "%25",
		CategorySeparator, "%2F",
		LeafSeparator, "%7C",
		":", "%3A",
	)
	unescaper = strings.NewReplacer(
		"%2F", CategorySeparator,
		"%7C", LeafSeparator,
		"%3A", ":",
		"%25", "%",
	)
)

// Escape makes a free-form value (artist name, query) safe to use as a single
// path segment.
func Escape(value string) string {
	return escaper.Replace(value)
}

// Unescape reverses Escape.
func Unescape(segment string) string {
	return unescaper.Replace(segment)
}

// Encode builds a hierarchy-aware id from path segments and an optional leaf
// item id. Segments are used as given; callers escape free-form values.
func Encode(itemID string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(segments, CategorySeparator))
	if itemID != "" {
		sb.WriteString(LeafSeparator)
		sb.WriteString(itemID)
	}
	return sb.String()
}

// Category joins segments into a browsable category key.
func Category(segments ...string) string {
	return strings.Join(segments, CategorySeparator)
}

// ExtractID returns the canonical item id carried by a hierarchy-aware id.
// A browsable id is returned unchanged.
func ExtractID(mediaID string) string {
	if pos := strings.Index(mediaID, LeafSeparator); pos >= 0 {
		return mediaID[pos+1:]
	}
	return mediaID
}

// Path returns the category path part of mediaID (everything before the leaf).
func Path(mediaID string) string {
	if pos := strings.Index(mediaID, LeafSeparator); pos >= 0 {
		return mediaID[:pos]
	}
	return mediaID
}

// Hierarchy splits the category path of mediaID into its segments, dropping
// empty trailing segments.
func Hierarchy(mediaID string) []string {
	path := Path(mediaID)
	if path == "" {
		return nil
	}
	segments := strings.Split(path, CategorySeparator)
	for len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	return segments
}

// IsBrowsable reports whether mediaID addresses a category node.
func IsBrowsable(mediaID string) bool {
	return !strings.Contains(mediaID, LeafSeparator)
}

// CategoryValue returns the value of a two-segment "<type>/<value>" key.
func CategoryValue(mediaID string) (string, bool) {
	h := Hierarchy(mediaID)
	if len(h) != 2 {
		return "", false
	}
	return Unescape(h[1]), true
}

// IsPluginPath reports whether mediaID lives under the plugin namespace.
func IsPluginPath(mediaID string) bool {
	h := Hierarchy(mediaID)
	return len(h) >= 2 && h[0] == Plugins
}

// PluginRequest is a decoded plugin-namespace path.
type PluginRequest struct {
	Category    string
	Subcategory string // joined remaining segments, unescaped
	Query       string
	IsQuery     bool
}

// ParsePluginPath decodes plugins/<category>[/<sub>...|/query:<q>].
func ParsePluginPath(mediaID string) (PluginRequest, bool) {
	h := Hierarchy(mediaID)
	if len(h) < 2 || h[0] != Plugins || h[1] == "" {
		return PluginRequest{}, false
	}

	req := PluginRequest{Category: Unescape(h[1])}
	rest := h[2:]
	if len(rest) == 1 && strings.HasPrefix(rest[0], QueryPrefix) {
		req.IsQuery = true
		req.Query = Unescape(strings.TrimPrefix(rest[0], QueryPrefix))
		return req, true
	}

	subs := make([]string, 0, len(rest))
	for _, s := range rest {
		subs = append(subs, Unescape(s))
	}
	req.Subcategory = strings.Join(subs, CategorySeparator)
	return req, true
}

// PluginCategory builds the browsable id for a plugin category.
func PluginCategory(category string, subcategories ...string) string {
	segments := []string{Plugins, Escape(category)}
	for _, s := range subcategories {
		segments = append(segments, Escape(s))
	}
	return Category(segments...)
}

// PluginQuery builds the browsable id for a plugin search.
func PluginQuery(category, query string) string {
	return Category(Plugins, Escape(category), QueryPrefix+Escape(query))
}

// SearchCategory builds the browsable id for a local search.
func SearchCategory(query string) string {
	return Category(Search, Escape(query))
}
