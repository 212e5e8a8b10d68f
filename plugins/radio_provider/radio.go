package main

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	plugins "github.com/mantonx/soundcrowd/sdk"
)

//go:embed icon.png
var icon []byte

const (
	categoryStations = "stations"
	categoryGenres   = "genres"

	pageSize     = 20
	redirectHost = "radio.soundcrowd.app"
)

var errUnknownCategory = errors.New("unknown category")

// Station is one internet radio stream.
type Station struct {
	ID     string
	Name   string
	Genre  string
	Stream string
	Logo   string
}

var defaultStations = []Station{
	{ID: "fm4", Name: "FM4", Genre: "Alternative", Stream: "https://orf-live.ors-shoutcast.at/fm4-q2a"},
	{ID: "kexp", Name: "KEXP", Genre: "Alternative", Stream: "https://kexp-mp3-128.streamguys1.com/kexp128.mp3"},
	{ID: "jazzradio", Name: "Jazz Radio", Genre: "Jazz", Stream: "https://jazzradio.ice.infomaniak.ch/jazzradio-high.mp3"},
	{ID: "tsf", Name: "TSF Jazz", Genre: "Jazz", Stream: "https://tsfjazz.ice.infomaniak.ch/tsfjazz-high.mp3"},
	{ID: "radioswissclassic", Name: "Radio Swiss Classic", Genre: "Classical", Stream: "https://stream.srg-ssr.ch/m/rsc_de/mp3_128"},
}

// RadioProvider serves a fixed station list. A login through the redirect
// handler stores a token that is appended to stream URLs.
type RadioProvider struct {
	plugins.BaseProvider

	stations []Station
	byID     map[string]Station

	mu    sync.RWMutex
	token string
}

// NewRadioProvider creates a provider over stations.
func NewRadioProvider(stations []Station) *RadioProvider {
	byID := make(map[string]Station, len(stations))
	for _, s := range stations {
		byID[s.ID] = s
	}
	return &RadioProvider{stations: stations, byID: byID}
}

func (p *RadioProvider) Name() string { return "Radio" }

func (p *RadioProvider) MediaCategories() []string {
	return []string{categoryStations, categoryGenres}
}

func (p *RadioProvider) GetMediaItems(category string, callback plugins.Callback) {
	switch category {
	case categoryStations:
		callback.OnResult(p.objects(p.stations))
	case categoryGenres:
		counts := map[string]int{}
		for _, s := range p.stations {
			counts[s.Genre]++
		}
		genres := make([]string, 0, len(counts))
		for g := range counts {
			genres = append(genres, g)
		}
		sort.Strings(genres)

		out := make([]plugins.Object, 0, len(genres))
		for _, g := range genres {
			out = append(out, plugins.Object{
				"id":       g,
				"title":    g,
				"subtitle": fmt.Sprintf("%d Stations", counts[g]),
				"type":     "COLLECTION",
			})
		}
		callback.OnResult(out)
	default:
		callback.OnError(fmt.Errorf("%w: %s", errUnknownCategory, category))
	}
}

func (p *RadioProvider) GetSubcategoryItems(category, subcategory string, callback plugins.Callback) {
	if category != categoryGenres {
		callback.OnError(fmt.Errorf("%w: %s", errUnknownCategory, category))
		return
	}
	var matched []Station
	for _, s := range p.stations {
		if strings.EqualFold(s.Genre, subcategory) {
			matched = append(matched, s)
		}
	}
	callback.OnResult(p.objects(matched))
}

// SearchMediaItems matches station names and genres, pageSize results per page.
func (p *RadioProvider) SearchMediaItems(category, query string, page int, callback plugins.Callback) {
	q := strings.ToLower(strings.TrimSpace(query))
	var matched []Station
	for _, s := range p.stations {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Genre), q) {
			matched = append(matched, s)
		}
	}

	start := page * pageSize
	if start >= len(matched) {
		callback.OnResult([]plugins.Object{})
		return
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	callback.OnResult(p.objects(matched[start:end]))
}

func (p *RadioProvider) GetMediaURL(metadata plugins.Object, callback plugins.Callback) {
	id, _ := metadata["id"].(string)
	s, ok := p.byID[id]
	if !ok {
		// unknown stations report failure rather than an error
		callback.OnResult(false)
		return
	}

	stream := s.Stream
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token != "" {
		stream += "?token=" + url.QueryEscape(token)
	}
	callback.OnResult(plugins.Object{"url": stream})
}

func (p *RadioProvider) Preferences() []plugins.Preference {
	return []plugins.Preference{
		{Key: "region", Label: "Region", Description: "Preferred station region"},
		{Key: "token", Label: "Access token", Description: "Set by logging in", Secret: true},
	}
}

func (p *RadioProvider) Icon() []byte { return icon }

func (p *RadioProvider) Callbacks() map[string]plugins.RedirectHandler {
	return map[string]plugins.RedirectHandler{
		redirectHost: p.handleLogin,
	}
}

func (p *RadioProvider) handleLogin(query string) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return
	}
	if token := values.Get("token"); token != "" {
		p.mu.Lock()
		p.token = token
		p.mu.Unlock()
	}
}

func (p *RadioProvider) objects(stations []Station) []plugins.Object {
	out := make([]plugins.Object, 0, len(stations))
	for _, s := range stations {
		out = append(out, plugins.Object{
			"id":       s.ID,
			"title":    s.Name,
			"artist":   s.Genre,
			"subtitle": s.Genre,
			"source":   "radio://" + s.ID,
			"artwork":  s.Logo,
			"type":     "MEDIA",
			"genre":    s.Genre,
		})
	}
	return out
}
