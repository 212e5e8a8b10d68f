// Package events provides the in-process event bus that carries catalog and
// plugin notifications to websocket and server-sent-event clients.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Catalog events
	EventCatalogStateChanged   EventType = "catalog.state_changed"
	EventCatalogCategoryLoaded EventType = "catalog.category.loaded"
	EventCatalogCategoryFailed EventType = "catalog.category.failed"
	EventCatalogItemUpdated    EventType = "catalog.item.updated"

	// Plugin events
	EventPluginLoaded EventType = "plugin.loaded"
	EventPluginError  EventType = "plugin.error"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // catalog, plugin:<name>, system
	Title     string                 `json:"title,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter selects events for a subscription. Empty fields match everything.
type EventFilter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
}

// Matches reports whether event passes the filter.
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Sources) > 0 {
		for _, s := range f.Sources {
			if s == event.Source {
				return true
			}
		}
		return false
	}
	return true
}

// Subscription represents an event subscription
type Subscription struct {
	ID           string       `json:"id"`
	Filter       EventFilter  `json:"filter"`
	Handler      EventHandler `json:"-"`
	Subscriber   string       `json:"subscriber"`
	Created      time.Time    `json:"created"`
	TriggerCount int64        `json:"trigger_count"`
}

// BusConfig configures the event bus
type BusConfig struct {
	BufferSize   int
	RecentEvents int
}

// DefaultBusConfig returns default configuration
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize:   256,
		RecentEvents: 100,
	}
}
