package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/soundcrowd/internal/events"
)

// EventsHandler serves recent events and mounts the live transports.
type EventsHandler struct {
	bus    *events.Bus
	hub    http.Handler
	stream http.Handler
}

// NewEventsHandler creates a handler. hub and stream may be nil.
func NewEventsHandler(bus *events.Bus, hub, stream http.Handler) *EventsHandler {
	return &EventsHandler{bus: bus, hub: hub, stream: stream}
}

// Recent returns the newest events, oldest first.
func (h *EventsHandler) Recent(c *gin.Context) {
	recent := h.bus.Recent(queryInt(c, "limit", 50))
	if recent == nil {
		recent = []events.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": recent, "count": len(recent)})
}

// WebSocket upgrades the request and streams every event.
func (h *EventsHandler) WebSocket(c *gin.Context) {
	if h.hub == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.hub.ServeHTTP(c.Writer, c.Request)
}

// Stream serves events as server-sent events.
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.stream == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.stream.ServeHTTP(c.Writer, c.Request)
}
