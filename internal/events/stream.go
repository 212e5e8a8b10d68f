package events

import (
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/r3labs/sse/v2"
)

// StreamName is the server-sent-event stream carrying bus events.
const StreamName = "catalog"

// Stream republishes bus events as server-sent events.
type Stream struct {
	server *sse.Server
	logger hclog.Logger
}

// NewStream creates the SSE server and subscribes it to every event on bus.
func NewStream(bus *Bus, logger hclog.Logger) *Stream {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(StreamName)

	s := &Stream{server: server, logger: logger.Named("sse")}
	bus.Subscribe("sse", EventFilter{}, s.publish)
	return s
}

// ServeHTTP serves the stream; clients pass ?stream=catalog.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		q := r.URL.Query()
		q.Set("stream", StreamName)
		r.URL.RawQuery = q.Encode()
	}
	s.server.ServeHTTP(w, r)
}

// Close shuts down every open stream.
func (s *Stream) Close() {
	s.server.Close()
}

func (s *Stream) publish(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.server.Publish(StreamName, &sse.Event{
		ID:    []byte(event.ID),
		Event: []byte(event.Type),
		Data:  data,
	})
	return nil
}
