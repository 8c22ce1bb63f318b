package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/dispatch"
)

type EventsHandler struct {
	broker *dispatch.Broker
	logger zerolog.Logger
}

func NewEventsHandler(broker *dispatch.Broker, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		broker: broker,
		logger: logger.With().Str("handler", "events").Logger(),
	}
}

// Alerts streams newly created alerts as server-sent events.
func (h *EventsHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, dispatch.TopicAlerts)
}

// RemedyUpdates streams remedy changes as server-sent events.
func (h *EventsHandler) RemedyUpdates(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, dispatch.TopicRemedyUpdates)
}

func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := h.broker.Subscribe(topic)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				h.logger.Warn().Err(err).Str("topic", topic).Msg("dropping unencodable event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Topic, payload)
			flusher.Flush()
		}
	}
}
