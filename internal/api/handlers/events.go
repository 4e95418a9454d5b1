package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/api"
	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/go-chi/chi/v5"
)

const defaultHeartbeat = 15 * time.Second

type EventSubscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error)
}

type EventsHandler struct {
	bus       EventSubscriber
	log       *logger.Logger
	heartbeat time.Duration
}

func NewEventsHandler(bus EventSubscriber, log *logger.Logger) *EventsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EventsHandler{bus: bus, log: log, heartbeat: defaultHeartbeat}
}

// Stream relays upload events for one channel as server-sent events until
// the client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel == "" {
		api.Error(w, http.StatusBadRequest, "channel is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	events, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				h.log.Warn("failed to encode event", "channel", channel, "event", event.Name, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\n", event.Name)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
