// internal/handler/events_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// EventsHandler ingests delivery and engagement callbacks.
type EventsHandler struct {
	Sink analytics.Sink
	Now  func() time.Time
}

// Track accepts delivered, open, click and reply events. Send events are
// produced by the dispatcher only.
func (h *EventsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var ev model.AnalyticsEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !ev.EventType.Valid() || ev.EventType == model.EventSend {
		http.Error(w, "unsupported event_type", http.StatusBadRequest)
		return
	}
	if !ev.Channel.Valid() {
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = h.now()
	}
	ev.Success = true

	if err := h.Sink.Track(r.Context(), &ev); err != nil {
		logx.L().Warnw("event_track_failed", "event_type", ev.EventType, "channel", ev.Channel, "error", err)
		http.Error(w, "event not recorded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *EventsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
