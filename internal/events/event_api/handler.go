package event_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-checkin/internal/events"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/utils"
)

type Handler struct {
	Store     events.EventStore
	Emitter   *sse.LiveFeedEmitter
	Logger    *logger.Logger
	BatchSize int // 0 means the store's id-filter cap
}

func NewHandler(store events.EventStore, emitter *sse.LiveFeedEmitter, log *logger.Logger) *Handler {
	return &Handler{Store: store, Emitter: emitter, Logger: log}
}

func (h *Handler) newManager() *events.Manager {
	manager := events.NewManager(h.Store, h.Logger)
	if h.BatchSize > 0 {
		manager.BatchSize = h.BatchSize
	}
	return manager
}

// List handles GET /events?user={uid}: the one-shot batched fetch.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user")
	if uid == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("user query parameter is required", ""))
		return
	}

	manager := h.newManager()
	list, err := manager.EventsForUser(r.Context(), uid)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load events", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("events", list))
}

// Live handles GET /events/live?user={uid}: an SSE stream of the user's
// merged event list, re-emitted on every change until the client disconnects.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user")
	if uid == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("user query parameter is required", ""))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("streaming unsupported", ""))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// One manager per connection: the connection is the logical subscriber,
	// and closing it must tear down every batch listener underneath.
	manager := h.newManager()
	clientChan := h.Emitter.SubscribeToEventList(r.Context(), uid)

	if _, err := manager.SubscribeForUser(r.Context(), uid, func(list []models.Event) {
		h.Emitter.EmitEventList(uid, list)
	}); err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to subscribe", err.Error()))
		return
	}
	defer manager.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case list, ok := <-clientChan:
			if !ok {
				return
			}
			payload, err := json.Marshal(list)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
