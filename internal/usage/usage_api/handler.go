package usage_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/usage"
	"ms-checkin/internal/utils"
)

type Handler struct {
	Aggregator *usage.Aggregator
	Emitter    *sse.LiveFeedEmitter
	Logger     *logger.Logger
}

func NewHandler(aggregator *usage.Aggregator, emitter *sse.LiveFeedEmitter, log *logger.Logger) *Handler {
	return &Handler{Aggregator: aggregator, Emitter: emitter, Logger: log}
}

// Snapshot handles GET /events/{eventID}/usage: compute once, no stream.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	summary, err := h.Aggregator.Snapshot(r.Context(), eventID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to compute usage", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("usage summary", summary))
}

// Live handles GET /events/{eventID}/usage/live: an SSE stream delivering a
// recomputed summary on every ticket change until the client disconnects.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("streaming unsupported", ""))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := h.Emitter.SubscribeToUsage(r.Context(), eventID)

	cancel, err := h.Aggregator.SubscribeUsage(r.Context(), eventID, nil)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to subscribe", err.Error()))
		return
	}
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case summary, ok := <-clientChan:
			if !ok {
				return
			}
			payload, err := json.Marshal(summary)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
