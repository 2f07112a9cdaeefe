package api

import (
	"net/http"

	"github.com/vmnotes/vmt-engine/internal/transcribe"
)

type StatsResponse struct {
	Queue    transcribe.QueueStats `json:"queue"`
	Provider string                `json:"provider"`
	Model    string                `json:"model"`
}

// StatsHandler exposes queue depth and processing counters.
type StatsHandler struct {
	queue    *transcribe.Queue
	provider transcribe.Provider
}

func NewStatsHandler(queue *transcribe.Queue, provider transcribe.Provider) *StatsHandler {
	return &StatsHandler{queue: queue, provider: provider}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatsResponse{
		Queue:    h.queue.Stats(),
		Provider: h.provider.Name(),
		Model:    h.provider.Model(),
	})
}
