package api

import (
	"net/http"
	"time"

	"github.com/vmnotes/vmt-engine/internal/transcribe"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports liveness and queue state.
type HealthHandler struct {
	queue     *transcribe.Queue
	version   string
	startTime time.Time
}

func NewHealthHandler(queue *transcribe.Queue, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{queue: queue, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{"queue": "ok"}
	switch {
	case h.queue.Stopped():
		status = "degraded"
		checks["queue"] = "stopped"
	case h.queue.Stats().Pending > 0:
		checks["queue"] = "busy"
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
