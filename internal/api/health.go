package api

import (
	"net/http"
	"time"

	"github.com/snarg/mediasink/internal/queue"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
}

type HealthHandler struct {
	queue     *queue.BoundedQueue
	version   string
	startTime time.Time
}

func NewHealthHandler(q *queue.BoundedQueue, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		queue:     q,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		QueueDepth:    h.queue.Size(),
		QueueCapacity: h.queue.Capacity(),
	})
}
