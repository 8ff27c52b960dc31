package api

import (
	"net/http"

	"github.com/snarg/mediasink/internal/queue"
)

// QueueStatusResponse reports the bounded queue's current occupancy.
type QueueStatusResponse struct {
	CurrentSize int     `json:"current_size"`
	MaxSize     int     `json:"max_size"`
	IsFull      bool    `json:"is_full"`
	Utilization float64 `json:"utilization"`
}

// StatusHandler serves queue occupancy for producers and dashboards.
type StatusHandler struct {
	queue *queue.BoundedQueue
}

func NewStatusHandler(q *queue.BoundedQueue) *StatusHandler {
	return &StatusHandler{queue: q}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, QueueStatusResponse{
		CurrentSize: h.queue.Size(),
		MaxSize:     h.queue.Capacity(),
		IsFull:      h.queue.IsFull(),
		Utilization: h.queue.Utilization(),
	})
}
