package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/dlq"
	"github.com/snarg/mediasink/internal/queue"
	"github.com/snarg/mediasink/internal/registry"
)

// AdminHandler exposes the operator surface over the dead-letter store and
// the dedup registry. Payload bytes never leave the process through these
// endpoints, only metadata.
type AdminHandler struct {
	queue    *queue.BoundedQueue
	registry *registry.Registry
	dlq      *dlq.Store
	log      zerolog.Logger
}

func NewAdminHandler(q *queue.BoundedQueue, reg *registry.Registry, dl *dlq.Store, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		queue:    q,
		registry: reg,
		dlq:      dl,
		log:      log.With().Str("component", "admin").Logger(),
	}
}

// FailedJobView is the wire form of a dead-lettered job.
type FailedJobView struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ProducerID  string    `json:"producer_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	SizeBytes   int       `json:"size_bytes"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
	Attempts    int       `json:"attempts"`
}

func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	entries := h.dlq.List()
	views := make([]FailedJobView, 0, len(entries))
	for _, fj := range entries {
		views = append(views, FailedJobView{
			ID:          fj.Job.ID,
			Filename:    fj.Job.Filename,
			ProducerID:  fj.Job.ProducerID,
			ContentHash: fj.Job.ContentHash,
			SizeBytes:   len(fj.Job.Data),
			Error:       fj.Error,
			FailedAt:    fj.FailedAt,
			Attempts:    fj.Attempts,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"count":   len(views),
		"entries": views,
	})
}

func (h *AdminHandler) RequeueDLQ(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.dlq.Requeue(id, h.queue)
	switch {
	case errors.Is(err, dlq.ErrNotFound):
		WriteError(w, http.StatusNotFound, "no dead-letter entry with id "+id)
	case errors.Is(err, dlq.ErrQueueFull):
		WriteError(w, http.StatusConflict, "queue full, entry kept in dead-letter store")
	case err != nil:
		WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		h.log.Info().Str("job_id", id).Msg("dead-lettered job requeued by operator")
		WriteJSON(w, http.StatusOK, map[string]any{"requeued": id})
	}
}

func (h *AdminHandler) DeleteDLQ(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.dlq.Remove(id) {
		WriteError(w, http.StatusNotFound, "no dead-letter entry with id "+id)
		return
	}
	h.log.Info().Str("job_id", id).Msg("dead-letter entry deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ClearDLQ(w http.ResponseWriter, r *http.Request) {
	n := h.dlq.Clear()
	h.log.Info().Int("removed", n).Msg("dead-letter store cleared")
	WriteJSON(w, http.StatusOK, map[string]any{"removed": n})
}

// RegistryEntryView is the wire form of a registry entry.
type RegistryEntryView struct {
	Hash          string    `json:"hash"`
	Filename      string    `json:"filename"`
	ProducerID    string    `json:"producer_id"`
	UploadedAt    time.Time `json:"uploaded_at"`
	Path          string    `json:"path"`
	PreviewPath   string    `json:"preview_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
}

func (h *AdminHandler) ListRegistry(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Snapshot()
	views := make([]RegistryEntryView, 0, len(snap))
	for hash, e := range snap {
		views = append(views, RegistryEntryView{
			Hash:          hash,
			Filename:      e.Filename,
			ProducerID:    e.ProducerID,
			UploadedAt:    e.UploadedAt,
			Path:          e.Path,
			PreviewPath:   e.PreviewPath,
			ThumbnailPath: e.ThumbnailPath,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"count":   len(views),
		"entries": views,
	})
}

func (h *AdminHandler) SweepRegistry(w http.ResponseWriter, r *http.Request) {
	n := h.registry.ValidateAndCleanup()
	WriteJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (h *AdminHandler) ClearRegistry(w http.ResponseWriter, r *http.Request) {
	n := h.registry.Clear()
	h.log.Info().Int("removed", n).Msg("registry cleared by operator")
	WriteJSON(w, http.StatusOK, map[string]any{"removed": n})
}
