package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/mediasink/internal/metrics"
	"github.com/snarg/mediasink/internal/protocol"
	"github.com/snarg/mediasink/internal/queue"
	"github.com/snarg/mediasink/internal/registry"
)

// UploadHandler receives a producer's chunk stream, reassembles it,
// verifies integrity, checks for duplicates, and admits the result into
// the bounded queue.
type UploadHandler struct {
	queue    *queue.BoundedQueue
	registry *registry.Registry
}

func NewUploadHandler(q *queue.BoundedQueue, reg *registry.Registry) *UploadHandler {
	return &UploadHandler{queue: q, registry: reg}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	if ct := r.Header.Get("Content-Type"); ct != protocol.ContentType {
		reject(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type %q", ct), false)
		return
	}

	// Reassemble: one metadata frame, then chunks in arrival order.
	fr := protocol.NewReader(r.Body)
	var buf bytes.Buffer
	chunks := 0
	for {
		c, err := fr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, protocol.ErrDataBeforeMetadata) {
			metrics.UploadsRejectedTotal.WithLabelValues("malformed").Inc()
			reject(w, http.StatusBadRequest, "metadata must precede data chunks", false)
			return
		}
		if err != nil {
			metrics.UploadsRejectedTotal.WithLabelValues("malformed").Inc()
			reject(w, http.StatusBadRequest, fmt.Sprintf("malformed stream: %v", err), false)
			return
		}
		chunks++
		buf.Write(c.Payload)
		if c.Last {
			break
		}
	}

	md, ok := fr.Metadata()
	if !ok {
		metrics.UploadsRejectedTotal.WithLabelValues("malformed").Inc()
		reject(w, http.StatusBadRequest, "stream ended before metadata", false)
		return
	}
	if md.Filename == "" {
		metrics.UploadsRejectedTotal.WithLabelValues("malformed").Inc()
		reject(w, http.StatusBadRequest, "metadata missing filename", false)
		return
	}

	data := buf.Bytes()
	hash := protocol.HashBytes(data)

	// Integrity: a declared hash must match the reassembled buffer.
	if md.ContentHash != "" && md.ContentHash != hash {
		metrics.UploadsRejectedTotal.WithLabelValues("integrity").Inc()
		log.Warn().
			Str("filename", md.Filename).
			Str("declared", md.ContentHash).
			Str("computed", hash).
			Msg("upload rejected: hash mismatch")
		reject(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("content hash mismatch: declared %s, got %s", md.ContentHash, hash), false)
		return
	}

	if e, dup := h.registry.IsDuplicate(hash); dup {
		metrics.UploadsRejectedTotal.WithLabelValues("duplicate").Inc()
		reject(w, http.StatusConflict, duplicateMessage(e), false)
		return
	}

	job := queue.Job{
		ID:          uuid.NewString(),
		Filename:    md.Filename,
		Data:        data,
		ProducerID:  md.ProducerID,
		ContentHash: hash,
		EnqueuedAt:  time.Now(),
	}

	// Register before enqueue so two racing uploads of the same content
	// cannot both be admitted; the loser observes the duplicate here.
	if err := h.registry.Register(hash, md.Filename, registry.PlaceholderPath, md.ProducerID); err != nil {
		metrics.UploadsRejectedTotal.WithLabelValues("duplicate").Inc()
		e, _ := h.registry.IsDuplicate(hash)
		reject(w, http.StatusConflict, duplicateMessage(e), false)
		return
	}

	if !h.queue.Enqueue(job) {
		// Roll the placeholder back: nothing was admitted.
		if err := h.registry.Remove(hash); err != nil {
			log.Error().Err(err).Str("hash", hash).Msg("placeholder rollback failed")
		}
		metrics.UploadsRejectedTotal.WithLabelValues("queue_full").Inc()
		log.Info().
			Str("filename", md.Filename).
			Str("producer", md.ProducerID).
			Msg("upload dropped: queue full")
		reject(w, http.StatusServiceUnavailable, "queue full, retry with backoff", true)
		return
	}

	metrics.UploadsAcceptedTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(len(data)))
	log.Info().
		Str("job_id", job.ID).
		Str("filename", md.Filename).
		Str("producer", md.ProducerID).
		Int("chunks", chunks).
		Int("bytes", len(data)).
		Msg("upload accepted")

	WriteJSON(w, http.StatusOK, protocol.Result{
		Success: true,
		Message: fmt.Sprintf("accepted %q (%d bytes)", md.Filename, len(data)),
		VideoID: job.ID,
	})
}

func duplicateMessage(e registry.Entry) string {
	return fmt.Sprintf("duplicate content: already uploaded as %q at %s",
		e.Filename, e.UploadedAt.Format(time.RFC3339))
}

func reject(w http.ResponseWriter, status int, msg string, queueFull bool) {
	WriteJSON(w, status, protocol.Result{
		Success:   false,
		Message:   msg,
		QueueFull: queueFull,
	})
}
