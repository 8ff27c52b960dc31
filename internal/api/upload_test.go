package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/config"
	"github.com/snarg/mediasink/internal/dlq"
	"github.com/snarg/mediasink/internal/protocol"
	"github.com/snarg/mediasink/internal/queue"
	"github.com/snarg/mediasink/internal/registry"
)

type testEnv struct {
	server   *Server
	queue    *queue.BoundedQueue
	registry *registry.Registry
	dlq      *dlq.Store
}

func newTestEnv(t *testing.T, capacity int, authToken string) *testEnv {
	t.Helper()
	q := queue.NewBoundedQueue(capacity)
	reg, err := registry.Load(filepath.Join(t.TempDir(), "registry.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	dl := dlq.NewStore(zerolog.Nop())
	cfg := &config.Config{
		HTTPAddr:     ":0",
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		IdleTimeout:  time.Minute,
		AuthToken:    authToken,
	}
	srv := NewServer(cfg, q, reg, dl, "test", time.Now(), zerolog.Nop())
	return &testEnv{server: srv, queue: q, registry: reg, dlq: dl}
}

// buildStream encodes a metadata frame plus payload split into chunks.
func buildStream(t *testing.T, md protocol.Metadata, parts ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	if err := w.WriteMetadata(md); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	for i, part := range parts {
		if err := w.WriteChunk(protocol.Chunk{Sequence: uint32(i), Payload: []byte(part)}); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	if err := w.Close(uint32(len(parts))); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf
}

func postUpload(t *testing.T, env *testEnv, body *bytes.Buffer) (*httptest.ResponseRecorder, protocol.Result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", protocol.ContentType)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	var res protocol.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("parse response %q: %v", rec.Body.String(), err)
	}
	return rec, res
}

func TestUploadAccepted(t *testing.T) {
	env := newTestEnv(t, 4, "")
	md := protocol.Metadata{
		Filename:    "greeting.mp4",
		ProducerID:  "prod-1",
		ContentHash: protocol.HashBytes([]byte("Hello")),
	}

	rec, res := postUpload(t, env, buildStream(t, md, "He", "llo"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !res.Success || res.VideoID == "" {
		t.Fatalf("result = %+v, want success with job id", res)
	}

	j, ok := env.queue.Dequeue()
	if !ok || string(j.Data) != "Hello" {
		t.Fatalf("queued job data = %q ok=%v, want Hello", j.Data, ok)
	}
	if j.ID != res.VideoID {
		t.Errorf("job id %q != response id %q", j.ID, res.VideoID)
	}

	// Placeholder registered immediately, before persistence.
	e, dup := env.registry.IsDuplicate(md.ContentHash)
	if !dup || e.Path != registry.PlaceholderPath {
		t.Fatalf("registry entry = %+v dup=%v, want placeholder", e, dup)
	}
}

func TestUploadHashMismatchRejected(t *testing.T) {
	env := newTestEnv(t, 4, "")
	md := protocol.Metadata{
		Filename:    "bad.mp4",
		ProducerID:  "prod-1",
		ContentHash: "00000000000000000000000000000000",
	}

	rec, res := postUpload(t, env, buildStream(t, md, "He", "llo"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if res.Success {
		t.Fatal("result.Success = true, want false")
	}
	if env.queue.Size() != 0 {
		t.Fatal("rejected content was enqueued")
	}
	if env.registry.Size() != 0 {
		t.Fatal("rejected content touched the registry")
	}
}

func TestUploadDuplicateRejected(t *testing.T) {
	env := newTestEnv(t, 4, "")
	md := protocol.Metadata{Filename: "orig.mp4", ProducerID: "prod-1"}

	rec, _ := postUpload(t, env, buildStream(t, md, "same-bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first upload status = %d", rec.Code)
	}

	md2 := protocol.Metadata{Filename: "copy.mp4", ProducerID: "prod-2"}
	rec2, res2 := postUpload(t, env, buildStream(t, md2, "same-bytes"))
	if rec2.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec2.Code)
	}
	if res2.Success || res2.QueueFull {
		t.Fatalf("duplicate result = %+v", res2)
	}
	if env.queue.Size() != 1 {
		t.Fatalf("queue size = %d, want 1 (duplicate not enqueued)", env.queue.Size())
	}
}

func TestUploadQueueFull(t *testing.T) {
	env := newTestEnv(t, 1, "")

	rec, _ := postUpload(t, env, buildStream(t, protocol.Metadata{Filename: "a.mp4"}, "aaa"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first upload status = %d", rec.Code)
	}

	rec2, res2 := postUpload(t, env, buildStream(t, protocol.Metadata{Filename: "b.mp4"}, "bbb"))
	if rec2.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec2.Code)
	}
	if !res2.QueueFull {
		t.Fatalf("result = %+v, want queue_full flag", res2)
	}

	// The rolled-back placeholder must not block a later retry.
	hashB := protocol.HashBytes([]byte("bbb"))
	if _, dup := env.registry.IsDuplicate(hashB); dup {
		t.Fatal("queue-full rejection left a placeholder registration behind")
	}

	env.queue.Dequeue()
	rec3, res3 := postUpload(t, env, buildStream(t, protocol.Metadata{Filename: "b.mp4"}, "bbb"))
	if rec3.Code != http.StatusOK || !res3.Success {
		t.Fatalf("retry after drain = %d %+v", rec3.Code, res3)
	}
}

func TestUploadDataBeforeMetadata(t *testing.T) {
	env := newTestEnv(t, 4, "")

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	if err := w.WriteChunk(protocol.Chunk{Sequence: 0, Payload: []byte("rogue")}); err != nil {
		t.Fatal(err)
	}

	rec, res := postUpload(t, env, &buf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if res.Success {
		t.Fatal("want failure result")
	}
}

func TestUploadWrongContentType(t *testing.T) {
	env := newTestEnv(t, 4, "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", bytes.NewBufferString("junk"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestQueueStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, 2, "")
	env.queue.Enqueue(queue.Job{ID: "x"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/status", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	var status QueueStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("parse status: %v", err)
	}
	if status.CurrentSize != 1 || status.MaxSize != 2 || status.IsFull || status.Utilization != 0.5 {
		t.Fatalf("status = %+v", status)
	}
}
