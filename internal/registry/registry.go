// Package registry tracks accepted uploads by content hash so duplicate
// payloads are rejected at the door. The table is persisted in full to a
// JSON file on every mutation; the on-disk copy never lags a successful
// in-memory change.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PlaceholderPath marks an entry registered before its file has been
// persisted. It closes the dedup race window between acceptance and the
// consumer's write, and is never treated as a stale path.
const PlaceholderPath = "pending"

// Entry records one accepted upload.
type Entry struct {
	Filename      string    `json:"filename"`
	ProducerID    string    `json:"producer_id"`
	UploadedAt    time.Time `json:"uploaded_at"`
	Path          string    `json:"path"`
	PreviewPath   string    `json:"preview_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
}

// Registry maps hex content hashes to entries. All operations are safe for
// concurrent use; every mutation persists synchronously before returning.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	path    string
	log     zerolog.Logger
}

// Load opens the registry file, creating an empty table if it is missing.
func Load(path string, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]Entry),
		path:    path,
		log:     log.With().Str("component", "registry").Logger(),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if err := json.Unmarshal(data, &r.entries); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	r.log.Info().Int("entries", len(r.entries)).Msg("registry loaded")
	return r, nil
}

// IsDuplicate reports whether hash is already registered. An entry whose
// persisted file has since disappeared is evicted and does not count.
func (r *Registry) IsDuplicate(hash string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return Entry{}, false
	}
	if r.stale(e) {
		delete(r.entries, hash)
		if err := r.persistLocked(); err != nil {
			r.log.Error().Err(err).Str("hash", hash).Msg("persist after stale eviction failed")
		}
		r.log.Debug().Str("hash", hash).Str("path", e.Path).Msg("evicted stale registry entry")
		return Entry{}, false
	}
	return e, true
}

// Register adds an entry for hash. It fails when a live entry already
// exists, so of two racing registrations exactly one wins.
func (r *Registry) Register(hash, filename, path, producerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[hash]; ok && !r.stale(e) {
		return fmt.Errorf("hash %s already registered for %q at %s", hash, e.Filename, e.UploadedAt.Format(time.RFC3339))
	}
	r.entries[hash] = Entry{
		Filename:   filename,
		ProducerID: producerID,
		UploadedAt: time.Now(),
		Path:       path,
	}
	return r.persistLocked()
}

// UpdatePath points an existing entry at its final on-disk location.
func (r *Registry) UpdatePath(hash, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return fmt.Errorf("hash %s not registered", hash)
	}
	e.Path = path
	r.entries[hash] = e
	return r.persistLocked()
}

// Remove deletes the entry for hash if present.
func (r *Registry) Remove(hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[hash]; !ok {
		return nil
	}
	delete(r.entries, hash)
	return r.persistLocked()
}

// ValidateAndCleanup sweeps the whole table, purging entries whose files
// no longer exist. Returns the number removed.
func (r *Registry) ValidateAndCleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for hash, e := range r.entries {
		if r.stale(e) {
			delete(r.entries, hash)
			removed++
		}
	}
	if removed > 0 {
		if err := r.persistLocked(); err != nil {
			r.log.Error().Err(err).Msg("persist after sweep failed")
		}
		r.log.Info().Int("removed", removed).Msg("registry sweep purged stale entries")
	}
	return removed
}

// Clear empties the table. Returns the number of entries removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	r.entries = make(map[string]Entry)
	if err := r.persistLocked(); err != nil {
		r.log.Error().Err(err).Msg("persist after clear failed")
	}
	return n
}

// Snapshot returns a copy of the table keyed by hash.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Size returns the number of registered hashes.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) stale(e Entry) bool {
	if e.Path == PlaceholderPath {
		return false
	}
	_, err := os.Stat(e.Path)
	return err != nil
}

// persistLocked rewrites the full table. Caller holds r.mu. A crash between
// an in-memory mutation and this write loses the latest registration; there
// is no cross-process lock on the file.
func (r *Registry) persistLocked() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
