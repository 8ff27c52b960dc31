// Package storage persists accepted media payloads. The FileStore is the
// durability primitive of the pipeline: a file either does not exist under
// its final name or exists complete, never partially written.
package storage

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SavedFile describes where a payload landed on disk.
type SavedFile struct {
	Path     string
	Filename string
}

// FileStore writes payloads into a single flat upload directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the upload directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the upload directory path.
func (s *FileStore) Dir() string { return s.dir }

// Save writes data under a collision-free name derived from the job id,
// the current time, and a sanitized copy of the original filename.
//
// The write goes to a temp path first and is only renamed into place after
// the on-disk size has been verified against len(data) and, when hash is
// non-empty, the content digest re-checked. On any failure the temp file
// is removed and the final path is never created.
func (s *FileStore) Save(data []byte, id, originalName, hash string) (SavedFile, error) {
	name := uniqueName(id, originalName)
	path := filepath.Join(s.dir, name)

	// Atomic write: temp file + rename
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return SavedFile{}, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return SavedFile{}, fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return SavedFile{}, fmt.Errorf("close: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return SavedFile{}, fmt.Errorf("stat temp: %w", err)
	}
	if info.Size() != int64(len(data)) {
		os.Remove(tmpPath)
		return SavedFile{}, fmt.Errorf("size mismatch: wrote %d bytes, expected %d", info.Size(), len(data))
	}
	if hash != "" {
		sum := md5.Sum(data)
		if got := hex.EncodeToString(sum[:]); got != hash {
			os.Remove(tmpPath)
			return SavedFile{}, fmt.Errorf("content hash mismatch: got %s, expected %s", got, hash)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return SavedFile{}, fmt.Errorf("rename: %w", err)
	}
	return SavedFile{Path: path, Filename: name}, nil
}

// uniqueName builds "<id8>_<timestamp>_<sanitized original>".
func uniqueName(id, originalName string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	ts := time.Now().UTC().Format("20060102T150405.000")
	ts = strings.ReplaceAll(ts, ".", "")
	return short + "_" + ts + "_" + SanitizeFilename(originalName)
}

// SanitizeFilename keeps alphanumerics, '.', '_' and '-'; everything else
// becomes '_'. Path separators never survive, so a hostile original name
// cannot escape the upload directory.
func SanitizeFilename(name string) string {
	if name == "" {
		return "file"
	}
	name = filepath.Base(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
