package storage

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "clean", input: "clip-01_final.mp4", want: "clip-01_final.mp4"},
		{name: "spaces", input: "my clip.mp4", want: "my_clip.mp4"},
		{name: "unicode", input: "vidéo.mp4", want: "vid_o.mp4"},
		{name: "path_escape", input: "../../etc/passwd", want: "passwd"},
		{name: "shell_chars", input: "a;rm -rf$(x).mp4", want: "a_rm_-rf__x_.mp4"},
		{name: "empty", input: "", want: "file"},
		{name: "only_bad_runes", input: "日本語", want: "___"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSaveWritesCompleteFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	data := []byte("payload bytes")
	saved, err := store.Save(data, "0123456789abcdef", "clip.mp4", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !strings.HasPrefix(saved.Filename, "01234567_") {
		t.Errorf("Filename = %q, want id prefix 01234567_", saved.Filename)
	}
	if !strings.HasSuffix(saved.Filename, "_clip.mp4") {
		t.Errorf("Filename = %q, want suffix _clip.mp4", saved.Filename)
	}
	got, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("saved bytes = %q, want %q", got, data)
	}
}

func TestSaveVerifiesDeclaredHash(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	data := []byte("Hello")
	sum := md5.Sum(data)
	good := hex.EncodeToString(sum[:])

	if _, err := store.Save(data, "id1", "a.mp4", good); err != nil {
		t.Fatalf("Save with matching hash: %v", err)
	}
	if _, err := store.Save(data, "id2", "b.mp4", strings.Repeat("0", 32)); err == nil {
		t.Fatal("Save with mismatched hash: want error")
	}
}

func TestSaveFailureLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Save([]byte("data"), "id3", "c.mp4", "not-a-real-hash")
	if err == nil {
		t.Fatal("want error")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("directory not empty after failed save: %v", entries)
	}
}

// A scan of the upload directory must never observe a final-named file
// whose size differs from the payload: rename is the visibility boundary.
func TestConcurrentScanSeesOnlyCompleteFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if strings.Contains(e.Name(), ".tmp-") {
					continue
				}
				info, err := os.Stat(filepath.Join(dir, e.Name()))
				if err != nil {
					continue
				}
				if info.Size() != int64(len(payload)) {
					t.Errorf("scan saw partial file %s: %d bytes", e.Name(), info.Size())
				}
			}
		}
	}()

	for i := 0; i < 20; i++ {
		if _, err := store.Save(payload, uniqueID(i), "big.bin", ""); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	close(done)
	wg.Wait()
}

func uniqueID(i int) string {
	return string(rune('a'+i%26)) + "000000000000"
}
