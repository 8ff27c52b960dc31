package producer

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher monitors source directories for newly written files and hands
// them to a callback once writes have settled. It complements the initial
// scan for producers that run continuously.
type Watcher struct {
	roots   []string
	onFile  func(path string)
	log     zerolog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	debounceWG     sync.WaitGroup
	closed         bool
}

const debounceDelay = 500 * time.Millisecond

// NewWatcher creates a watcher over roots; onFile is called for each
// settled new file.
func NewWatcher(roots []string, onFile func(path string), log zerolog.Logger) *Watcher {
	return &Watcher{
		roots:          roots,
		onFile:         onFile,
		log:            log.With().Str("component", "watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start registers every existing directory under the roots and begins
// watching. New subdirectories are added as they appear.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	dirCount := 0
	for _, root := range w.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
			return nil
		})
		if err != nil {
			w.log.Warn().Err(err).Str("root", root).Msg("watch setup failed")
		}
	}

	go w.loop()
	w.log.Info().Int("dirs", dirCount).Msg("source watcher started")
	return nil
}

// Stop ends the watch loop and cancels pending debounce timers, so onFile
// is never called after Stop returns.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	w.watcher.Close()
	<-w.done

	w.debounceMu.Lock()
	w.closed = true
	for path, t := range w.debounceTimers {
		if t.Stop() {
			w.debounceWG.Done()
		}
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()
	w.debounceWG.Wait()
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	// New directory: start watching it too.
	if isDir(ev.Name) {
		if skippedDirs[base] {
			return
		}
		if err := w.watcher.Add(ev.Name); err != nil {
			w.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
		}
		return
	}

	// Debounce: only hand the file over once writes stop for a moment.
	path := ev.Name
	w.debounceMu.Lock()
	if w.closed {
		w.debounceMu.Unlock()
		return
	}
	if t, ok := w.debounceTimers[path]; ok {
		if t.Stop() {
			w.debounceWG.Done()
		}
	}
	w.debounceWG.Add(1)
	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		defer w.debounceWG.Done()
		w.debounceMu.Lock()
		if w.closed {
			w.debounceMu.Unlock()
			return
		}
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()
		w.onFile(path)
	})
	w.debounceMu.Unlock()
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
