package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ObjectPutter is the part of S3Store the archiver needs.
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Archiver handles background S3 uploads without blocking the consumer
// workers. Files are already persisted locally before being enqueued here.
type Archiver struct {
	s3       ObjectPutter
	ch       chan archiveJob
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once
}

type archiveJob struct {
	key  string
	data []byte
}

// NewArchiver creates an async S3 archiver with the given buffer size.
func NewArchiver(s3 ObjectPutter, bufferSize int, log zerolog.Logger) *Archiver {
	return &Archiver{
		s3:  s3,
		ch:  make(chan archiveJob, bufferSize),
		log: log.With().Str("component", "archiver").Logger(),
	}
}

// Enqueue adds an archival job. Non-blocking; drops with a warning when the
// buffer is full or the archiver is stopped, since the local file is the
// durable copy.
func (a *Archiver) Enqueue(key string, data []byte) {
	if a.stopped.Load() {
		return
	}
	select {
	case a.ch <- archiveJob{key: key, data: data}:
	default:
		a.log.Warn().Str("key", key).Msg("archive queue full, skipping (file durable on disk)")
	}
}

// Start launches worker goroutines.
func (a *Archiver) Start(workers int) {
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.log.Info().Int("workers", workers).Int("buffer", cap(a.ch)).Msg("s3 archiver started")
}

// Stop signals workers to drain and waits for them to finish.
func (a *Archiver) Stop() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.ch) })
	a.wg.Wait()
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for job := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.s3.Put(ctx, job.key, job.data, "application/octet-stream"); err != nil {
			a.log.Error().Err(err).Str("key", job.key).Msg("s3 archive failed (file durable on disk)")
		}
		cancel()
	}
}
