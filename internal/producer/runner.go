package producer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Runner fans discovered files out to a fixed set of upload workers.
type Runner struct {
	client  *Client
	workers int
	files   chan string
	log     zerolog.Logger
	wg      sync.WaitGroup

	uploaded atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
}

// NewRunner creates a runner with the given parallelism.
func NewRunner(client *Client, workers int, log zerolog.Logger) *Runner {
	return &Runner{
		client:  client,
		workers: workers,
		files:   make(chan string, workers*2),
		log:     log.With().Str("component", "runner").Logger(),
	}
}

// Start launches the upload workers.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.log.Info().Int("workers", r.workers).Msg("producer workers started")
}

// Enqueue hands one file to the workers. Blocks while all workers are busy;
// returns false once ctx is cancelled.
func (r *Runner) Enqueue(ctx context.Context, path string) bool {
	select {
	case r.files <- path:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the intake and waits for in-flight uploads to finish.
func (r *Runner) Stop() {
	close(r.files)
	r.wg.Wait()
	r.log.Info().
		Int64("uploaded", r.uploaded.Load()).
		Int64("rejected", r.rejected.Load()).
		Int64("failed", r.failed.Load()).
		Msg("producer workers stopped")
}

// Uploaded returns the number of accepted uploads.
func (r *Runner) Uploaded() int64 { return r.uploaded.Load() }

// Rejected returns the number of terminal rejections (duplicate, integrity).
func (r *Runner) Rejected() int64 { return r.rejected.Load() }

// Failed returns the number of uploads abandoned on error or exhausted
// queue-full retries.
func (r *Runner) Failed() int64 { return r.failed.Load() }

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.log.With().Int("worker", id).Logger()

	for path := range r.files {
		if ctx.Err() != nil {
			return
		}
		res, err := r.client.Upload(ctx, path)
		switch {
		case err != nil:
			// One file's failure never halts the batch.
			r.failed.Add(1)
			log.Warn().Err(err).Str("file", path).Msg("upload abandoned")
		case !res.Success:
			r.rejected.Add(1)
			log.Info().Str("file", path).Str("reason", res.Message).Msg("upload rejected")
		default:
			r.uploaded.Add(1)
		}
	}
}
