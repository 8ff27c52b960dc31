// Package ingest runs the consumer side of the pipeline: a fixed pool of
// workers draining the bounded queue, persisting each job with retries, and
// dead-lettering jobs that exhaust their retries.
package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/dlq"
	"github.com/snarg/mediasink/internal/metrics"
	"github.com/snarg/mediasink/internal/queue"
	"github.com/snarg/mediasink/internal/registry"
	"github.com/snarg/mediasink/internal/storage"
)

// Persister is the durable write primitive used by workers.
type Persister interface {
	Save(data []byte, id, originalName, hash string) (storage.SavedFile, error)
}

// PoolOptions configures the consumer worker pool.
type PoolOptions struct {
	Queue        *queue.BoundedQueue
	Persister    Persister
	Registry     *registry.Registry
	DLQ          *dlq.Store
	Archiver     *storage.Archiver // optional
	Workers      int
	MaxRetries   int
	InitialDelay time.Duration
	Log          zerolog.Logger
}

// Pool manages the consumer workers.
type Pool struct {
	opts PoolOptions
	log  zerolog.Logger
	wg   sync.WaitGroup

	persisted    atomic.Int64
	deadLettered atomic.Int64
}

// NewPool creates a consumer pool. Start launches it. MaxRetries is the
// total attempt count per job and is clamped to at least one; anything
// lower would wrap the retry budget around to effectively unlimited.
func NewPool(opts PoolOptions) *Pool {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Pool{
		opts: opts,
		log:  opts.Log.With().Str("component", "consumer").Logger(),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().
		Int("workers", p.opts.Workers).
		Int("max_retries", p.opts.MaxRetries).
		Dur("initial_delay", p.opts.InitialDelay).
		Msg("consumer pool started")
}

// Stop shuts the queue down and waits for workers to drain and exit.
func (p *Pool) Stop() {
	p.opts.Queue.Shutdown()
	p.wg.Wait()
	p.log.Info().
		Int64("persisted", p.persisted.Load()).
		Int64("dead_lettered", p.deadLettered.Load()).
		Msg("consumer pool stopped")
}

// Persisted returns the number of jobs durably written.
func (p *Pool) Persisted() int64 { return p.persisted.Load() }

// DeadLettered returns the number of jobs moved to the DLQ.
func (p *Pool) DeadLettered() int64 { return p.deadLettered.Load() }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for {
		job, ok := p.opts.Queue.Dequeue()
		if !ok {
			log.Debug().Msg("queue shut down, worker exiting")
			return
		}
		if err := p.processJob(log, job); err != nil {
			// Already dead-lettered; one job's failure never stops the loop.
			p.deadLettered.Add(1)
			metrics.JobsDeadLetteredTotal.Inc()
			log.Warn().Err(err).
				Str("job_id", job.ID).
				Str("filename", job.Filename).
				Msg("job exhausted retries")
		} else {
			p.persisted.Add(1)
			metrics.JobsPersistedTotal.Inc()
		}
	}
}

// processJob persists one job, retrying with exponential backoff. After the
// final attempt fails the job is pushed to the dead-letter store and the
// last error returned.
func (p *Pool) processJob(log zerolog.Logger, job queue.Job) error {
	start := time.Now()
	attempts := 0
	var saved storage.SavedFile

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.opts.InitialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0

	op := func() error {
		attempts++
		sf, err := p.opts.Persister.Save(job.Data, job.ID, job.Filename, job.ContentHash)
		if err != nil {
			if attempts < p.opts.MaxRetries {
				metrics.PersistRetriesTotal.Inc()
				log.Warn().Err(err).
					Str("job_id", job.ID).
					Int("attempt", attempts).
					Msg("persist failed, will retry")
			}
			return err
		}
		saved = sf
		return nil
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(bo, uint64(p.opts.MaxRetries-1)))
	if err != nil {
		p.opts.DLQ.Add(job, err, attempts)
		return err
	}

	if job.ContentHash != "" {
		if err := p.opts.Registry.UpdatePath(job.ContentHash, saved.Path); err != nil {
			// Entry may have been cleared by an operator between enqueue and
			// persist; the file itself is safe either way.
			log.Warn().Err(err).Str("job_id", job.ID).Msg("registry path update failed")
		}
	}
	if p.opts.Archiver != nil {
		p.opts.Archiver.Enqueue(saved.Filename, job.Data)
	}

	log.Info().
		Str("job_id", job.ID).
		Str("file", saved.Filename).
		Int("bytes", len(job.Data)).
		Int("attempts", attempts).
		Dur("elapsed_ms", time.Since(start)).
		Msg("job persisted")
	return nil
}
