package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/registry"
)

// Janitor periodically sweeps the registry for entries whose files have
// disappeared (deleted by the external gallery layer or by hand).
type Janitor struct {
	registry *registry.Registry
	interval time.Duration
	log      zerolog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewJanitor creates a janitor sweeping every interval.
func NewJanitor(reg *registry.Registry, interval time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		registry: reg,
		interval: interval,
		log:      log.With().Str("component", "janitor").Logger(),
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval.
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	go func() {
		defer close(j.done)
		j.sweep()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sweep()
			}
		}
	}()
	j.log.Info().Dur("interval", j.interval).Msg("registry janitor started")
}

// Stop halts the sweep loop.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
		<-j.done
	}
}

func (j *Janitor) sweep() {
	start := time.Now()
	removed := j.registry.ValidateAndCleanup()
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Dur("elapsed_ms", time.Since(start)).
			Msg("sweep complete")
	}
}
