// Package dlq holds jobs that exhausted their retries, keeping the
// payload and failure context around for operator inspection, manual
// replay, or deletion.
package dlq

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/queue"
)

// ErrNotFound is returned when no dead-lettered job matches the given id.
var ErrNotFound = errors.New("dead-letter entry not found")

// ErrQueueFull is returned by Requeue when the target queue rejected the
// job; the entry stays in the store.
var ErrQueueFull = errors.New("queue full, entry kept in dead-letter store")

// FailedJob is a job plus the context of its final failure.
type FailedJob struct {
	Job      queue.Job
	Error    string
	FailedAt time.Time
	Attempts int
}

// Store is an append-only, mutex-guarded dead-letter store.
type Store struct {
	mu   sync.Mutex
	jobs []FailedJob
	log  zerolog.Logger
}

// NewStore creates an empty dead-letter store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{log: log.With().Str("component", "dlq").Logger()}
}

// Add records a job that permanently failed processing.
func (s *Store) Add(j queue.Job, failure error, attempts int) {
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, FailedJob{
		Job:      j,
		Error:    msg,
		FailedAt: time.Now(),
		Attempts: attempts,
	})
	n := len(s.jobs)
	s.mu.Unlock()

	s.log.Warn().
		Str("job_id", j.ID).
		Str("filename", j.Filename).
		Int("attempts", attempts).
		Int("dlq_size", n).
		Str("error", msg).
		Msg("job dead-lettered")
}

// List returns a snapshot of all entries, oldest first.
func (s *Store) List() []FailedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FailedJob, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Get returns the entry for the given job id.
func (s *Store) Get(id string) (FailedJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fj := range s.jobs {
		if fj.Job.ID == id {
			return fj, true
		}
	}
	return FailedJob{}, false
}

// Remove deletes the entry for the given job id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// Clear drops every entry and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.jobs)
	s.jobs = nil
	return n
}

// Size returns the number of dead-lettered jobs.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Requeue replays the entry with the given id back into q. The entry is
// removed only after the enqueue succeeds, so a full queue never loses the
// job: it simply stays dead-lettered.
func (s *Store) Requeue(id string, q *queue.BoundedQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fj *FailedJob
	for i := range s.jobs {
		if s.jobs[i].Job.ID == id {
			fj = &s.jobs[i]
			break
		}
	}
	if fj == nil {
		return ErrNotFound
	}

	job := fj.Job
	job.EnqueuedAt = time.Now()
	if !q.Enqueue(job) {
		return ErrQueueFull
	}
	s.removeLocked(id)
	s.log.Info().Str("job_id", id).Str("filename", job.Filename).Msg("dead-lettered job requeued")
	return nil
}

func (s *Store) removeLocked(id string) bool {
	for i, fj := range s.jobs {
		if fj.Job.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return true
		}
	}
	return false
}
