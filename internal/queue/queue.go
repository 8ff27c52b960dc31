// Package queue implements the bounded in-memory job buffer that sits
// between the upload handler and the consumer worker pool. Admission is
// non-blocking: once the buffer is full, new jobs are rejected so the
// producer gets immediate feedback instead of stalling the pipeline.
package queue

import (
	"sync"
	"time"
)

// Job is one accepted upload awaiting persistence.
type Job struct {
	ID          string
	Filename    string
	Data        []byte
	ProducerID  string
	ContentHash string // hex MD5, empty if the producer declared none
	EnqueuedAt  time.Time
}

// BoundedQueue is a fixed-capacity FIFO buffer with drop-on-full admission
// and blocking removal. Safe for any number of concurrent producers and
// consumers.
type BoundedQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	jobs     []Job
	capacity int
	shutdown bool
}

// NewBoundedQueue creates a queue holding at most capacity jobs.
func NewBoundedQueue(capacity int) *BoundedQueue {
	q := &BoundedQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a job and returns true, or returns false without side
// effect when the queue is full or shut down. Never blocks.
func (q *BoundedQueue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown || len(q.jobs) >= q.capacity {
		return false
	}
	q.jobs = append(q.jobs, j)
	q.notEmpty.Signal()
	return true
}

// Dequeue removes and returns the oldest job. When the queue is empty it
// blocks until a job arrives or Shutdown is called. The second return is
// false only once the queue is shut down and fully drained; after that
// every call returns immediately.
func (q *BoundedQueue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.jobs) == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

// Shutdown wakes every blocked Dequeue caller. Idempotent. Jobs already
// queued remain dequeueable until drained.
func (q *BoundedQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return
	}
	q.shutdown = true
	q.notEmpty.Broadcast()
}

// Size returns the current number of queued jobs.
func (q *BoundedQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Capacity returns the maximum number of queued jobs.
func (q *BoundedQueue) Capacity() int {
	return q.capacity
}

// IsFull reports whether an Enqueue would currently be rejected for space.
func (q *BoundedQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) >= q.capacity
}

// Utilization returns size/capacity, or 1.0 for a zero-capacity queue.
func (q *BoundedQueue) Utilization() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity == 0 {
		return 1.0
	}
	return float64(len(q.jobs)) / float64(q.capacity)
}
