// Package sequence implements the single FIFO serializer that every
// authoritative-state mutation passes through: an explicit
// single-consumer task queue standing in for a promise-chain serializer.
package sequence

import (
	"sync"

	"github.com/Leasehold/leasehold/chainerrors"
)

// Task is one unit of work enqueued onto the Sequence. It returns a
// result value (may be nil) and an error.
type Task func() (interface{}, error)

type job struct {
	task Task
	done chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

// Future is the awaitable handle returned by Add.
type Future struct {
	done chan outcome
}

// Wait blocks until the task has run (or the Sequence was closed before
// it could), returning its result or error.
func (f *Future) Wait() (interface{}, error) {
	o := <-f.done
	return o.value, o.err
}

// Sequence is a bounded, single-consumer FIFO queue. Tasks run strictly in
// enqueue order; the next task starts only once the previous one has
// fully resolved: the chain's single serialization point.
type Sequence struct {
	pending      chan *job
	warnThreshold int

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Sequence with the given backlog capacity and warning
// threshold, and starts its single consumer goroutine.
func New(capacity, warnThreshold int) *Sequence {
	s := &Sequence{
		pending:       make(chan *job, capacity),
		warnThreshold: warnThreshold,
		closed:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Add enqueues task and returns a Future that resolves with its result.
// If the Sequence has been closed, the Future resolves immediately with a
// Fatal cleanup error.
func (s *Sequence) Add(task Task) *Future {
	j := &job{task: task, done: make(chan outcome, 1)}

	select {
	case <-s.closed:
		j.done <- outcome{err: chainerrors.NewFatal("sequence closed", nil)}
		return &Future{done: j.done}
	default:
	}

	if n := len(s.pending); n >= s.warnThreshold {
		log.Warnf("sequence backlog at %d tasks (threshold %d)", n, s.warnThreshold)
	}

	select {
	case s.pending <- j:
	case <-s.closed:
		j.done <- outcome{err: chainerrors.NewFatal("sequence closed", nil)}
	}

	return &Future{done: j.done}
}

// Len reports the current backlog length.
func (s *Sequence) Len() int {
	return len(s.pending)
}

func (s *Sequence) run() {
	defer s.wg.Done()
	for {
		// Give a pending Close priority over draining one more task: a
		// non-blocking select only falls through to default when no
		// other case is ready, so once closed is closed this branch is
		// taken deterministically instead of racing the pending case
		// below.
		select {
		case <-s.closed:
			s.drain()
			return
		default:
		}

		select {
		case j := <-s.pending:
			value, err := j.task()
			j.done <- outcome{value: value, err: err}
		case <-s.closed:
			s.drain()
			return
		}
	}
}

// drain rejects every task still in the backlog with a cleanup error,
// on shutdown, every pending task is rejected with a
// cleanup error."
func (s *Sequence) drain() {
	for {
		select {
		case j := <-s.pending:
			j.done <- outcome{err: chainerrors.NewFatal("sequence shut down", nil)}
		default:
			return
		}
	}
}

// Close stops accepting new tasks, rejects any still pending, and waits
// for the consumer goroutine to exit. Close is idempotent.
func (s *Sequence) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
}
