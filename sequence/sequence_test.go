package sequence

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOrdering(t *testing.T) {
	s := New(100, 50)
	defer s.Close()

	var order []int
	var mu sequenceMutex
	futures := make([]*Future, 0, 10)

	for i := 0; i < 10; i++ {
		i := i
		futures = append(futures, s.Add(func() (interface{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for i, f := range futures {
		v, err := f.Wait()
		if err != nil {
			t.Fatalf("task %d: unexpected error: %v", i, err)
		}
		if v.(int) != i {
			t.Fatalf("task %d resolved with value %v", i, v)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("execution order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestSerialization(t *testing.T) {
	s := New(10, 5)
	defer s.Close()

	var running int32
	var maxConcurrent int32

	for i := 0; i < 20; i++ {
		s.Add(func() (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			if n > atomic.LoadInt32(&maxConcurrent) {
				atomic.StoreInt32(&maxConcurrent, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		})
	}

	// Drain by enqueueing one more task and waiting on it.
	final := s.Add(func() (interface{}, error) { return nil, nil })
	final.Wait()

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Fatalf("tasks ran concurrently: max concurrent = %d", maxConcurrent)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	s := New(10, 5)

	block := make(chan struct{})
	s.Add(func() (interface{}, error) {
		<-block
		return nil, nil
	})

	f := s.Add(func() (interface{}, error) { return "should not run", nil })

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block)
	}()

	s.Close()

	_, err := f.Wait()
	if err == nil {
		t.Fatalf("expected pending task to be rejected on close")
	}
}

// sequenceMutex avoids importing sync just for this one lock in the test.
type sequenceMutex struct{ ch chan struct{} }

func (m *sequenceMutex) Lock() {
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
	m.ch <- struct{}{}
}

func (m *sequenceMutex) Unlock() { <-m.ch }
