package futex

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// TestSemaphorePostWait tests that a post wakes a blocked waiter
func TestSemaphorePostWait(t *testing.T) {
	var s Semaphore

	done := make(chan error, 1)
	go func() {
		done <- s.Wait()
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Post")
	case <-time.After(20 * time.Millisecond):
	}

	if err := s.Post(); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Post")
	}

	if v := s.Value(); v != 0 {
		t.Errorf("Expected count 0 after wait, got %d", v)
	}
}

// TestSemaphoreCounts tests that posts accumulate and are consumed one by one
func TestSemaphoreCounts(t *testing.T) {
	var s Semaphore
	for i := 0; i < 3; i++ {
		if err := s.Post(); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}
	if v := s.Value(); v != 3 {
		t.Fatalf("Expected count 3, got %d", v)
	}
	for i := 0; i < 3; i++ {
		if !s.TryWait() {
			t.Fatalf("TryWait %d failed with count %d", i, s.Value())
		}
	}
	if s.TryWait() {
		t.Error("TryWait succeeded on an empty semaphore")
	}
}

// TestSemaphoreWaitTimeout tests that a bounded wait expires
func TestSemaphoreWaitTimeout(t *testing.T) {
	var s Semaphore

	start := time.Now()
	err := s.WaitTimeout(30 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("WaitTimeout returned after %v, before the deadline", elapsed)
	}

	s.Post()
	if err := s.WaitTimeout(time.Second); err != nil {
		t.Errorf("WaitTimeout with a pending post failed: %v", err)
	}
}

// TestSemaphoreReset tests dropping pending posts
func TestSemaphoreReset(t *testing.T) {
	var s Semaphore
	s.Post()
	s.Post()
	s.Reset()
	if s.TryWait() {
		t.Error("TryWait succeeded after Reset")
	}
}

// TestMutexExclusion tests mutual exclusion between goroutines
func TestMutexExclusion(t *testing.T) {
	const (
		goroutines = 8
		iterations = 2000
	)

	var (
		m       Mutex
		counter int
		wg      sync.WaitGroup
	)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Errorf("Expected counter %d, got %d", goroutines*iterations, counter)
	}
}

// TestMutexTryLock tests that TryLock fails while the mutex is held
func TestMutexTryLock(t *testing.T) {
	var m Mutex
	if !m.TryLock() {
		t.Fatal("TryLock failed on an unlocked mutex")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a locked mutex")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("TryLock failed after Unlock")
	}
	m.Unlock()
}
