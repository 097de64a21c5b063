package session

import (
	"sync"
	"testing"
	"time"
)

// fakeTimer fires only when a test calls Fire. Reset never drains a
// pending fire.
type fakeTimer struct {
	mu      sync.Mutex
	c       chan time.Time
	d       time.Duration
	resets  int
	stopped bool
}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

func (f *fakeTimer) Reset(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.d = d
	f.resets++
	f.stopped = false
}

func (f *fakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTimer) Fire() {
	f.c <- time.Now()
}

func (f *fakeTimer) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.d
}

func (f *fakeTimer) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeTimers records timers in creation order.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) New(d time.Duration) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	timer := &fakeTimer{c: make(chan time.Time, 1), d: d}
	ft.timers = append(ft.timers, timer)
	return timer
}

// Get waits for the i-th timer to exist.
func (ft *fakeTimers) Get(t *testing.T, i int) *fakeTimer {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ft.mu.Lock()
		if len(ft.timers) > i {
			timer := ft.timers[i]
			ft.mu.Unlock()
			return timer
		}
		ft.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timer %d never created", i)
	return nil
}
