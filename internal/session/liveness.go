package session

import "time"

// Timer is the subset of *time.Timer the liveness monitor needs. Tests
// swap in timers they fire by hand.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// TimerFunc builds an armed Timer.
type TimerFunc func(d time.Duration) Timer

type realTimer struct {
	t *time.Timer
}

// NewRealTimer is the production TimerFunc.
func NewRealTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }

func (r *realTimer) Reset(d time.Duration) {
	if !r.t.Stop() {
		select {
		case <-r.t.C:
		default:
		}
	}
	r.t.Reset(d)
}

func (r *realTimer) Stop() { r.t.Stop() }

// LivenessAction is what the loop must do after the receive timer fires.
type LivenessAction int

const (
	LivenessTestRequest LivenessAction = iota + 1
	LivenessTimeout
)

// Liveness tracks the send and receive timers of an active session. It is
// owned by the control loop and is not safe for concurrent use. A nil
// *Liveness is inert.
type Liveness struct {
	interval  time.Duration
	grace     time.Duration
	send      Timer
	recv      Timer
	pendingID string
	stopped   bool
}

func NewLiveness(interval, grace time.Duration, newTimer TimerFunc) *Liveness {
	if newTimer == nil {
		newTimer = NewRealTimer
	}
	return &Liveness{
		interval: interval,
		grace:    grace,
		send:     newTimer(interval),
		recv:     newTimer(interval),
	}
}

func (l *Liveness) SendC() <-chan time.Time {
	if l == nil || l.stopped {
		return nil
	}
	return l.send.C()
}

func (l *Liveness) RecvC() <-chan time.Time {
	if l == nil || l.stopped {
		return nil
	}
	return l.recv.C()
}

// Sent rearms the send timer.
func (l *Liveness) Sent() {
	if l == nil || l.stopped {
		return
	}
	l.send.Reset(l.interval)
}

// Received rearms the receive timer and clears any outstanding probe.
func (l *Liveness) Received() {
	if l == nil || l.stopped {
		return
	}
	l.pendingID = ""
	l.recv.Reset(l.interval)
}

// RecvExpired escalates a receive-timer expiry. The first expiry asks for
// a TestRequest carrying a fresh id; an expiry while that probe is
// outstanding is a timeout.
func (l *Liveness) RecvExpired(newID func() string) (LivenessAction, string) {
	if l.pendingID != "" {
		return LivenessTimeout, l.pendingID
	}
	l.pendingID = newID()
	l.recv.Reset(l.grace)
	return LivenessTestRequest, l.pendingID
}

// Pending returns the outstanding TestReqID, if any.
func (l *Liveness) Pending() (string, bool) {
	if l == nil || l.pendingID == "" {
		return "", false
	}
	return l.pendingID, true
}

func (l *Liveness) Stop() {
	if l == nil || l.stopped {
		return
	}
	l.stopped = true
	l.send.Stop()
	l.recv.Stop()
}
