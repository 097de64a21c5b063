package session

import "sync"

// Verdict classifies an inbound sequence number against the expected one.
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictDuplicate
	VerdictGap
	VerdictTooLow
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictGap:
		return "gap"
	case VerdictTooLow:
		return "too_low"
	default:
		return "unknown"
	}
}

// Check is the outcome of ValidateIncoming.
type Check struct {
	Verdict  Verdict
	Expected int
	Received int
}

// Sequencer holds the two sequence counters. NextOutgoing hands out each
// number exactly once even under concurrent callers.
type Sequencer struct {
	mu      sync.Mutex
	nextOut int
	nextIn  int
}

func NewSequencer(nextOut, nextIn int) *Sequencer {
	return &Sequencer{nextOut: max(nextOut, 1), nextIn: max(nextIn, 1)}
}

// NextOutgoing returns the next outbound number and advances past it.
func (s *Sequencer) NextOutgoing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextOut
	s.nextOut++
	return seq
}

// PeekOutgoing returns the number the next NextOutgoing call will hand out.
func (s *Sequencer) PeekOutgoing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextOut
}

func (s *Sequencer) ExpectedIncoming() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIn
}

// ValidateIncoming compares seq with the expected inbound number without
// changing it.
func (s *Sequencer) ValidateIncoming(seq int, possDup bool) Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Check{Expected: s.nextIn, Received: seq}
	switch {
	case seq == s.nextIn:
		c.Verdict = VerdictAccept
	case seq > s.nextIn:
		c.Verdict = VerdictGap
	case possDup:
		c.Verdict = VerdictDuplicate
	default:
		c.Verdict = VerdictTooLow
	}
	return c
}

// AdvanceIncoming moves the expectation past an accepted message and
// returns the new expected number.
func (s *Sequencer) AdvanceIncoming() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIn++
	return s.nextIn
}

func (s *Sequencer) SetIncoming(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIn = max(seq, 1)
}

func (s *Sequencer) SetOutgoing(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOut = max(seq, 1)
}

// Reset sets both counters to seq.
func (s *Sequencer) Reset(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOut = max(seq, 1)
	s.nextIn = max(seq, 1)
}
