package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/store"
	"github.com/google/uuid"
)

// Option customizes a Session at construction.
type Option func(*Session)

// WithClock replaces time.Now for SendingTime and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimerFunc replaces the heartbeat and test-request timers.
func WithTimerFunc(fn TimerFunc) Option {
	return func(s *Session) {
		if fn != nil {
			s.newTimer = fn
		}
	}
}

// WithTestRequestID replaces the TestReqID generator.
func WithTestRequestID(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newTestID = fn
		}
	}
}

// Session drives one FIX session identity across successive connections.
// Each Connect or Accept starts a fresh connection with its own control
// loop and application stream; counters and history carry over through
// the store.
type Session struct {
	cfg   Config
	id    ID
	key   string
	store store.Store

	now       func() time.Time
	newTimer  TimerFunc
	newTestID func() string

	mu      sync.Mutex
	busy    bool
	link    *link
	status  Status
	lastErr error
}

type requestKind int

const (
	reqLogin requestKind = iota + 1
	reqAccept
	reqSend
	reqLogout
)

type request struct {
	kind  requestKind
	msg   *protocol.Message
	text  string
	reply chan result
}

type result struct {
	seq int
	err error
}

type readResult struct {
	raw []byte
	err error
}

// link is the per-connection plumbing between callers and the loop.
type link struct {
	t        Transport
	requests chan request
	inbound  chan readResult
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	queue    *deliveryQueue
	release  func()
	// lost is closed when the store revokes the identity claim.
	lost <-chan struct{}
	err  error
}

func (l *link) terminal() error {
	if l.err != nil {
		return l.err
	}
	return ErrClosed
}

// New validates cfg (after WithDefaults) and builds a disconnected Session.
func New(cfg Config, st store.Store, opts ...Option) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	s := &Session{
		cfg:       cfg,
		id:        cfg.ID(),
		store:     st,
		now:       time.Now,
		newTimer:  NewRealTimer,
		newTestID: uuid.NewString,
	}
	s.key = s.id.String()
	for _, opt := range opts {
		opt(s)
	}
	s.status = Status{ID: s.key, State: StateDisconnected, NextOutgoing: 1, NextIncoming: 1}
	return s, nil
}

func (s *Session) ID() ID { return s.id }

func (s *Session) Config() Config { return s.cfg }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.State
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the terminal error of the last connection; nil after a
// clean logout.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Done is closed when the current connection reaches DISCONNECTED.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.link.done
}

// Connect claims the identity, loads the sequence counters and dials. The
// connection lives until ctx ends or the session disconnects. On failure
// the session stays DISCONNECTED.
func (s *Session) Connect(ctx context.Context, d Dialer) error {
	if d == nil {
		return fmt.Errorf("%w: nil dialer", ErrInvalidConfig)
	}
	if err := s.reserve(StateConnecting); err != nil {
		return err
	}
	release, seq, err := s.prepare(ctx)
	if err != nil {
		s.unreserve(err)
		return err
	}
	t, err := d.Dial(ctx)
	if err != nil {
		release()
		err = fmt.Errorf("%w: %v", ErrConnection, err)
		s.unreserve(err)
		logs.Warnf("session.Session.Connect id=%q err=%v", s.key, err)
		return err
	}
	s.start(ctx, t, StateConnecting, seq, release)
	logs.Infof("session.Session.Connect id=%q remote=%q next_out=%d next_in=%d",
		s.key, remoteAddr(t), seq.PeekOutgoing(), seq.ExpectedIncoming())
	return nil
}

// Login sends Logon and blocks until the counterparty answers. A rejected
// or mismatched answer ends the connection with ErrLogonRejected.
func (s *Session) Login(ctx context.Context) error {
	_, err := s.do(ctx, request{kind: reqLogin})
	return err
}

// Accept runs the acceptor side of a logon that already arrived on t. When
// Accept fails before the session takes t over, t is left open for the
// caller; otherwise the session owns and closes it.
func (s *Session) Accept(ctx context.Context, t Transport, logon *protocol.Message) error {
	if t == nil || logon == nil {
		return fmt.Errorf("%w: accept needs a transport and a logon", ErrInvalidState)
	}
	if logon.MsgType() != schema.MsgTypeLogon {
		return fmt.Errorf("%w: first message MsgType=%q", ErrLogonRejected, logon.MsgType())
	}
	if err := s.reserve(StateLogonWait); err != nil {
		return err
	}
	release, seq, err := s.prepare(ctx)
	if err != nil {
		s.unreserve(err)
		return err
	}
	s.start(ctx, t, StateLogonWait, seq, release)
	logs.Infof("session.Session.Accept id=%q remote=%q", s.key, remoteAddr(t))
	_, err = s.do(ctx, request{kind: reqAccept, msg: logon})
	return err
}

// Send stamps the header, assigns the next outgoing sequence number,
// persists and writes an application message. It returns the number used.
func (s *Session) Send(ctx context.Context, msg *protocol.Message) (int, error) {
	if msg == nil {
		return 0, fmt.Errorf("%w: nil message", ErrValidation)
	}
	msgType := msg.MsgType()
	if msgType == "" {
		return 0, fmt.Errorf("%w: MsgType(35) required", ErrValidation)
	}
	if schema.IsAdmin(msgType) {
		return 0, fmt.Errorf("%w: MsgType=%q is administrative", ErrValidation, msgType)
	}
	return s.do(ctx, request{kind: reqSend, msg: msg.Clone()})
}

// Logout sends Logout and waits for the counterparty's Logout or the
// logout timeout, then for the connection to close.
func (s *Session) Logout(ctx context.Context, text string) error {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	_, err := s.do(ctx, request{kind: reqLogout, text: text})
	if err != nil {
		return err
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect stops the current connection, sending Logout first when
// ACTIVE, and waits for teardown. It is idempotent and safe to call
// concurrently with ctx cancellation.
func (s *Session) Disconnect() {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// Next returns the next application message of the current connection.
// After the connection ends it returns the terminal error, or io.EOF for a
// clean logout.
func (s *Session) Next(ctx context.Context) (*protocol.Message, error) {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return nil, ErrNotActive
	}
	return l.queue.Next(ctx)
}

// Messages iterates the application messages of the connection current at
// call time. A clean end stops without an error pair.
func (s *Session) Messages(ctx context.Context) iter.Seq2[*protocol.Message, error] {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	return func(yield func(*protocol.Message, error) bool) {
		if l == nil {
			yield(nil, ErrNotActive)
			return
		}
		for {
			msg, err := l.queue.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

func (s *Session) reserve(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.status.State)
	}
	s.busy = true
	s.status.State = state
	s.status.LastError = ""
	return nil
}

func (s *Session) unreserve(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.lastErr = err
	s.status.State = StateDisconnected
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// prepare claims the identity and loads its counters.
func (s *Session) prepare(ctx context.Context) (func(), *Sequencer, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	release, err := s.store.Claim(sctx, s.key)
	if err != nil {
		return nil, nil, fmt.Errorf("claim %s: %w", s.key, err)
	}
	out, err := s.store.NextOutgoing(sctx, s.key)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("load next outgoing %s: %w", s.key, err)
	}
	in, err := s.store.NextIncoming(sctx, s.key)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("load next incoming %s: %w", s.key, err)
	}
	return release, NewSequencer(out, in), nil
}

func (s *Session) start(ctx context.Context, t Transport, state State, seq *Sequencer, release func()) {
	l := &link{
		t:        t,
		requests: make(chan request),
		inbound:  make(chan readResult),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		queue:    newDeliveryQueue(),
		release:  release,
		lost:     store.ClaimLost(s.store, s.key),
	}
	c := &controlLoop{
		s:                s,
		l:                l,
		ctx:              ctx,
		cfg:              s.cfg,
		key:              s.key,
		seq:              seq,
		state:            state,
		requestedThrough: seq.ExpectedIncoming() - 1,
	}
	s.mu.Lock()
	s.link = l
	s.status.RemoteAddr = remoteAddr(t)
	s.status.LastSent = time.Time{}
	s.status.LastReceived = time.Time{}
	s.mu.Unlock()
	c.publish()
	go c.run()
}

// detach records the end of a connection.
func (s *Session) detach(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.lastErr = err
	s.status.State = StateDisconnected
	s.status.ResendPending = false
	s.status.ResendBegin = 0
	s.status.ResendEnd = 0
	s.status.TestRequestPending = false
	s.status.TestRequestID = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

func (s *Session) do(ctx context.Context, req request) (int, error) {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return 0, ErrNotActive
	}
	req.reply = make(chan result, 1)
	select {
	case l.requests <- req:
	case <-l.done:
		return 0, l.terminal()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.seq, r.err
	case <-l.done:
		select {
		case r := <-req.reply:
			return r.seq, r.err
		default:
			return 0, l.terminal()
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
