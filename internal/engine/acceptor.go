package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/observability"
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/session"
	"github.com/danmuck/fixgate/internal/store"
	"github.com/danmuck/fixgate/internal/transport"
)

// AcceptorConfig describes the server side of a set of sessions.
type AcceptorConfig struct {
	ListenAddr string
	// RequireIdentityBinding makes a TLS client certificate identity match
	// the SenderCompID of its Logon.
	RequireIdentityBinding bool
	// Transport carries listener TLS settings and the timeouts used
	// before a connection is matched to a session.
	Transport session.Config
	Sessions  []session.Config
}

func DefaultAcceptorConfig() AcceptorConfig {
	return AcceptorConfig{
		ListenAddr: ":9878",
		Transport:  session.DefaultConfig(),
	}
}

type pairKey struct {
	beginString string
	sender      string
	target      string
}

// Acceptor serves configured sessions, one connection per session at a
// time.
type Acceptor struct {
	cfg      AcceptorConfig
	app      Application
	registry *Registry
	sessions map[pairKey]*session.Session

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup

	clientCount atomic.Int64
}

// NewAcceptor builds one Session per configured entry and registers them.
func NewAcceptor(cfg AcceptorConfig, st store.Store, app Application, registry *Registry, opts ...session.Option) (*Acceptor, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultAcceptorConfig().ListenAddr
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	if app == nil {
		app = NopApplication{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	a := &Acceptor{
		cfg:      cfg,
		app:      app,
		registry: registry,
		sessions: make(map[pairKey]*session.Session),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, sc := range cfg.Sessions {
		s, err := session.New(sc, st, opts...)
		if err != nil {
			return nil, err
		}
		cfg := s.Config()
		key := pairKey{beginString: cfg.BeginString, sender: cfg.SenderCompID, target: cfg.TargetCompID}
		if _, ok := a.sessions[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, s.ID())
		}
		if err := registry.Add(s); err != nil {
			return nil, err
		}
		a.sessions[key] = s
	}
	return a, nil
}

func (a *Acceptor) Registry() *Registry { return a.registry }

// Run listens on ListenAddr and serves until ctx ends.
func (a *Acceptor) Run(ctx context.Context) error {
	ln, err := transport.Listen(a.cfg.ListenAddr, a.cfg.Transport)
	if err != nil {
		return err
	}
	logs.Infof("engine.Acceptor.Run listening addr=%q sessions=%d tls=%t", ln.Addr().String(), len(a.sessions), a.cfg.Transport.TLS.Enabled)
	return a.Serve(ctx, ln)
}

// Serve accepts on ln until ctx ends, then waits for every connection
// handler to return.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.cfg.Transport.ValidateServerTransport(); err != nil {
		return err
	}
	defer ln.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			a.closePendingConns()
			_ = ln.Close()
		case <-stop:
		}
	}()

	var err error
	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() == nil && !errors.Is(acceptErr, net.ErrClosed) {
				err = acceptErr
			}
			break
		}
		a.trackConn(conn)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.handleConn(ctx, conn)
		}()
	}
	a.wg.Wait()
	return err
}

func (a *Acceptor) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	active := a.clientCount.Add(1)
	logs.Infof("engine.Acceptor client connected remote=%q active_clients=%d", remote, active)
	defer func() {
		remaining := a.clientCount.Add(-1)
		logs.Infof("engine.Acceptor client disconnected remote=%q active_clients=%d", remote, remaining)
	}()

	c := transport.NewConn(conn, a.cfg.Transport.MaxBodyBytes, a.cfg.Transport.WriteTimeout)
	s, logon, ok := a.admit(c, conn)
	a.untrackConn(conn)
	if !ok {
		_ = c.Close()
		return
	}

	if err := s.Accept(ctx, c, logon); err != nil {
		if errors.Is(err, session.ErrInvalidState) || errors.Is(err, store.ErrIdentityClaimed) {
			a.rejectLogon(c, logon, "session already connected")
		}
		_ = c.Close()
		logs.Warnf("engine.Acceptor.handleConn id=%q remote=%q accept err=%v", s.ID(), remote, err)
		return
	}
	id := s.ID()
	a.app.OnLogon(id)
	pump(ctx, s, a.app)
	<-s.Done()
	a.app.OnLogout(id, s.Err())
}

// admit reads the first message, which must be a Logon for a configured
// session.
func (a *Acceptor) admit(c *transport.Conn, conn net.Conn) (*session.Session, *protocol.Message, bool) {
	raw, err := c.ReadMessageWithin(a.cfg.Transport.LogonTimeout)
	if err != nil {
		logs.Warnf("engine.Acceptor.admit remote=%q read logon err=%v", c.RemoteAddr(), err)
		return nil, nil, false
	}
	logon, err := protocol.Decode(raw)
	if err != nil {
		logs.Warnf("engine.Acceptor.admit remote=%q decode err=%v", c.RemoteAddr(), err)
		return nil, nil, false
	}
	if logon.MsgType() != schema.MsgTypeLogon {
		logs.Warnf("engine.Acceptor.admit remote=%q first msg_type=%q", c.RemoteAddr(), logon.MsgType())
		return nil, nil, false
	}
	begin, _ := logon.Get(schema.TagBeginString)
	sender, _ := logon.Get(schema.TagSenderCompID)
	target, _ := logon.Get(schema.TagTargetCompID)
	s, ok := a.sessions[pairKey{beginString: begin, sender: target, target: sender}]
	if !ok {
		logs.Warnf("engine.Acceptor.admit unknown session begin=%q sender=%q target=%q", begin, sender, target)
		a.rejectLogon(c, logon, "unknown session")
		return nil, nil, false
	}
	if a.cfg.RequireIdentityBinding && a.cfg.Transport.TLS.Enabled {
		if peer := transport.PeerIdentity(conn); peer != sender {
			logs.Warnf("engine.Acceptor.admit tls identity mismatch sender=%q peer_identity=%q", sender, peer)
			a.rejectLogon(c, logon, "identity binding failure")
			return nil, nil, false
		}
	}
	return s, logon, true
}

// rejectLogon answers a Logon that has no session to go to with a Logout
// at MsgSeqNum 1, mirroring the Logon's comp ids.
func (a *Acceptor) rejectLogon(c *transport.Conn, logon *protocol.Message, text string) {
	begin, _ := logon.Get(schema.TagBeginString)
	sender, _ := logon.Get(schema.TagSenderCompID)
	target, _ := logon.Get(schema.TagTargetCompID)
	cfg := session.Config{BeginString: begin, SenderCompID: target, TargetCompID: sender}
	raw, err := session.NewLogout(cfg, 1, time.Now(), text).Encode()
	if err != nil {
		logs.Warnf("engine.Acceptor.rejectLogon encode err=%v", err)
		return
	}
	if err := c.Write(raw); err != nil {
		logs.Debugf("engine.Acceptor.rejectLogon write err=%v", err)
	}
	observability.RecordTermination(cfg.ID().String(), "logon_rejected")
}

func (a *Acceptor) trackConn(conn net.Conn) {
	a.connsMu.Lock()
	defer a.connsMu.Unlock()
	a.conns[conn] = struct{}{}
}

func (a *Acceptor) untrackConn(conn net.Conn) {
	a.connsMu.Lock()
	defer a.connsMu.Unlock()
	delete(a.conns, conn)
}

// closePendingConns closes connections still waiting for their Logon.
// Sessions that own a connection close it themselves on cancellation.
func (a *Acceptor) closePendingConns() {
	a.connsMu.Lock()
	defer a.connsMu.Unlock()
	for conn := range a.conns {
		_ = conn.Close()
		delete(a.conns, conn)
	}
}

// pump hands application messages to app until the connection ends.
func pump(ctx context.Context, s *session.Session, app Application) {
	id := s.ID()
	for msg, err := range s.Messages(ctx) {
		if err != nil {
			return
		}
		app.FromApp(id, msg)
	}
}
