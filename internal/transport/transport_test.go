package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/session"
	"github.com/danmuck/fixgate/internal/testutil/testlog"
	"github.com/danmuck/fixgate/internal/testutil/tlstest"
)

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.SenderCompID = "CLIENT"
	cfg.TargetCompID = "SERVER"
	return cfg
}

func heartbeat(t *testing.T, seq int) []byte {
	t.Helper()
	raw, err := session.NewHeartbeat(testConfig(), seq, time.Now(), "").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func TestConnFramesMessages(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	left := NewConn(a, 0, time.Second)
	right := NewConn(b, 0, time.Second)
	defer left.Close()
	defer right.Close()

	want := heartbeat(t, 7)
	errc := make(chan error, 1)
	go func() { errc <- left.Write(want) }()
	got, err := right.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("write: %v", err)
	}
	msg, err := protocol.Decode(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq, _ := msg.SeqNum(); seq != 7 {
		t.Fatalf("seq=%d", seq)
	}
}

func TestConnCloseIsIdempotentAndEndsReads(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	left := NewConn(a, 0, 0)
	right := NewConn(b, 0, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := right.ReadMessage()
		errc <- err
	}()
	if err := left.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := left.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF after peer close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not return")
	}
	_ = right.Close()
	if _, err := right.ReadMessage(); !IsClosed(err) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestReadMessageWithinTimesOut(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer a.Close()
	conn := NewConn(b, 0, 0)
	defer conn.Close()

	_, err := conn.ReadMessageWithin(20 * time.Millisecond)
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestConnRejectsOversizeBody(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	left := NewConn(a, 0, time.Second)
	right := NewConn(b, 16, time.Second)
	defer left.Close()
	defer right.Close()

	go func() { _ = left.Write(heartbeat(t, 1)) }()
	if _, err := right.ReadMessage(); err == nil {
		t.Fatalf("expected body limit error")
	}
}

func TestDialerEnforcesProductionTLS(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.SecurityMode = session.SecurityModeProduction
	_, err := NewDialer("127.0.0.1:1", cfg).Dial(context.Background())
	if !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	if _, err := Listen("127.0.0.1:0", cfg); !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("listen expected ErrTLSRequired, got %v", err)
	}
}

func TestDialerPlainTCP(t *testing.T) {
	testlog.Start(t)
	ln, err := Listen("127.0.0.1:0", testConfig())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		c := NewConn(conn, 0, time.Second)
		defer c.Close()
		raw, err := c.ReadMessage()
		if err == nil {
			got <- raw
		}
	}()

	tr, err := NewDialer(ln.Addr().String(), testConfig()).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()
	if err := tr.Write(heartbeat(t, 3)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case raw := <-got:
		if _, err := protocol.Decode(raw); err != nil {
			t.Fatalf("decode: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never read the message")
	}
}

func TestDialerMutualTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "fixgate-test-ca")
	serverCert, serverKey := ca.IssueServerCert(t, dir, "fixgate-acceptor", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	clientCert, clientKey := ca.IssueClientCert(t, dir, "CLIENT")

	serverCfg := testConfig()
	serverCfg.SecurityMode = session.SecurityModeProduction
	serverCfg.TLS = session.TLSConfig{Enabled: true, Mutual: true, CertFile: serverCert, KeyFile: serverKey, CAFile: ca.CAFile()}
	ln, err := Listen("127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	peer := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		c := NewConn(conn, 0, time.Second)
		defer c.Close()
		if _, err := c.ReadMessage(); err != nil {
			peer <- "read error: " + err.Error()
			return
		}
		peer <- PeerIdentity(conn)
	}()

	clientCfg := testConfig()
	clientCfg.SecurityMode = session.SecurityModeProduction
	clientCfg.TLS = session.TLSConfig{Enabled: true, Mutual: true, CertFile: clientCert, KeyFile: clientKey, CAFile: ca.CAFile()}
	tr, err := NewDialer(ln.Addr().String(), clientCfg).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()
	if err := tr.Write(heartbeat(t, 1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case id := <-peer:
		if id != "CLIENT" {
			t.Fatalf("peer identity=%q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server never identified the client")
	}
}

func TestClientTLSConfigServerNameFallback(t *testing.T) {
	testlog.Start(t)
	cfg, err := ClientTLSConfig(session.TLSConfig{Enabled: true, InsecureSkipVerify: true}, "fix.example.net:9878")
	if err != nil {
		t.Fatalf("client tls config: %v", err)
	}
	if cfg.ServerName != "fix.example.net" {
		t.Fatalf("server name=%q", cfg.ServerName)
	}
	if _, err := ClientTLSConfig(session.TLSConfig{CAFile: "/nonexistent/ca.crt"}, "host:1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing ca error, got %v", err)
	}
}
