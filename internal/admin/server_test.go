package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/fixgate/internal/engine"
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/session"
	"github.com/danmuck/fixgate/internal/store"
	"github.com/danmuck/fixgate/internal/testutil/testlog"
	"github.com/danmuck/fixgate/internal/transport"
)

func sessionConfig(sender, target string) session.Config {
	cfg := session.DefaultConfig()
	cfg.SenderCompID = sender
	cfg.TargetCompID = target
	return cfg
}

func newServer(t *testing.T) (*Server, *engine.Registry) {
	t.Helper()
	reg := engine.NewRegistry()
	for _, cfg := range []session.Config{sessionConfig("SERVER", "CLIENT"), sessionConfig("SERVER", "OTHER")} {
		s, err := session.New(cfg, store.NewMemoryStore())
		if err != nil {
			t.Fatalf("new session: %v", err)
		}
		if err := reg.Add(s); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return New("fixgate-test", ":0", reg, nil), reg
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	out := map[string]any{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v body=%s", method, path, err, rr.Body.String())
		}
	}
	return rr, out
}

func sessionPath(id string, suffix string) string {
	return "/sessions/" + url.PathEscape(id) + suffix
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	srv, _ := newServer(t)

	rr, body := do(t, srv, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["sessions"] != float64(2) {
		t.Fatalf("health %d %v", rr.Code, body)
	}
	rr, _ = do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "fixgate_") {
		t.Fatalf("metrics %d", rr.Code)
	}
}

func TestListAndGetSessions(t *testing.T) {
	testlog.Start(t)
	srv, _ := newServer(t)

	rr, body := do(t, srv, http.MethodGet, "/sessions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status %d", rr.Code)
	}
	list, ok := body["sessions"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("sessions %v", body["sessions"])
	}
	first := list[0].(map[string]any)
	if first["id"] != "FIX.4.2:SERVER->CLIENT" || first["state"] != "DISCONNECTED" {
		t.Fatalf("first session %v", first)
	}

	rr, body = do(t, srv, http.MethodGet, sessionPath("FIX.4.2:SERVER->OTHER", ""), "")
	if rr.Code != http.StatusOK || body["id"] != "FIX.4.2:SERVER->OTHER" || body["next_outgoing"] != float64(1) {
		t.Fatalf("get %d %v", rr.Code, body)
	}
	rr, _ = do(t, srv, http.MethodGet, sessionPath("FIX.4.2:NOPE->NOPE", ""), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown session status %d", rr.Code)
	}
}

func TestLogoutErrors(t *testing.T) {
	testlog.Start(t)
	srv, _ := newServer(t)

	rr, _ := do(t, srv, http.MethodPost, sessionPath("FIX.4.2:NOPE->NOPE", "/logout"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown logout status %d", rr.Code)
	}
	rr, _ = do(t, srv, http.MethodPost, sessionPath("FIX.4.2:SERVER->CLIENT", "/logout"), "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("idle logout status %d", rr.Code)
	}
	rr, _ = do(t, srv, http.MethodPost, sessionPath("FIX.4.2:SERVER->CLIENT", "/logout"), "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad body status %d", rr.Code)
	}
}

func TestLogoutActiveSession(t *testing.T) {
	testlog.Start(t)
	srv, reg := newServer(t)
	id := "FIX.4.2:SERVER->CLIENT"
	s, _ := reg.Get(id)

	a, b := net.Pipe()
	peer := transport.NewConn(b, 0, time.Second)
	defer peer.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counterparty := sessionConfig("CLIENT", "SERVER")
	accepted := make(chan error, 1)
	go func() {
		accepted <- s.Accept(ctx, transport.NewConn(a, 0, time.Second), session.NewLogon(counterparty, 1, time.Now(), false))
	}()
	if msg := readMsg(t, peer); msg.MsgType() != schema.MsgTypeLogon {
		t.Fatalf("expected Logon, got %s", msg)
	}
	if err := <-accepted; err != nil {
		t.Fatalf("accept: %v", err)
	}

	go func() {
		msg := readMsg(t, peer)
		if text, _ := msg.Get(schema.TagText); msg.MsgType() != schema.MsgTypeLogout || text != "maintenance" {
			return
		}
		raw, _ := session.NewLogout(counterparty, 2, time.Now(), "").Encode()
		_ = peer.Write(raw)
	}()

	rr, body := do(t, srv, http.MethodPost, sessionPath(id, "/logout"), `{"text":"maintenance"}`)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("logout %d %v", rr.Code, body)
	}
	st := body["session"].(map[string]any)
	if st["state"] != "DISCONNECTED" || st["next_outgoing"] != float64(3) {
		t.Fatalf("session after logout %v", st)
	}
}

func readMsg(t *testing.T, c *transport.Conn) *protocol.Message {
	t.Helper()
	raw, err := c.ReadMessageWithin(2 * time.Second)
	if err != nil {
		t.Errorf("read: %v", err)
		return protocol.NewMessage("")
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		t.Errorf("decode: %v", err)
		return protocol.NewMessage("")
	}
	return msg
}
