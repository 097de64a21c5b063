package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/session"
)

// Dialer connects an initiator to its counterparty.
type Dialer struct {
	Addr   string
	Config session.Config
}

func NewDialer(addr string, cfg session.Config) *Dialer {
	return &Dialer{Addr: addr, Config: cfg.WithDefaults()}
}

// Dial validates transport security, connects within ConnectTimeout and,
// when TLS is enabled, completes the handshake within HandshakeTimeout.
func (d *Dialer) Dial(ctx context.Context) (session.Transport, error) {
	conn, err := d.DialConn(ctx)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, d.Config.MaxBodyBytes, d.Config.WriteTimeout), nil
}

func (d *Dialer) DialConn(ctx context.Context) (net.Conn, error) {
	if err := d.Config.ValidateClientTransport(); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: d.Config.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	if !d.Config.TLS.Enabled {
		logs.Debugf("transport.Dialer.Dial addr=%q tls=false", d.Addr)
		return rawConn, nil
	}
	tlsCfg, err := ClientTLSConfig(d.Config.TLS, d.Addr)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout(d.Config.HandshakeTimeout))
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	logs.Debugf("transport.Dialer.Dial addr=%q tls=true mutual=%t", d.Addr, d.Config.TLS.Mutual)
	return conn, nil
}

func handshakeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
