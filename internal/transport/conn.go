package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/fixgate/internal/protocol/frame"
)

// Conn frames FIX messages on a net.Conn.
type Conn struct {
	conn         net.Conn
	reader       *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps conn. maxBody <= 0 keeps the frame defaults; writeTimeout
// <= 0 disables write deadlines.
func NewConn(conn net.Conn, maxBody int, writeTimeout time.Duration) *Conn {
	limits := frame.DefaultLimits()
	if maxBody > 0 {
		limits.MaxBodyBytes = maxBody
	}
	return &Conn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		limits:       limits,
		writeTimeout: writeTimeout,
	}
}

// ReadMessage blocks for the next complete frame. A closed connection
// reads as io.EOF or net.ErrClosed.
func (c *Conn) ReadMessage() ([]byte, error) {
	return frame.ReadMessage(c.reader, c.limits)
}

// ReadMessageWithin reads one frame under a read deadline, then clears it.
// Acceptors use it for the first Logon.
func (c *Conn) ReadMessageWithin(d time.Duration) ([]byte, error) {
	if d > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
			return nil, err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.ReadMessage()
}

func (c *Conn) Write(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return frame.WriteMessage(c.conn, raw)
}

// Close is idempotent; later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// NetConn exposes the wrapped connection.
func (c *Conn) NetConn() net.Conn { return c.conn }

// IsClosed reports whether err came from reading or writing a closed
// connection.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
