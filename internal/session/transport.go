package session

import "context"

// Transport is a framed FIX byte stream. ReadMessage returns one complete
// raw message or an error; io.EOF marks a clean close. Close must unblock
// a pending ReadMessage.
type Transport interface {
	ReadMessage() ([]byte, error)
	Write(raw []byte) error
	Close() error
}

// Dialer opens a Transport to the counterparty.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

type remoteAddresser interface {
	RemoteAddr() string
}

func remoteAddr(t Transport) string {
	if ra, ok := t.(remoteAddresser); ok {
		return ra.RemoteAddr()
	}
	return ""
}
