package session

import (
	"context"
	"errors"

	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/store"
)

// Terminal errors end the application stream and are matched with errors.Is.
var (
	ErrConnection      = errors.New("session: connection error")
	ErrLogonRejected   = errors.New("session: logon rejected")
	ErrSequence        = errors.New("session: sequence error")
	ErrStoreCorruption = store.ErrCorruption
	ErrSessionTimeout  = errors.New("session: timeout")
	ErrProtocolReject  = errors.New("session: reject limit exceeded")
	ErrValidation      = protocol.ErrValidation
)

var (
	ErrInvalidConfig = errors.New("session: invalid config")
	ErrInvalidState  = errors.New("session: invalid state")
	ErrNotActive     = errors.New("session: not active")
	ErrClosed        = errors.New("session: closed")
)

// Reason maps a terminal error to a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "clean"
	case errors.Is(err, ErrLogonRejected):
		return "logon_rejected"
	case errors.Is(err, ErrSequence):
		return "sequence"
	case errors.Is(err, ErrStoreCorruption):
		return "store_corruption"
	case errors.Is(err, ErrSessionTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocolReject):
		return "protocol_reject"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// Retryable reports whether an initiator may reconnect after err.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrLogonRejected), errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrStoreCorruption), errors.Is(err, store.ErrIdentityClaimed):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
