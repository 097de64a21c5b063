package session

import "time"

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLogonSent
	StateLogonWait
	StateActive
	StateLoggingOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateLogonSent:
		return "LOGON_SENT"
	case StateLogonWait:
		return "LOGON_WAIT"
	case StateActive:
		return "ACTIVE"
	case StateLoggingOut:
		return "LOGGING_OUT"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time copy of the loop-owned session state.
type Status struct {
	ID                 string    `json:"id"`
	State              State     `json:"state"`
	NextOutgoing       int       `json:"next_outgoing"`
	NextIncoming       int       `json:"next_incoming"`
	ResendPending      bool      `json:"resend_pending"`
	ResendBegin        int       `json:"resend_begin,omitempty"`
	ResendEnd          int       `json:"resend_end,omitempty"`
	TestRequestPending bool      `json:"test_request_pending"`
	TestRequestID      string    `json:"test_request_id,omitempty"`
	LastSent           time.Time `json:"last_sent"`
	LastReceived       time.Time `json:"last_received"`
	RemoteAddr         string    `json:"remote_addr,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
}
