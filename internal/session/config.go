package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/fixgate/internal/protocol/schema"
)

// SecurityMode selects how strictly transport security is enforced.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig describes certificate material for dialers and listeners.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config is immutable once a Session is built from it.
type Config struct {
	BeginString  string
	SenderCompID string
	TargetCompID string
	// Qualifier separates otherwise identical comp id pairs in the store.
	Qualifier string

	HeartbeatInterval time.Duration
	ResetOnLogon      bool
	EncryptMethod     int

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	LogonTimeout     time.Duration
	LogoutTimeout    time.Duration
	WriteTimeout     time.Duration
	StoreTimeout     time.Duration
	// TestRequestGrace is the silence allowed after a TestRequest before
	// the session times out. Zero means HeartbeatInterval/2.
	TestRequestGrace time.Duration
	// MaxRejects is the number of consecutive Rejects sent before the
	// session gives up with ErrProtocolReject. Zero disables the limit.
	MaxRejects   int
	MaxBodyBytes int

	Backoff      BackoffConfig
	SecurityMode SecurityMode
	TLS          TLSConfig
}

// DefaultConfig returns defaults for everything except the comp ids.
func DefaultConfig() Config {
	return Config{
		BeginString:       schema.BeginStringFIX42,
		HeartbeatInterval: 30 * time.Second,
		ConnectTimeout:    5 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		LogonTimeout:      10 * time.Second,
		LogoutTimeout:     2 * time.Second,
		WriteTimeout:      5 * time.Second,
		StoreTimeout:      5 * time.Second,
		MaxRejects:        3,
		MaxBodyBytes:      1 << 20,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.BeginString) == "" {
		c.BeginString = d.BeginString
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.LogonTimeout <= 0 {
		c.LogonTimeout = d.LogonTimeout
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = d.LogoutTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.MaxRejects < 0 {
		c.MaxRejects = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	if strings.TrimSpace(string(c.SecurityMode)) == "" {
		c.SecurityMode = d.SecurityMode
	}
	return c
}

// Validate checks the fields a session cannot run without.
func (c Config) Validate() error {
	switch c.BeginString {
	case schema.BeginStringFIX40, schema.BeginStringFIX41, schema.BeginStringFIX42,
		schema.BeginStringFIX43, schema.BeginStringFIX44:
	default:
		return fmt.Errorf("%w: unsupported begin string %q", ErrInvalidConfig, c.BeginString)
	}
	if err := validCompID("sender_comp_id", c.SenderCompID); err != nil {
		return err
	}
	if err := validCompID("target_comp_id", c.TargetCompID); err != nil {
		return err
	}
	if c.HeartbeatInterval < time.Second {
		return fmt.Errorf("%w: heartbeat interval %s below 1s", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatInterval%time.Second != 0 {
		return fmt.Errorf("%w: heartbeat interval %s is not whole seconds", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.EncryptMethod != 0 {
		return fmt.Errorf("%w: encrypt method %d unsupported", ErrInvalidConfig, c.EncryptMethod)
	}
	if c.TestRequestGrace < 0 {
		return fmt.Errorf("%w: negative test request grace", ErrInvalidConfig)
	}
	switch NormalizeSecurityMode(c.SecurityMode) {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}
	return nil
}

func validCompID(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, name)
	}
	if strings.ContainsAny(v, "\x01:") {
		return fmt.Errorf("%w: %s %q contains a reserved character", ErrInvalidConfig, name, v)
	}
	return nil
}

// HeartBtInt is the HeartBtInt(108) value advertised at logon.
func (c Config) HeartBtInt() int {
	return int(c.HeartbeatInterval / time.Second)
}

// Grace returns the effective TestRequest grace period.
func (c Config) Grace() time.Duration {
	if c.TestRequestGrace > 0 {
		return c.TestRequestGrace
	}
	return c.HeartbeatInterval / 2
}

// ID returns the identity this config speaks as.
func (c Config) ID() ID {
	return ID{
		BeginString:  c.BeginString,
		SenderCompID: c.SenderCompID,
		TargetCompID: c.TargetCompID,
		Qualifier:    c.Qualifier,
	}
}
