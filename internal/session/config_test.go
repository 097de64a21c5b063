package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/fixgate/internal/testutil/testlog"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SenderCompID = "CLIENT"
	cfg.TargetCompID = "SERVER"
	return cfg
}

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := cfg.Delay(1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	testlog.Start(t)
	cfg := Config{SenderCompID: "A", TargetCompID: "B"}.WithDefaults()
	if cfg.BeginString != "FIX.4.2" {
		t.Fatalf("begin string=%q", cfg.BeginString)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("heartbeat=%v", cfg.HeartbeatInterval)
	}
	if cfg.MaxRejects != 3 || cfg.LogonTimeout == 0 || cfg.StoreTimeout == 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Grace() != 15*time.Second {
		t.Fatalf("grace=%v", cfg.Grace())
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	testlog.Start(t)
	cases := map[string]func(*Config){
		"missing sender":   func(c *Config) { c.SenderCompID = "" },
		"missing target":   func(c *Config) { c.TargetCompID = " " },
		"reserved char":    func(c *Config) { c.SenderCompID = "A:B" },
		"begin string":     func(c *Config) { c.BeginString = "FIXT.1.1" },
		"sub-second hb":    func(c *Config) { c.HeartbeatInterval = 500 * time.Millisecond },
		"fractional hb":    func(c *Config) { c.HeartbeatInterval = 1500 * time.Millisecond },
		"encrypt method":   func(c *Config) { c.EncryptMethod = 1 },
		"negative grace":   func(c *Config) { c.TestRequestGrace = -time.Second },
		"unknown security": func(c *Config) { c.SecurityMode = "paranoid" },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	cfg := testConfig()
	cfg.SenderCompID = ""
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfigIdentity(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	id := cfg.ID()
	if id.String() != "FIX.4.2:CLIENT->SERVER" {
		t.Fatalf("id=%q", id.String())
	}
	if got := id.Reverse().String(); got != "FIX.4.2:SERVER->CLIENT" {
		t.Fatalf("reverse=%q", got)
	}
	cfg.Qualifier = "eu"
	if got := cfg.ID().String(); got != "FIX.4.2:CLIENT->SERVER:eu" {
		t.Fatalf("qualified=%q", got)
	}
	if cfg.HeartBtInt() != 30 {
		t.Fatalf("heartbtint=%d", cfg.HeartBtInt())
	}
}

func TestValidateClientTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}

	cfg.TLS.Mutual = true
	cfg.TLS.InsecureSkipVerify = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}
}

func TestValidateClientTransportMutualRequiresCertKeyCA(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}

	cfg.TLS.CAFile = "/tmp/ca.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}

	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}

	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestValidateServerTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}

	cfg.TLS.Mutual = true
	cfg.TLS.CertFile = "/tmp/server.pem"
	cfg.TLS.KeyFile = "/tmp/server.key"
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}
}

func TestReasonAndRetryable(t *testing.T) {
	testlog.Start(t)
	if Reason(nil) != "clean" {
		t.Fatalf("nil reason=%q", Reason(nil))
	}
	if Reason(ErrStoreCorruption) != "store_corruption" {
		t.Fatalf("corruption reason=%q", Reason(ErrStoreCorruption))
	}
	if Retryable(ErrLogonRejected) {
		t.Fatalf("logon rejection must not be retried")
	}
	if !Retryable(ErrConnection) || !Retryable(ErrSessionTimeout) {
		t.Fatalf("connection loss and timeouts are retryable")
	}
}
