// Package config loads engine configuration from TOML files.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fixgate/internal/engine"
	"github.com/danmuck/fixgate/internal/session"
)

// Role selects which side of each session a config describes.
type Role string

const (
	RoleAcceptor  Role = "acceptor"
	RoleInitiator Role = "initiator"
)

// EngineConfig is the runtime configuration of one fixgate process.
type EngineConfig struct {
	Role                   Role
	ID                     string
	ListenAddr             string
	AdminAddr              string
	StoreDSN               string
	CorsOrigins            []string
	RequireIdentityBinding bool
	MaxConnectAttempts     int
	// Session holds the defaults applied to every entry, including
	// transport security.
	Session  session.Config
	Sessions []SessionEntry
}

func Default(role Role) EngineConfig {
	cfg := EngineConfig{
		Role:     role,
		ID:       "fixgate-" + string(role),
		StoreDSN: "inmemory://",
		Session:  session.DefaultConfig(),
	}
	if role == RoleAcceptor {
		cfg.ListenAddr = ":9878"
		cfg.AdminAddr = ":9880"
	}
	return cfg
}

// fileConfig is the TOML key mapping.
type fileConfig struct {
	ID                  string          `toml:"id"`
	ListenAddr          string          `toml:"listen_addr"`
	AdminAddr           string          `toml:"admin_addr"`
	Store               string          `toml:"store"`
	CorsOrigins         []string        `toml:"cors_origins"`
	RequireIdentityBind bool            `toml:"require_identity_binding"`
	MaxConnectAttempts  int             `toml:"max_connect_attempts"`
	Session             sessionDefaults `toml:"session"`
	Sessions            []sessionEntry  `toml:"sessions"`
}

type sessionDefaults struct {
	BeginString           string  `toml:"begin_string"`
	HeartbeatInt          int     `toml:"heartbeat_int"`
	ResetOnLogon          bool    `toml:"reset_on_logon"`
	ConnectTimeout        string  `toml:"connect_timeout"`
	HandshakeTimeout      string  `toml:"handshake_timeout"`
	LogonTimeout          string  `toml:"logon_timeout"`
	LogoutTimeout         string  `toml:"logout_timeout"`
	WriteTimeout          string  `toml:"write_timeout"`
	StoreTimeout          string  `toml:"store_timeout"`
	TestRequestGrace      string  `toml:"test_request_grace"`
	MaxRejects            int     `toml:"max_rejects"`
	MaxBodyBytes          int     `toml:"max_body_bytes"`
	BackoffInitial        string  `toml:"backoff_initial"`
	BackoffMax            string  `toml:"backoff_max"`
	BackoffMultiplier     float64 `toml:"backoff_multiplier"`
	BackoffJitter         bool    `toml:"backoff_jitter"`
	SecurityMode          string  `toml:"security_mode"`
	TLSEnabled            bool    `toml:"tls_enabled"`
	TLSMutual             bool    `toml:"tls_mutual"`
	TLSCertFile           string  `toml:"tls_cert_file"`
	TLSKeyFile            string  `toml:"tls_key_file"`
	TLSCAFile             string  `toml:"tls_ca_file"`
	TLSServerName         string  `toml:"tls_server_name"`
	TLSInsecureSkipVerify bool    `toml:"tls_insecure_skip_verify"`
}

// sessionEntry is either a dsn or explicit fields; explicit comp ids are
// always from this process's point of view.
type sessionEntry struct {
	DSN          string `toml:"dsn"`
	Addr         string `toml:"addr"`
	SenderCompID string `toml:"sender_comp_id"`
	TargetCompID string `toml:"target_comp_id"`
	Qualifier    string `toml:"qualifier"`
	BeginString  string `toml:"begin_string"`
	HeartbeatInt *int   `toml:"heartbeat_int"`
	ResetOnLogon *bool  `toml:"reset_on_logon"`
}

// Load reads a TOML file for role, overlaying only the keys it defines on
// Default(role).
func Load(path string, role Role) (EngineConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("load %s config: %w", role, err)
	}
	return build(raw, meta, role)
}

// Decode is Load for TOML text.
func Decode(data string, role Role) (EngineConfig, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("load %s config: %w", role, err)
	}
	return build(raw, meta, role)
}

func build(raw fileConfig, meta toml.MetaData, role Role) (EngineConfig, error) {
	if role != RoleAcceptor && role != RoleInitiator {
		return EngineConfig{}, fmt.Errorf("load config: unknown role %q", role)
	}
	cfg := Default(role)
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return EngineConfig{}, fmt.Errorf("load %s config: unknown key %q", role, undecoded[0].String())
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("store") {
		cfg.StoreDSN = strings.TrimSpace(raw.Store)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("require_identity_binding") {
		cfg.RequireIdentityBinding = raw.RequireIdentityBind
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if err := overlaySession(&cfg.Session, raw.Session, meta); err != nil {
		return EngineConfig{}, fmt.Errorf("load %s config: %w", role, err)
	}
	cfg.Session = cfg.Session.WithDefaults()

	for i, entry := range raw.Sessions {
		se, err := resolveEntry(entry, cfg.Session, role)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("load %s config: sessions[%d]: %w", role, i, err)
		}
		cfg.Sessions = append(cfg.Sessions, se)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func overlaySession(dst *session.Config, raw sessionDefaults, meta toml.MetaData) error {
	defined := func(key string) bool { return meta.IsDefined("session", key) }
	if defined("begin_string") {
		dst.BeginString = strings.TrimSpace(raw.BeginString)
	}
	if defined("heartbeat_int") {
		dst.HeartbeatInterval = time.Duration(raw.HeartbeatInt) * time.Second
	}
	if defined("reset_on_logon") {
		dst.ResetOnLogon = raw.ResetOnLogon
	}
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &dst.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &dst.HandshakeTimeout},
		{"logon_timeout", raw.LogonTimeout, &dst.LogonTimeout},
		{"logout_timeout", raw.LogoutTimeout, &dst.LogoutTimeout},
		{"write_timeout", raw.WriteTimeout, &dst.WriteTimeout},
		{"store_timeout", raw.StoreTimeout, &dst.StoreTimeout},
		{"test_request_grace", raw.TestRequestGrace, &dst.TestRequestGrace},
		{"backoff_initial", raw.BackoffInitial, &dst.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &dst.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return fmt.Errorf("session.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if defined("max_rejects") {
		dst.MaxRejects = raw.MaxRejects
	}
	if defined("max_body_bytes") {
		dst.MaxBodyBytes = raw.MaxBodyBytes
	}
	if defined("backoff_multiplier") {
		dst.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if defined("backoff_jitter") {
		dst.Backoff.Jitter = raw.BackoffJitter
	}
	if defined("security_mode") {
		dst.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if defined("tls_enabled") {
		dst.TLS.Enabled = raw.TLSEnabled
	}
	if defined("tls_mutual") {
		dst.TLS.Mutual = raw.TLSMutual
	}
	if defined("tls_cert_file") {
		dst.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if defined("tls_key_file") {
		dst.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if defined("tls_ca_file") {
		dst.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if defined("tls_server_name") {
		dst.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if defined("tls_insecure_skip_verify") {
		dst.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}
	return nil
}

// resolveEntry applies one [[sessions]] entry on top of the defaults. DSNs
// name the initiator first, so acceptors reverse them.
func resolveEntry(entry sessionEntry, base session.Config, role Role) (SessionEntry, error) {
	var out SessionEntry
	if dsn := strings.TrimSpace(entry.DSN); dsn != "" {
		parsed, err := ParseSessionDSN(dsn, base)
		if err != nil {
			return SessionEntry{}, err
		}
		if role == RoleAcceptor {
			parsed = parsed.Reverse()
		}
		out = parsed
	} else {
		out = SessionEntry{Addr: strings.TrimSpace(entry.Addr), Session: base}
		out.Session.SenderCompID = strings.TrimSpace(entry.SenderCompID)
		out.Session.TargetCompID = strings.TrimSpace(entry.TargetCompID)
	}
	if entry.Qualifier != "" {
		out.Session.Qualifier = strings.TrimSpace(entry.Qualifier)
	}
	if entry.BeginString != "" {
		out.Session.BeginString = strings.TrimSpace(entry.BeginString)
	}
	if entry.HeartbeatInt != nil {
		out.Session.HeartbeatInterval = time.Duration(*entry.HeartbeatInt) * time.Second
	}
	if entry.ResetOnLogon != nil {
		out.Session.ResetOnLogon = *entry.ResetOnLogon
	}
	if err := out.Session.Validate(); err != nil {
		return SessionEntry{}, err
	}
	return out, nil
}

func (c EngineConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%s config missing id", c.Role)
	}
	if strings.TrimSpace(c.StoreDSN) == "" {
		return fmt.Errorf("%s config missing store", c.Role)
	}
	if len(c.Sessions) == 0 {
		return fmt.Errorf("%s config has no sessions", c.Role)
	}
	switch c.Role {
	case RoleAcceptor:
		if strings.TrimSpace(c.ListenAddr) == "" {
			return fmt.Errorf("acceptor config missing listen_addr")
		}
		if err := c.Session.ValidateServerTransport(); err != nil {
			return err
		}
	case RoleInitiator:
		for i, entry := range c.Sessions {
			if strings.TrimSpace(entry.Addr) == "" {
				return fmt.Errorf("initiator config sessions[%d] (%s) missing addr", i, entry.Session.ID())
			}
		}
		if err := c.Session.ValidateClientTransport(); err != nil {
			return err
		}
	}
	return nil
}

func (c EngineConfig) Acceptor() engine.AcceptorConfig {
	out := engine.AcceptorConfig{
		ListenAddr:             c.ListenAddr,
		RequireIdentityBinding: c.RequireIdentityBinding,
		Transport:              c.Session,
	}
	for _, entry := range c.Sessions {
		out.Sessions = append(out.Sessions, entry.Session)
	}
	return out
}

func (c EngineConfig) Initiator() engine.InitiatorConfig {
	out := engine.InitiatorConfig{MaxConnectAttempts: c.MaxConnectAttempts}
	for _, entry := range c.Sessions {
		out.Sessions = append(out.Sessions, engine.InitiatorSession{Addr: entry.Addr, Session: entry.Session})
	}
	return out
}
