package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSecurityMode     = errors.New("session: invalid security mode")
	ErrTLSRequired             = errors.New("session: tls required")
	ErrMTLSRequired            = errors.New("session: mtls required")
	ErrTLSCertFileRequired     = errors.New("session: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("session: tls key file required")
	ErrTLSCAFileRequired       = errors.New("session: tls ca file required")
	ErrTLSInsecureSkipNotAllow = errors.New("session: insecure skip verify not allowed")
)

// NormalizeSecurityMode lowercases mode; empty means development.
func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	m := SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
	if m == "" {
		return SecurityModeDevelopment
	}
	return m
}

type transportSide int

const (
	initiatorSide transportSide = iota
	acceptorSide
)

// ValidateClientTransport checks the initiator side. Production requires
// mutual TLS with verified acceptor certificates.
func (c Config) ValidateClientTransport() error {
	return c.validateTransport(initiatorSide)
}

// ValidateServerTransport checks the acceptor side. Mutual TLS needs a CA
// to verify initiator certificates against.
func (c Config) ValidateServerTransport() error {
	return c.validateTransport(acceptorSide)
}

func (c Config) validateTransport(side transportSide) error {
	mode := NormalizeSecurityMode(c.SecurityMode)
	if mode != SecurityModeDevelopment && mode != SecurityModeProduction {
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}
	tls := c.TLS
	if mode == SecurityModeProduction {
		switch {
		case !tls.Enabled:
			return ErrTLSRequired
		case !tls.Mutual:
			return ErrMTLSRequired
		case side == initiatorSide && tls.InsecureSkipVerify:
			return ErrTLSInsecureSkipNotAllow
		}
	}
	if !tls.Enabled {
		if tls.Mutual {
			return ErrTLSRequired
		}
		return nil
	}

	needCA := tls.Mutual
	if side == initiatorSide {
		needCA = !tls.InsecureSkipVerify
	}
	if needCA && blank(tls.CAFile) {
		return ErrTLSCAFileRequired
	}
	// The acceptor always presents a certificate; the initiator only under
	// mutual TLS.
	if side == acceptorSide || tls.Mutual {
		if blank(tls.CertFile) {
			return ErrTLSCertFileRequired
		}
		if blank(tls.KeyFile) {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
