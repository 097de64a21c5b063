// Package session owns the FIX session layer for one counterparty link.
//
// Ownership boundary:
// - logon/logout negotiation and the session state machine
// - outbound and inbound sequence numbering, gap detection and resend replay
// - heartbeat and test-request liveness
// - administrative message factories
// - retry/backoff and transport security policy shared by dialers and listeners
//
// One control loop goroutine owns all mutable session state. A reader
// goroutine feeds it decoded frames; callers reach it through request
// channels. Application messages leave through an ordered queue read by
// Next or Messages.
package session
