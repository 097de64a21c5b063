// Package transport carries FIX frames over TCP or TLS connections. Conn
// implements session.Transport on a net.Conn and Dialer implements
// session.Dialer for initiators. Listener-side TLS configuration lives
// here too so acceptors and dialers share the same certificate rules.
package transport
