// Package store owns durable per-session sequence state and message history.
//
// Ownership boundary:
// - next outgoing/incoming sequence counters per session identity
// - ordered message records per identity and direction
// - single-writer identity claims
// - backend selection from a DSN
package store
