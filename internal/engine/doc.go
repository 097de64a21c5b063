// Package engine runs sessions inside a process.
//
// Ownership boundary:
// - Registry indexes live sessions by identity for lookup and operators.
// - Acceptor owns a listener and hands each accepted Logon to its session.
// - Initiator owns the connect, login and reconnect loop of client sessions.
// - Application receives logon/logout notifications and inbound
//   application messages.
package engine
