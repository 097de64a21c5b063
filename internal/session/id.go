package session

import "fmt"

// ID identifies a session from the local side. Its String form keys the
// message store and the engine registry.
type ID struct {
	BeginString  string
	SenderCompID string
	TargetCompID string
	Qualifier    string
}

func (id ID) String() string {
	s := fmt.Sprintf("%s:%s->%s", id.BeginString, id.SenderCompID, id.TargetCompID)
	if id.Qualifier != "" {
		s += ":" + id.Qualifier
	}
	return s
}

// Reverse is the identity as the counterparty sees it.
func (id ID) Reverse() ID {
	return ID{
		BeginString:  id.BeginString,
		SenderCompID: id.TargetCompID,
		TargetCompID: id.SenderCompID,
		Qualifier:    id.Qualifier,
	}
}
