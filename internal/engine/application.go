package engine

import (
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/session"
)

// Application is called from one goroutine per connection. FromApp calls
// for a session arrive in sequence order.
type Application interface {
	OnLogon(id session.ID)
	OnLogout(id session.ID, err error)
	FromApp(id session.ID, msg *protocol.Message)
}

// NopApplication discards everything.
type NopApplication struct{}

func (NopApplication) OnLogon(session.ID) {}

func (NopApplication) OnLogout(session.ID, error) {}

func (NopApplication) FromApp(session.ID, *protocol.Message) {}
