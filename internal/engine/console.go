package engine

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/session"
	"github.com/fatih/color"
)

// ConsoleApplication prints session events and application messages, one
// line each.
type ConsoleApplication struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func NewConsoleApplication(out io.Writer) *ConsoleApplication {
	return &ConsoleApplication{out: out, now: time.Now}
}

func (c *ConsoleApplication) OnLogon(id session.ID) {
	c.printf("%s %s %s\n", c.stamp(), color.GreenString("LOGON "), id)
}

func (c *ConsoleApplication) OnLogout(id session.ID, err error) {
	if err != nil {
		c.printf("%s %s %s %s\n", c.stamp(), color.RedString("LOGOUT"), id, color.RedString(err.Error()))
		return
	}
	c.printf("%s %s %s\n", c.stamp(), color.YellowString("LOGOUT"), id)
}

func (c *ConsoleApplication) FromApp(id session.ID, msg *protocol.Message) {
	seq, _ := msg.SeqNum()
	c.printf("%s %s %s seq=%d %s\n", c.stamp(), color.CyanString("RECV  "), id, seq, msg)
}

func (c *ConsoleApplication) stamp() string {
	return color.HiBlackString(c.now().UTC().Format("2006-01-02T15:04:05.000"))
}

func (c *ConsoleApplication) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
