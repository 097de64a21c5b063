package session

import (
	"fmt"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/observability"
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/store"
)

func (c *controlLoop) serviceResend(msg *protocol.Message) {
	begin, _ := msg.GetInt(schema.TagBeginSeqNo)
	end, _ := msg.GetInt(schema.TagEndSeqNo)
	observability.RecordResendRequest(c.key, "in")
	if err := c.replay(begin, end); err != nil {
		c.fail(err)
	}
}

// replay re-sends stored outbound messages begin..end. End 0, or any end
// past the last number sent, means through the latest. Runs of
// administrative messages other than Reject collapse into one gap fill.
func (c *controlLoop) replay(begin, end int) error {
	last := c.seq.PeekOutgoing() - 1
	if end <= 0 || end > last {
		end = last
	}
	if begin < 1 {
		begin = 1
	}
	if begin > end {
		logs.Debugf("session.replay id=%q nothing to resend begin=%d end=%d", c.key, begin, end)
		return nil
	}
	ctx, cancel := c.storeCtx()
	recs, err := c.s.store.GetMessages(ctx, c.key, store.Outbound, begin, end)
	cancel()
	if err != nil {
		return fmt.Errorf("resend %d..%d: %w", begin, end, err)
	}
	logs.Infof("session.replay id=%q begin=%d end=%d records=%d", c.key, begin, end, len(recs))

	fillFrom := 0
	for _, rec := range recs {
		if skipOnReplay(rec.MsgType) {
			if fillFrom == 0 {
				fillFrom = rec.SeqNum
			}
			continue
		}
		if fillFrom != 0 {
			if err := c.gapFill(fillFrom, rec.SeqNum); err != nil {
				return err
			}
			fillFrom = 0
		}
		if err := c.resend(rec); err != nil {
			return err
		}
	}
	if fillFrom != 0 {
		return c.gapFill(fillFrom, end+1)
	}
	return nil
}

func skipOnReplay(msgType string) bool {
	return schema.IsAdmin(msgType) && msgType != schema.MsgTypeReject
}

// gapFill writes SequenceReset-GapFill at seq from pointing at to. It
// reuses a number already consumed, so nothing is stored.
func (c *controlLoop) gapFill(from, to int) error {
	msg := NewSequenceReset(c.cfg, from, c.s.now(), to, true)
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := c.l.t.Write(raw); err != nil {
		return fmt.Errorf("%w: write gap fill seq=%d: %v", ErrConnection, from, err)
	}
	observability.RecordSequenceReset(c.key, "out", true)
	c.sent(msg)
	return nil
}

// resend writes a stored message again with PossDupFlag and the original
// SendingTime moved to OrigSendingTime.
func (c *controlLoop) resend(rec store.Record) error {
	msg, err := protocol.Decode(rec.Raw)
	if err != nil {
		return fmt.Errorf("%w: stored seq=%d does not decode: %v", ErrStoreCorruption, rec.SeqNum, err)
	}
	if orig, ok := msg.Get(schema.TagSendingTime); ok {
		_ = msg.SetString(schema.TagOrigSendingTime, orig)
	}
	msg.SetBool(schema.TagPossDupFlag, true)
	msg.SetTime(schema.TagSendingTime, c.s.now())
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := c.l.t.Write(raw); err != nil {
		return fmt.Errorf("%w: write resend seq=%d: %v", ErrConnection, rec.SeqNum, err)
	}
	c.sent(msg)
	return nil
}
