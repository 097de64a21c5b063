package session

import (
	"fmt"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/observability"
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
)

func (c *controlLoop) onLoginRequest(req request) {
	if c.state != StateConnecting {
		c.reply(&req, 0, fmt.Errorf("%w: login from %s", ErrInvalidState, c.state))
		return
	}
	c.login = &req
	c.logonReset = c.cfg.ResetOnLogon
	if c.logonReset {
		if err := c.purge(); err != nil {
			c.fail(err)
			return
		}
	}
	if err := c.sendAdmin(func(seq int) *protocol.Message {
		return NewLogon(c.cfg, seq, c.s.now(), c.logonReset)
	}); err != nil {
		return
	}
	c.state = StateLogonSent
	c.armPhase(c.cfg.LogonTimeout)
	logs.Infof("session.login id=%q heartbeat=%s reset=%t", c.key, c.cfg.HeartbeatInterval, c.logonReset)
}

// onLogonResponse handles the first message after our Logon.
func (c *controlLoop) onLogonResponse(msg *protocol.Message, raw []byte) {
	switch msg.MsgType() {
	case schema.MsgTypeLogon:
	case schema.MsgTypeLogout:
		text, _ := msg.Get(schema.TagText)
		c.finish(fmt.Errorf("%w: counterparty logout: %s", ErrLogonRejected, text))
		return
	default:
		c.fail(fmt.Errorf("%w: expected Logon, got MsgType=%q", ErrLogonRejected, msg.MsgType()))
		return
	}
	seq, err := c.checkLogon(msg)
	if err != nil {
		c.fail(err)
		return
	}
	if reset, _ := msg.GetBool(schema.TagResetSeqNumFlag); reset && !c.logonReset {
		logs.Warnf("session.onLogonResponse id=%q counterparty reset inbound sequence", c.key)
		c.seq.SetIncoming(1)
	}
	if !c.admitLogon(pendingMessage{seq: seq, msg: msg, raw: raw}) {
		return
	}
	c.activate()
}

// onAcceptRequest answers a counterparty Logon on the acceptor side.
func (c *controlLoop) onAcceptRequest(req request) {
	if c.state != StateLogonWait {
		c.reply(&req, 0, fmt.Errorf("%w: accept from %s", ErrInvalidState, c.state))
		return
	}
	c.login = &req
	c.lastRecv = c.s.now()
	observability.RecordMessage(c.key, "in", schema.MsgTypeLogon)
	seq, err := c.checkLogon(req.msg)
	if err != nil {
		c.fail(err)
		return
	}
	reset, _ := req.msg.GetBool(schema.TagResetSeqNumFlag)
	c.logonReset = reset || c.cfg.ResetOnLogon
	if c.logonReset {
		if err := c.purge(); err != nil {
			c.fail(err)
			return
		}
	}
	if !c.admitLogon(pendingMessage{seq: seq, msg: req.msg}) {
		return
	}
	if err := c.sendAdmin(func(seq int) *protocol.Message {
		return NewLogon(c.cfg, seq, c.s.now(), c.logonReset)
	}); err != nil {
		return
	}
	c.activate()
}

// checkLogon verifies the counterparty's logon terms.
func (c *controlLoop) checkLogon(msg *protocol.Message) (int, error) {
	if err := schema.Validate(schema.MsgTypeLogon, msg.Fields()); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLogonRejected, err)
	}
	seq, err := msg.SeqNum()
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("%w: invalid MsgSeqNum", ErrLogonRejected)
	}
	if info, ok := c.checkHeader(msg, seq); !ok {
		return 0, fmt.Errorf("%w: %s", ErrLogonRejected, info.Text)
	}
	hb, _ := msg.GetInt(schema.TagHeartBtInt)
	if hb != c.cfg.HeartBtInt() {
		return 0, fmt.Errorf("%w: HeartBtInt %d does not match %d", ErrLogonRejected, hb, c.cfg.HeartBtInt())
	}
	enc, _ := msg.GetInt(schema.TagEncryptMethod)
	if enc != c.cfg.EncryptMethod {
		return 0, fmt.Errorf("%w: EncryptMethod %d unsupported", ErrLogonRejected, enc)
	}
	return seq, nil
}

// admitLogon sequences the counterparty's Logon. A Logon ahead of the
// expected number is parked as already handled and the hole is requested
// once the session is active.
func (c *controlLoop) admitLogon(p pendingMessage) bool {
	chk := c.seq.ValidateIncoming(p.seq, p.msg.PossDup())
	switch chk.Verdict {
	case VerdictTooLow:
		c.fail(fmt.Errorf("%w: Logon MsgSeqNum too low, expected=%d received=%d", ErrSequence, chk.Expected, chk.Received))
		return false
	case VerdictDuplicate:
		return true
	case VerdictGap:
		p.handled = true
		c.gaps.Put(p)
		c.logonGap = p.seq
		return true
	}
	if err := c.persistInbound(p); err != nil {
		c.fail(err)
		return false
	}
	c.seq.AdvanceIncoming()
	return true
}

func (c *controlLoop) activate() {
	c.stopPhase()
	c.state = StateActive
	c.live = NewLiveness(c.cfg.HeartbeatInterval, c.cfg.Grace(), c.s.newTimer)
	c.active = true
	observability.SessionActive(true)
	logs.Infof("session.activate id=%q next_out=%d next_in=%d", c.key, c.seq.PeekOutgoing(), c.seq.ExpectedIncoming())
	if c.login != nil {
		c.reply(c.login, 0, nil)
		c.login = nil
	}
	if c.logonGap > 0 {
		gap := c.logonGap
		c.logonGap = 0
		c.requestResend(c.seq.ExpectedIncoming(), gap-1)
		if gap > c.requestedThrough {
			c.requestedThrough = gap
		}
	}
}

// purge resets the identity's counters and history for a sequence reset
// at logon.
func (c *controlLoop) purge() error {
	ctx, cancel := c.storeCtx()
	defer cancel()
	if err := c.s.store.Purge(ctx, c.key); err != nil {
		return fmt.Errorf("purge %s: %w", c.key, err)
	}
	c.seq.Reset(1)
	c.gaps = gapBuffer{}
	c.requestedThrough = 0
	logs.Infof("session.purge id=%q", c.key)
	return nil
}
