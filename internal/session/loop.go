package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/observability"
	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/store"
)

// controlLoop owns every piece of mutable state of one connection. Only
// run and the methods it calls touch these fields.
type controlLoop struct {
	s     *Session
	l     *link
	ctx   context.Context
	cfg   Config
	key   string
	seq   *Sequencer
	state State

	live  *Liveness
	phase Timer
	gaps  gapBuffer
	batch []*protocol.Message

	// requestedThrough is the highest inbound number already requested or
	// buffered while a resend is pending.
	requestedThrough int
	resendPending    bool
	resendBegin      int
	rejects          int
	logonReset       bool
	logonGap         int
	active           bool

	login  *request
	logout *request

	lastSent  time.Time
	lastRecv  time.Time
	exit      bool
	termErr   error
	logoutErr error
}

func (c *controlLoop) run() {
	defer c.teardown()
	go c.readLoop()
	for !c.exit {
		select {
		case <-c.ctx.Done():
			c.shutdown(c.ctx.Err())
		case <-c.l.stop:
			c.shutdown(nil)
		case res := <-c.l.inbound:
			c.onRead(res)
		case req := <-c.l.requests:
			c.onRequest(req)
		case <-c.live.SendC():
			c.onSendTimer()
		case <-c.live.RecvC():
			c.onRecvTimer()
		case <-c.phaseC():
			c.onPhaseTimeout()
		case <-c.l.lost:
			c.fail(fmt.Errorf("%w: claim on %s lost", store.ErrIdentityClaimed, c.key))
		}
		c.flush()
		c.publish()
	}
}

func (c *controlLoop) readLoop() {
	for {
		raw, err := c.l.t.ReadMessage()
		select {
		case c.l.inbound <- readResult{raw: raw, err: err}:
		case <-c.l.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *controlLoop) teardown() {
	c.live.Stop()
	c.stopPhase()
	if c.active {
		observability.SessionActive(false)
	}
	if err := c.l.t.Close(); err != nil {
		logs.Debugf("session.teardown id=%q close err=%v", c.key, err)
	}
	c.state = StateDisconnected
	err := c.termErr
	if c.login != nil {
		loginErr := err
		if loginErr == nil {
			loginErr = ErrClosed
		}
		c.reply(c.login, 0, loginErr)
		c.login = nil
	}
	if c.logout != nil {
		c.reply(c.logout, 0, c.logoutErr)
		c.logout = nil
	}
	c.l.err = err
	c.s.detach(err)
	if c.l.release != nil {
		c.l.release()
	}
	c.l.queue.Close(err)
	close(c.l.done)
	observability.RecordTermination(c.key, Reason(err))
	if err != nil {
		logs.Warnf("session.teardown id=%q reason=%s err=%v", c.key, Reason(err), err)
		return
	}
	logs.Infof("session.teardown id=%q reason=clean", c.key)
}

// finish marks the loop for exit with err as the terminal error.
func (c *controlLoop) finish(err error) {
	if c.exit {
		return
	}
	c.exit = true
	c.termErr = err
}

// fail ends the connection on an unrecoverable error, telling the
// counterparty why when the link is still usable.
func (c *controlLoop) fail(err error) {
	if c.exit {
		return
	}
	logs.Warnf("session.fail id=%q state=%s err=%v", c.key, c.state, err)
	// Without the claim another owner's history must not be written to.
	if !errors.Is(err, ErrConnection) && !errors.Is(err, ErrSessionTimeout) &&
		!errors.Is(err, store.ErrIdentityClaimed) && c.state != StateConnecting {
		c.sendLogoutWithin(err.Error())
	}
	c.finish(err)
}

// shutdown is the cancellation path.
func (c *controlLoop) shutdown(err error) {
	if c.exit {
		return
	}
	if c.state == StateActive {
		c.sendLogoutWithin("")
	}
	c.finish(err)
}

func (c *controlLoop) reply(req *request, seq int, err error) {
	c.publish()
	req.reply <- result{seq: seq, err: err}
}

func (c *controlLoop) flush() {
	if len(c.batch) == 0 {
		return
	}
	c.l.queue.Push(c.batch...)
	c.batch = nil
}

func (c *controlLoop) publish() {
	testID, testPending := c.live.Pending()
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	st := &c.s.status
	st.State = c.state
	st.NextOutgoing = c.seq.PeekOutgoing()
	st.NextIncoming = c.seq.ExpectedIncoming()
	st.ResendPending = c.resendPending
	st.ResendBegin, st.ResendEnd = 0, 0
	if c.resendPending {
		st.ResendBegin, st.ResendEnd = c.resendBegin, c.requestedThrough
	}
	st.TestRequestPending = testPending
	st.TestRequestID = testID
	st.LastSent = c.lastSent
	st.LastReceived = c.lastRecv
}

func (c *controlLoop) storeCtx() (context.Context, context.CancelFunc) {
	parent := c.ctx
	if parent.Err() != nil {
		parent = context.WithoutCancel(parent)
	}
	return context.WithTimeout(parent, c.cfg.StoreTimeout)
}

func (c *controlLoop) phaseC() <-chan time.Time {
	if c.phase == nil {
		return nil
	}
	return c.phase.C()
}

func (c *controlLoop) armPhase(d time.Duration) {
	c.stopPhase()
	c.phase = NewRealTimer(d)
}

func (c *controlLoop) stopPhase() {
	if c.phase != nil {
		c.phase.Stop()
		c.phase = nil
	}
}

func (c *controlLoop) onPhaseTimeout() {
	c.stopPhase()
	switch c.state {
	case StateLogonSent:
		c.fail(fmt.Errorf("%w: no Logon response within %s", ErrSessionTimeout, c.cfg.LogonTimeout))
	case StateLoggingOut:
		c.logoutErr = fmt.Errorf("%w: no Logout response within %s", ErrSessionTimeout, c.cfg.LogoutTimeout)
		c.finish(nil)
	}
}

func (c *controlLoop) onSendTimer() {
	if c.state != StateActive && c.state != StateLoggingOut {
		return
	}
	_ = c.sendAdmin(func(seq int) *protocol.Message {
		return NewHeartbeat(c.cfg, seq, c.s.now(), "")
	})
}

func (c *controlLoop) onRecvTimer() {
	action, id := c.live.RecvExpired(c.s.newTestID)
	switch action {
	case LivenessTestRequest:
		logs.Debugf("session.onRecvTimer id=%q test_req_id=%q", c.key, id)
		observability.RecordTestRequest(c.key)
		_ = c.sendAdmin(func(seq int) *protocol.Message {
			return NewTestRequest(c.cfg, seq, c.s.now(), id)
		})
	case LivenessTimeout:
		c.fail(fmt.Errorf("%w: no inbound traffic after TestRequest %q", ErrSessionTimeout, id))
	}
}

func (c *controlLoop) onRequest(req request) {
	switch req.kind {
	case reqLogin:
		c.onLoginRequest(req)
	case reqAccept:
		c.onAcceptRequest(req)
	case reqSend:
		c.onSendRequest(req)
	case reqLogout:
		c.onLogoutRequest(req)
	default:
		c.reply(&req, 0, fmt.Errorf("%w: unknown request %d", ErrInvalidState, req.kind))
	}
}

func (c *controlLoop) onSendRequest(req request) {
	if c.state != StateActive {
		c.reply(&req, 0, fmt.Errorf("%w: %s", ErrNotActive, c.state))
		return
	}
	seq := c.seq.PeekOutgoing()
	StampHeader(req.msg, c.cfg, seq, c.s.now())
	if _, err := req.msg.Encode(); err != nil {
		c.reply(&req, 0, err)
		return
	}
	if err := c.transmit(req.msg, seq); err != nil {
		c.fail(err)
		c.reply(&req, 0, err)
		return
	}
	c.reply(&req, seq, nil)
}

func (c *controlLoop) onLogoutRequest(req request) {
	if c.state != StateActive {
		c.reply(&req, 0, fmt.Errorf("%w: %s", ErrNotActive, c.state))
		return
	}
	c.logout = &req
	if err := c.sendAdmin(func(seq int) *protocol.Message {
		return NewLogout(c.cfg, seq, c.s.now(), req.text)
	}); err != nil {
		c.logoutErr = err
		return
	}
	c.state = StateLoggingOut
	c.armPhase(c.cfg.LogoutTimeout)
	logs.Infof("session.logout id=%q text=%q", c.key, req.text)
}

// sendAdmin builds an administrative message at the next outgoing number
// and transmits it. Failures end the connection.
func (c *controlLoop) sendAdmin(build func(seq int) *protocol.Message) error {
	seq := c.seq.PeekOutgoing()
	msg := build(seq)
	if err := c.transmit(msg, seq); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// transmit persists msg under seq, then writes it.
func (c *controlLoop) transmit(msg *protocol.Message, seq int) error {
	raw, err := c.commit(msg, seq)
	if err != nil {
		return err
	}
	if err := c.l.t.Write(raw); err != nil {
		return fmt.Errorf("%w: write seq=%d: %v", ErrConnection, seq, err)
	}
	c.sent(msg)
	return nil
}

// commit encodes msg, records it as sent and then consumes seq. The record
// and counter are stored before the bytes reach the wire so a resend can
// always find them; a failed store write leaves seq unused.
func (c *controlLoop) commit(msg *protocol.Message, seq int) ([]byte, error) {
	raw, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	rec := store.Record{
		SeqNum:    seq,
		Direction: store.Outbound,
		MsgType:   msg.MsgType(),
		Raw:       raw,
		Timestamp: c.s.now(),
	}
	if err := c.s.store.StoreMessage(ctx, c.key, rec); err != nil {
		return nil, fmt.Errorf("store outbound seq=%d: %w", seq, err)
	}
	if err := c.s.store.SetNextOutgoing(ctx, c.key, seq+1); err != nil {
		return nil, fmt.Errorf("store next outgoing %d: %w", seq+1, err)
	}
	c.seq.NextOutgoing()
	return raw, nil
}

func (c *controlLoop) sent(msg *protocol.Message) {
	c.lastSent = c.s.now()
	c.live.Sent()
	msgType := msg.MsgType()
	observability.RecordMessage(c.key, "out", msgType)
	if msgType == schema.MsgTypeHeartbeat {
		observability.RecordHeartbeat(c.key, "out")
	}
}

// sendLogoutWithin is the best-effort Logout used on the way down. The
// write is bounded by LogoutTimeout and never fails the loop.
func (c *controlLoop) sendLogoutWithin(text string) {
	seq := c.seq.PeekOutgoing()
	msg := NewLogout(c.cfg, seq, c.s.now(), text)
	raw, err := c.commit(msg, seq)
	if err != nil {
		logs.Warnf("session.sendLogoutWithin id=%q err=%v", c.key, err)
		return
	}
	errc := make(chan error, 1)
	go func() { errc <- c.l.t.Write(raw) }()
	timer := time.NewTimer(c.cfg.LogoutTimeout)
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			logs.Debugf("session.sendLogoutWithin id=%q write err=%v", c.key, err)
			return
		}
		c.sent(msg)
	case <-timer.C:
		logs.Warnf("session.sendLogoutWithin id=%q write timed out after %s", c.key, c.cfg.LogoutTimeout)
		_ = c.l.t.Close()
	}
}

func (c *controlLoop) onRead(res readResult) {
	if res.err != nil {
		if c.state == StateLoggingOut && errors.Is(res.err, io.EOF) {
			c.finish(nil)
			return
		}
		c.fail(fmt.Errorf("%w: read: %v", ErrConnection, res.err))
		return
	}
	c.lastRecv = c.s.now()
	c.live.Received()
	msg, err := protocol.Decode(res.raw)
	if err != nil {
		c.onGarbled(res.raw, err)
		return
	}
	msgType := msg.MsgType()
	observability.RecordMessage(c.key, "in", msgType)
	if msgType == schema.MsgTypeHeartbeat {
		observability.RecordHeartbeat(c.key, "in")
	}
	switch c.state {
	case StateLogonSent:
		c.onLogonResponse(msg, res.raw)
	case StateActive, StateLoggingOut:
		c.onMessage(msg, res.raw)
	default:
		logs.Warnf("session.onRead id=%q state=%s dropped msg_type=%q", c.key, c.state, msgType)
	}
}

// onGarbled rejects a frame that failed to decode when its MsgSeqNum can
// still be read, and otherwise drops it.
func (c *controlLoop) onGarbled(raw []byte, err error) {
	logs.Warnf("session.onGarbled id=%q err=%v", c.key, err)
	if c.state != StateActive && c.state != StateLoggingOut {
		return
	}
	seq, ok := scanSeqNum(raw)
	if !ok {
		return
	}
	info := RejectInfo{RefSeqNum: seq, Reason: schema.RejectValueIncorrect, Text: err.Error()}
	var pe *protocol.ParseError
	if errors.As(err, &pe) {
		info.RefTagID = pe.Tag
	}
	c.reject(info)
}

func (c *controlLoop) onMessage(msg *protocol.Message, raw []byte) {
	msgType := msg.MsgType()
	seq, err := msg.SeqNum()
	if err != nil {
		c.reject(RejectInfo{
			RefTagID:   schema.TagMsgSeqNum,
			RefMsgType: msgType,
			Reason:     schema.RejectRequiredTagMissing,
			Text:       "missing or invalid MsgSeqNum",
		})
		return
	}
	if info, ok := c.checkHeader(msg, seq); !ok {
		c.reject(info)
		return
	}
	if msgType == schema.MsgTypeSequenceReset {
		c.onSequenceReset(msg, seq)
		return
	}

	chk := c.seq.ValidateIncoming(seq, msg.PossDup())
	switch chk.Verdict {
	case VerdictDuplicate:
		logs.Debugf("session.onMessage id=%q duplicate seq=%d expected=%d", c.key, seq, chk.Expected)
		return
	case VerdictTooLow:
		c.fail(fmt.Errorf("%w: MsgSeqNum too low, expected=%d received=%d", ErrSequence, chk.Expected, chk.Received))
		return
	case VerdictGap:
		c.onGap(pendingMessage{seq: seq, msg: msg, raw: raw})
		return
	}
	ok := c.process(pendingMessage{seq: seq, msg: msg, raw: raw})
	c.release(!ok)
}

func (c *controlLoop) checkHeader(msg *protocol.Message, seq int) (RejectInfo, bool) {
	info := RejectInfo{RefSeqNum: seq, RefMsgType: msg.MsgType()}
	if v, _ := msg.Get(schema.TagBeginString); v != c.cfg.BeginString {
		info.RefTagID = schema.TagBeginString
		info.Reason = schema.RejectValueIncorrect
		info.Text = fmt.Sprintf("BeginString %q does not match %q", v, c.cfg.BeginString)
		return info, false
	}
	if v, _ := msg.Get(schema.TagSenderCompID); v != c.cfg.TargetCompID {
		info.RefTagID = schema.TagSenderCompID
		info.Reason = schema.RejectCompIDProblem
		info.Text = fmt.Sprintf("SenderCompID %q does not match %q", v, c.cfg.TargetCompID)
		return info, false
	}
	if v, _ := msg.Get(schema.TagTargetCompID); v != c.cfg.SenderCompID {
		info.RefTagID = schema.TagTargetCompID
		info.Reason = schema.RejectCompIDProblem
		info.Text = fmt.Sprintf("TargetCompID %q does not match %q", v, c.cfg.SenderCompID)
		return info, false
	}
	return info, true
}

// onGap buffers a message that arrived ahead of the expected number and
// requests whatever part of the hole is not yet covered.
func (c *controlLoop) onGap(p pendingMessage) {
	from := c.seq.ExpectedIncoming()
	if c.resendPending && c.requestedThrough+1 > from {
		from = c.requestedThrough + 1
	}
	if p.msg.MsgType() == schema.MsgTypeResendRequest {
		if err := schema.Validate(schema.MsgTypeResendRequest, p.msg.Fields()); err == nil {
			c.serviceResend(p.msg)
			p.handled = true
		}
	}
	if c.exit {
		return
	}
	if !c.gaps.Put(p) {
		logs.Debugf("session.onGap id=%q seq=%d already buffered", c.key, p.seq)
		return
	}
	if p.seq > from {
		c.requestResend(from, p.seq-1)
	}
	if p.seq > c.requestedThrough {
		c.requestedThrough = p.seq
	}
}

func (c *controlLoop) requestResend(begin, end int) {
	if begin > end || c.exit {
		return
	}
	if !c.resendPending {
		c.resendPending = true
		c.resendBegin = begin
	}
	if end > c.requestedThrough {
		c.requestedThrough = end
	}
	logs.Infof("session.requestResend id=%q begin=%d end=%d", c.key, begin, end)
	observability.RecordResendRequest(c.key, "out")
	_ = c.sendAdmin(func(seq int) *protocol.Message {
		return NewResendRequest(c.cfg, seq, c.s.now(), begin, end)
	})
}

// release hands over buffered messages that are now in sequence. stalled
// means the message at the expected number was just rejected, so it has
// to be asked for again before the buffer can move.
func (c *controlLoop) release(stalled bool) {
	c.gaps.DropBelow(c.seq.ExpectedIncoming())
	for !c.exit && !stalled {
		p, ok := c.gaps.Take(c.seq.ExpectedIncoming())
		if !ok {
			break
		}
		stalled = !c.process(p)
	}
	if c.exit {
		return
	}
	expected := c.seq.ExpectedIncoming()
	if c.gaps.Len() == 0 {
		if c.resendPending && expected > c.requestedThrough {
			logs.Infof("session.release id=%q gap closed next_in=%d", c.key, expected)
			c.resendPending = false
			c.resendBegin = 0
		}
		return
	}
	if stalled {
		c.requestResend(expected, c.gaps.Min()-1)
	}
}

// process validates, persists and dispatches one in-sequence message. It
// reports false when the message was rejected and the expected number did
// not move.
func (c *controlLoop) process(p pendingMessage) bool {
	msgType := p.msg.MsgType()
	if err := schema.Validate(msgType, p.msg.Fields()); err != nil {
		c.rejectInvalid(p.seq, msgType, err)
		return false
	}
	if err := c.persistInbound(p); err != nil {
		c.fail(err)
		return false
	}
	c.seq.AdvanceIncoming()
	c.rejects = 0
	if p.handled {
		return true
	}
	if !schema.IsAdmin(msgType) {
		c.batch = append(c.batch, p.msg)
		return true
	}
	c.onAdmin(p.msg, p.seq)
	return true
}

func (c *controlLoop) persistInbound(p pendingMessage) error {
	raw := p.raw
	if raw == nil {
		enc, err := p.msg.Encode()
		if err != nil {
			return err
		}
		raw = enc
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	rec := store.Record{
		SeqNum:    p.seq,
		Direction: store.Inbound,
		MsgType:   p.msg.MsgType(),
		Raw:       raw,
		Timestamp: c.s.now(),
	}
	if err := c.s.store.StoreMessage(ctx, c.key, rec); err != nil {
		return fmt.Errorf("store inbound seq=%d: %w", p.seq, err)
	}
	if err := c.s.store.SetNextIncoming(ctx, c.key, p.seq+1); err != nil {
		return fmt.Errorf("store next incoming %d: %w", p.seq+1, err)
	}
	return nil
}

func (c *controlLoop) onAdmin(msg *protocol.Message, seq int) {
	switch msg.MsgType() {
	case schema.MsgTypeHeartbeat:
		if id, ok := msg.Get(schema.TagTestReqID); ok {
			logs.Debugf("session.onAdmin id=%q heartbeat test_req_id=%q", c.key, id)
		}
	case schema.MsgTypeTestRequest:
		id, _ := msg.Get(schema.TagTestReqID)
		_ = c.sendAdmin(func(seq int) *protocol.Message {
			return NewHeartbeat(c.cfg, seq, c.s.now(), id)
		})
	case schema.MsgTypeResendRequest:
		c.serviceResend(msg)
	case schema.MsgTypeReject:
		ref, _ := msg.Get(schema.TagRefSeqNum)
		text, _ := msg.Get(schema.TagText)
		observability.RecordReject(c.key, "in")
		logs.Warnf("session.onAdmin id=%q counterparty reject ref_seq=%s text=%q", c.key, ref, text)
	case schema.MsgTypeLogout:
		c.onLogout(msg)
	case schema.MsgTypeLogon:
		c.reject(RejectInfo{
			RefSeqNum:  seq,
			RefMsgType: schema.MsgTypeLogon,
			Reason:     schema.RejectOther,
			Text:       "Logon received on an established session",
		})
	}
}

func (c *controlLoop) onLogout(msg *protocol.Message) {
	text, _ := msg.Get(schema.TagText)
	if c.state == StateLoggingOut {
		logs.Infof("session.onLogout id=%q confirmed text=%q", c.key, text)
		c.finish(nil)
		return
	}
	logs.Infof("session.onLogout id=%q counterparty logout text=%q", c.key, text)
	c.state = StateLoggingOut
	c.sendLogoutWithin("")
	c.finish(nil)
}

// onSequenceReset applies a SequenceReset ahead of sequence validation. A
// gap fill sets the expectation unconditionally unless it is a possible
// duplicate numbered below the expectation, which was already applied; a
// plain reset may only move it forward.
func (c *controlLoop) onSequenceReset(msg *protocol.Message, seq int) {
	if err := schema.Validate(schema.MsgTypeSequenceReset, msg.Fields()); err != nil {
		c.rejectInvalid(seq, schema.MsgTypeSequenceReset, err)
		return
	}
	newSeq, _ := msg.GetInt(schema.TagNewSeqNo)
	gapFill, _ := msg.GetBool(schema.TagGapFillFlag)
	expected := c.seq.ExpectedIncoming()
	if gapFill && msg.PossDup() && seq < expected {
		logs.Debugf("session.onSequenceReset id=%q duplicate gap fill seq=%d new_seq=%d expected=%d", c.key, seq, newSeq, expected)
		return
	}
	observability.RecordSequenceReset(c.key, "in", gapFill)
	if newSeq < 1 || (!gapFill && newSeq < expected) {
		c.reject(RejectInfo{
			RefSeqNum:  seq,
			RefTagID:   schema.TagNewSeqNo,
			RefMsgType: schema.MsgTypeSequenceReset,
			Reason:     schema.RejectValueIncorrect,
			Text:       fmt.Sprintf("NewSeqNo %d below expected %d", newSeq, expected),
		})
		return
	}
	if newSeq < expected {
		logs.Warnf("session.onSequenceReset id=%q gap fill moves expected back from %d to %d", c.key, expected, newSeq)
	}
	c.seq.SetIncoming(newSeq)
	ctx, cancel := c.storeCtx()
	err := c.s.store.SetNextIncoming(ctx, c.key, newSeq)
	cancel()
	if err != nil {
		c.fail(fmt.Errorf("store next incoming %d: %w", newSeq, err))
		return
	}
	c.rejects = 0
	if newSeq-1 > c.requestedThrough {
		c.requestedThrough = newSeq - 1
	}
	logs.Debugf("session.onSequenceReset id=%q gap_fill=%t next_in=%d", c.key, gapFill, newSeq)
	c.release(false)
}

func (c *controlLoop) reject(info RejectInfo) {
	c.rejects++
	observability.RecordReject(c.key, "out")
	logs.Warnf("session.reject id=%q ref_seq=%d ref_tag=%d reason=%d text=%q count=%d",
		c.key, info.RefSeqNum, info.RefTagID, info.Reason, info.Text, c.rejects)
	if err := c.sendAdmin(func(seq int) *protocol.Message {
		return NewReject(c.cfg, seq, c.s.now(), info)
	}); err != nil {
		return
	}
	if c.cfg.MaxRejects > 0 && c.rejects >= c.cfg.MaxRejects {
		c.fail(fmt.Errorf("%w: %d consecutive rejects, last ref_seq=%d: %s",
			ErrProtocolReject, c.rejects, info.RefSeqNum, info.Text))
	}
}

func (c *controlLoop) rejectInvalid(seq int, msgType string, err error) {
	info := RejectInfo{RefSeqNum: seq, RefMsgType: msgType, Reason: schema.RejectOther, Text: err.Error()}
	var ve schema.ValidationError
	if errors.As(err, &ve) {
		info.RefTagID = ve.Tag
		info.Reason = ve.RejectReason
		info.Text = ve.Reason
	}
	c.reject(info)
}

// scanSeqNum finds MsgSeqNum(34) in a frame that did not decode.
func scanSeqNum(raw []byte) (int, bool) {
	const marker = "\x0134="
	for i := 0; i+len(marker) <= len(raw); i++ {
		if string(raw[i:i+len(marker)]) != marker {
			continue
		}
		n := 0
		j := i + len(marker)
		for ; j < len(raw) && raw[j] >= '0' && raw[j] <= '9'; j++ {
			n = n*10 + int(raw[j]-'0')
		}
		if j == i+len(marker) || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
