package session

import (
	"time"

	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
)

// StampHeader sets BeginString, SenderCompID, TargetCompID, MsgSeqNum and
// SendingTime from cfg.
func StampHeader(msg *protocol.Message, cfg Config, seq int, now time.Time) {
	setString(msg, schema.TagBeginString, cfg.BeginString)
	setString(msg, schema.TagSenderCompID, cfg.SenderCompID)
	setString(msg, schema.TagTargetCompID, cfg.TargetCompID)
	msg.SetInt(schema.TagMsgSeqNum, seq)
	msg.SetTime(schema.TagSendingTime, now)
}

func NewLogon(cfg Config, seq int, now time.Time, reset bool) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeLogon)
	StampHeader(msg, cfg, seq, now)
	msg.SetInt(schema.TagEncryptMethod, cfg.EncryptMethod)
	msg.SetInt(schema.TagHeartBtInt, cfg.HeartBtInt())
	if reset {
		msg.SetBool(schema.TagResetSeqNumFlag, true)
	}
	return msg
}

// NewHeartbeat echoes testReqID when answering a TestRequest.
func NewHeartbeat(cfg Config, seq int, now time.Time, testReqID string) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeHeartbeat)
	StampHeader(msg, cfg, seq, now)
	setString(msg, schema.TagTestReqID, testReqID)
	return msg
}

func NewTestRequest(cfg Config, seq int, now time.Time, testReqID string) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeTestRequest)
	StampHeader(msg, cfg, seq, now)
	setString(msg, schema.TagTestReqID, testReqID)
	return msg
}

// NewResendRequest asks for begin..end; end 0 means through the latest.
func NewResendRequest(cfg Config, seq int, now time.Time, begin, end int) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeResendRequest)
	StampHeader(msg, cfg, seq, now)
	msg.SetInt(schema.TagBeginSeqNo, begin)
	msg.SetInt(schema.TagEndSeqNo, end)
	return msg
}

// NewSequenceReset moves the counterparty's expectation to newSeq. A
// gap fill stands in for seq..newSeq-1 during replay and carries PossDup.
func NewSequenceReset(cfg Config, seq int, now time.Time, newSeq int, gapFill bool) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeSequenceReset)
	StampHeader(msg, cfg, seq, now)
	if gapFill {
		msg.SetBool(schema.TagPossDupFlag, true)
		msg.SetBool(schema.TagGapFillFlag, true)
	}
	msg.SetInt(schema.TagNewSeqNo, newSeq)
	return msg
}

// RejectInfo references the message a Reject answers.
type RejectInfo struct {
	RefSeqNum  int
	RefTagID   int
	RefMsgType string
	Reason     int
	Text       string
}

func NewReject(cfg Config, seq int, now time.Time, info RejectInfo) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeReject)
	StampHeader(msg, cfg, seq, now)
	msg.SetInt(schema.TagRefSeqNum, info.RefSeqNum)
	if info.RefTagID > 0 {
		msg.SetInt(schema.TagRefTagID, info.RefTagID)
	}
	setString(msg, schema.TagRefMsgType, info.RefMsgType)
	msg.SetInt(schema.TagSessionRejectReason, info.Reason)
	setString(msg, schema.TagText, info.Text)
	return msg
}

func NewLogout(cfg Config, seq int, now time.Time, text string) *protocol.Message {
	msg := protocol.NewMessage(schema.MsgTypeLogout)
	StampHeader(msg, cfg, seq, now)
	setString(msg, schema.TagText, text)
	return msg
}

// setString skips empty values, which SetString refuses.
func setString(msg *protocol.Message, tag int, v string) {
	if v == "" {
		return
	}
	_ = msg.SetString(tag, v)
}
