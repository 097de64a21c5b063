package session

import (
	"testing"
	"time"

	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/testutil/testlog"
)

var testNow = time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)

func TestLogonRoundTripCarriesHeartbeatInterval(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	raw, err := NewLogon(cfg, 1, testNow, true).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hb, err := msg.GetInt(schema.TagHeartBtInt); err != nil || hb != 30 {
		t.Fatalf("heartbtint=%d err=%v", hb, err)
	}
	if reset, _ := msg.GetBool(schema.TagResetSeqNumFlag); !reset {
		t.Fatalf("reset flag missing")
	}
	if v, _ := msg.Get(schema.TagEncryptMethod); v != "0" {
		t.Fatalf("encrypt method=%q", v)
	}
	if err := schema.Validate(msg.MsgType(), msg.Fields()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestStampHeader(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	msg := protocol.NewMessage(schema.MsgTypeNewOrderSingle)
	StampHeader(msg, cfg, 42, testNow)
	checks := map[int]string{
		schema.TagBeginString:  "FIX.4.2",
		schema.TagSenderCompID: "CLIENT",
		schema.TagTargetCompID: "SERVER",
		schema.TagMsgSeqNum:    "42",
		schema.TagSendingTime:  "20240301-12:30:45.123",
	}
	for tag, want := range checks {
		if got, _ := msg.Get(tag); got != want {
			t.Fatalf("tag=%d got=%q want=%q", tag, got, want)
		}
	}
}

func TestAdminFactoriesValidate(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	msgs := []*protocol.Message{
		NewHeartbeat(cfg, 2, testNow, ""),
		NewHeartbeat(cfg, 3, testNow, "probe"),
		NewTestRequest(cfg, 4, testNow, "probe"),
		NewResendRequest(cfg, 5, testNow, 1, 0),
		NewSequenceReset(cfg, 6, testNow, 10, true),
		NewSequenceReset(cfg, 7, testNow, 10, false),
		NewReject(cfg, 8, testNow, RejectInfo{RefSeqNum: 3, RefTagID: 16, RefMsgType: "2", Reason: schema.RejectRequiredTagMissing, Text: "missing"}),
		NewLogout(cfg, 9, testNow, "bye"),
		NewLogout(cfg, 10, testNow, ""),
	}
	for _, msg := range msgs {
		raw, err := msg.Encode()
		if err != nil {
			t.Fatalf("encode %s: %v", msg, err)
		}
		decoded, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		if err := schema.Validate(decoded.MsgType(), decoded.Fields()); err != nil {
			t.Fatalf("validate %s: %v", msg, err)
		}
	}
}

func TestSequenceResetUsesItsOwnMsgType(t *testing.T) {
	testlog.Start(t)
	gap := NewSequenceReset(testConfig(), 4, testNow, 9, true)
	if gap.MsgType() != schema.MsgTypeSequenceReset {
		t.Fatalf("msg type=%q", gap.MsgType())
	}
	if !gap.PossDup() {
		t.Fatalf("gap fill must carry PossDupFlag")
	}
	if v, _ := gap.GetBool(schema.TagGapFillFlag); !v {
		t.Fatalf("gap fill flag missing")
	}
	reset := NewSequenceReset(testConfig(), 4, testNow, 9, false)
	if reset.Has(schema.TagGapFillFlag) || reset.PossDup() {
		t.Fatalf("plain reset must not carry gap fill or PossDup")
	}
}

func TestRejectOmitsUnsetReferences(t *testing.T) {
	testlog.Start(t)
	msg := NewReject(testConfig(), 2, testNow, RejectInfo{RefSeqNum: 7, Reason: schema.RejectOther})
	if msg.Has(schema.TagRefTagID) || msg.Has(schema.TagRefMsgType) || msg.Has(schema.TagText) {
		t.Fatalf("unexpected optional fields: %s", msg)
	}
	if v, _ := msg.GetInt(schema.TagRefSeqNum); v != 7 {
		t.Fatalf("ref seq=%d", v)
	}
}
