package protocol

import (
	"fmt"
	"strconv"

	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/protocol/tagvalue"
)

// Header tags emitted after MsgType, in this order.
var headerOrder = []int{
	schema.TagSenderCompID,
	schema.TagTargetCompID,
	schema.TagMsgSeqNum,
	schema.TagPossDupFlag,
	schema.TagPossResend,
	schema.TagSendingTime,
	schema.TagOrigSendingTime,
}

// Encode renders the message with computed BodyLength(9) and CheckSum(10).
// Any 9 or 10 already present is recomputed.
func (m *Message) Encode() ([]byte, error) {
	begin, ok := m.Get(schema.TagBeginString)
	if !ok {
		return nil, fmt.Errorf("%w: BeginString(8) required", ErrValidation)
	}
	msgType, ok := m.Get(schema.TagMsgType)
	if !ok {
		return nil, fmt.Errorf("%w: MsgType(35) required", ErrValidation)
	}

	body := make([]byte, 0, 128+16*len(m.fields))
	body = tagvalue.AppendField(body, tagvalue.NewField(schema.TagMsgType, msgType))
	for _, tag := range headerOrder {
		if i, ok := m.index(tag); ok {
			body = tagvalue.AppendField(body, m.fields[i])
		}
	}
	for _, f := range m.fields {
		if skipBodyTag(f.Tag) {
			continue
		}
		if len(f.Value) == 0 {
			return nil, fmt.Errorf("%w: tag=%d empty value", ErrValidation, f.Tag)
		}
		body = tagvalue.AppendField(body, f)
	}

	out := make([]byte, 0, len(body)+32)
	out = tagvalue.AppendField(out, tagvalue.NewField(schema.TagBeginString, begin))
	out = tagvalue.AppendField(out, tagvalue.NewField(schema.TagBodyLength, strconv.Itoa(len(body))))
	out = append(out, body...)
	sum := tagvalue.Checksum(out)
	out = tagvalue.AppendField(out, tagvalue.NewField(schema.TagCheckSum, tagvalue.FormatChecksum(sum)))
	return out, nil
}

func skipBodyTag(tag int) bool {
	switch tag {
	case schema.TagBeginString, schema.TagBodyLength, schema.TagMsgType, schema.TagCheckSum:
		return true
	}
	for _, h := range headerOrder {
		if h == tag {
			return true
		}
	}
	return false
}
