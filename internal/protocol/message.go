package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/protocol/tagvalue"
)

// Message is an ordered tag=value field list. Set* replaces the first
// occurrence of a tag; Add appends, which repeating groups rely on.
type Message struct {
	fields []tagvalue.Field
}

// NewMessage returns a message carrying only MsgType(35).
func NewMessage(msgType string) *Message {
	m := &Message{fields: make([]tagvalue.Field, 0, 16)}
	if msgType != "" {
		m.set(schema.TagMsgType, msgType)
	}
	return m
}

func (m *Message) MsgType() string {
	v, _ := m.Get(schema.TagMsgType)
	return v
}

func (m *Message) IsAdmin() bool {
	return schema.IsAdmin(m.MsgType())
}

// SeqNum returns MsgSeqNum(34).
func (m *Message) SeqNum() (int, error) {
	return m.GetInt(schema.TagMsgSeqNum)
}

// PossDup reports PossDupFlag(43)=Y.
func (m *Message) PossDup() bool {
	v, err := m.GetBool(schema.TagPossDupFlag)
	return err == nil && v
}

func (m *Message) Has(tag int) bool {
	_, ok := m.index(tag)
	return ok
}

func (m *Message) Get(tag int) (string, bool) {
	i, ok := m.index(tag)
	if !ok {
		return "", false
	}
	return string(m.fields[i].Value), true
}

func (m *Message) GetInt(tag int) (int, error) {
	raw, ok := m.Get(tag)
	if !ok {
		return 0, fmt.Errorf("%w: tag=%d", ErrFieldMissing, tag)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: tag=%d value=%q", ErrFieldFormat, tag, raw)
	}
	return n, nil
}

func (m *Message) GetBool(tag int) (bool, error) {
	raw, ok := m.Get(tag)
	if !ok {
		return false, fmt.Errorf("%w: tag=%d", ErrFieldMissing, tag)
	}
	v, err := schema.ParseBool([]byte(raw))
	if err != nil {
		return false, fmt.Errorf("%w: tag=%d: %v", ErrFieldFormat, tag, err)
	}
	return v, nil
}

func (m *Message) GetTime(tag int) (time.Time, error) {
	raw, ok := m.Get(tag)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: tag=%d", ErrFieldMissing, tag)
	}
	ts, err := schema.ParseTimestamp([]byte(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: tag=%d: %v", ErrFieldFormat, tag, err)
	}
	return ts, nil
}

// SetString sets tag to value. Empty values are never valid on the wire.
func (m *Message) SetString(tag int, value string) error {
	if err := checkField(tag, value); err != nil {
		return err
	}
	m.set(tag, value)
	return nil
}

func checkField(tag int, value string) error {
	if tag <= 0 {
		return fmt.Errorf("%w: invalid tag %d", ErrValidation, tag)
	}
	if value == "" {
		return fmt.Errorf("%w: tag=%d empty value", ErrValidation, tag)
	}
	if strings.IndexByte(value, tagvalue.SOH) >= 0 {
		return fmt.Errorf("%w: tag=%d value contains SOH", ErrValidation, tag)
	}
	return nil
}

func (m *Message) SetInt(tag int, v int) {
	m.set(tag, strconv.Itoa(v))
}

func (m *Message) SetBool(tag int, v bool) {
	m.set(tag, schema.FormatBool(v))
}

func (m *Message) SetTime(tag int, ts time.Time) {
	m.set(tag, schema.FormatTimestamp(ts))
}

// Add appends tag=value without replacing earlier occurrences.
func (m *Message) Add(tag int, value string) error {
	if err := checkField(tag, value); err != nil {
		return err
	}
	m.fields = append(m.fields, tagvalue.NewField(tag, value))
	return nil
}

// Remove drops every occurrence of tag.
func (m *Message) Remove(tag int) {
	out := m.fields[:0]
	for _, f := range m.fields {
		if f.Tag != tag {
			out = append(out, f)
		}
	}
	m.fields = out
}

// Fields returns a copy of the field list in wire order of insertion.
func (m *Message) Fields() []tagvalue.Field {
	out := make([]tagvalue.Field, len(m.fields))
	for i, f := range m.fields {
		v := make([]byte, len(f.Value))
		copy(v, f.Value)
		out[i] = tagvalue.Field{Tag: f.Tag, Value: v}
	}
	return out
}

func (m *Message) Clone() *Message {
	return &Message{fields: m.Fields()}
}

// String renders the message with '|' in place of SOH.
func (m *Message) String() string {
	var b strings.Builder
	for _, f := range m.fields {
		b.WriteString(f.String())
		b.WriteByte('|')
	}
	return b.String()
}

func (m *Message) set(tag int, value string) {
	if i, ok := m.index(tag); ok {
		m.fields[i].Value = []byte(value)
		return
	}
	m.fields = append(m.fields, tagvalue.NewField(tag, value))
}

func (m *Message) index(tag int) (int, bool) {
	for i, f := range m.fields {
		if f.Tag == tag {
			return i, true
		}
	}
	return 0, false
}
