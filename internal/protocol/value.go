package protocol

import (
	"fmt"
	"time"

	"github.com/danmuck/fixgate/internal/protocol/schema"
)

// Value is one field decoded according to its declared schema type. Only the
// member selected by Type is meaningful.
type Value struct {
	Type   schema.FieldType
	Int    int
	Bool   bool
	Time   time.Time
	String string
}

// Value decodes tag using schema.TypeOf(tag).
func (m *Message) Value(tag int) (Value, error) {
	raw, ok := m.Get(tag)
	if !ok {
		return Value{}, fmt.Errorf("%w: tag=%d", ErrFieldMissing, tag)
	}
	typ := schema.TypeOf(tag)
	v := Value{Type: typ, String: raw}
	switch typ {
	case schema.TypeInt, schema.TypeSeqNum, schema.TypeLength:
		n, err := m.GetInt(tag)
		if err != nil {
			return Value{}, err
		}
		v.Int = n
	case schema.TypeBoolean:
		b, err := m.GetBool(tag)
		if err != nil {
			return Value{}, err
		}
		v.Bool = b
	case schema.TypeUTCTimestamp:
		ts, err := m.GetTime(tag)
		if err != nil {
			return Value{}, err
		}
		v.Time = ts
	}
	return v, nil
}
