package tagvalue

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// SOH terminates every field on the wire.
const SOH byte = 0x01

var (
	ErrMissingSeparator = errors.New("tagvalue: field missing '='")
	ErrInvalidTag       = errors.New("tagvalue: invalid tag")
	ErrEmptyValue       = errors.New("tagvalue: empty value")
	ErrUnterminated     = errors.New("tagvalue: field not terminated by SOH")
)

// Field is one decoded tag=value pair.
type Field struct {
	Tag   int
	Value []byte
}

func NewField(tag int, value string) Field {
	return Field{Tag: tag, Value: []byte(value)}
}

func (f Field) String() string {
	return strconv.Itoa(f.Tag) + "=" + string(f.Value)
}

// AppendField appends "tag=value<SOH>" to dst.
func AppendField(dst []byte, f Field) []byte {
	dst = strconv.AppendInt(dst, int64(f.Tag), 10)
	dst = append(dst, '=')
	dst = append(dst, f.Value...)
	return append(dst, SOH)
}

func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0, 16*len(fields))
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields splits a SOH-delimited payload into fields, preserving order and duplicates.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 16)
	i := 0
	for i < len(payload) {
		end := bytes.IndexByte(payload[i:], SOH)
		if end < 0 {
			return nil, fmt.Errorf("%w: offset=%d", ErrUnterminated, i)
		}
		raw := payload[i : i+end]
		i += end + 1

		eq := bytes.IndexByte(raw, '=')
		if eq < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingSeparator, raw)
		}
		tag, err := ParseTag(raw[:eq])
		if err != nil {
			return nil, err
		}
		if eq == len(raw)-1 {
			return nil, fmt.Errorf("%w: tag=%d", ErrEmptyValue, tag)
		}
		val := make([]byte, len(raw)-eq-1)
		copy(val, raw[eq+1:])
		fields = append(fields, Field{Tag: tag, Value: val})
	}
	return fields, nil
}

func ParseTag(b []byte) (int, error) {
	if len(b) == 0 || (len(b) > 1 && b[0] == '0') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTag, b)
	}
	tag := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTag, b)
		}
		tag = tag*10 + int(c-'0')
		if tag > 1<<24 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTag, b)
		}
	}
	if tag == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTag, b)
	}
	return tag, nil
}

func GetField(fields []Field, tag int) (Field, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

// Checksum is the byte sum of b modulo 256.
func Checksum(b []byte) int {
	sum := 0
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}

func FormatChecksum(sum int) string {
	return fmt.Sprintf("%03d", sum%256)
}
