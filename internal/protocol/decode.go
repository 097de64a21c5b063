package protocol

import (
	"fmt"
	"strconv"

	"github.com/danmuck/fixgate/internal/protocol/schema"
	"github.com/danmuck/fixgate/internal/protocol/tagvalue"
)

// Decode parses one complete raw message and verifies its framing fields.
func Decode(raw []byte) (*Message, error) {
	fields, err := tagvalue.DecodeFields(raw)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%w: %v", ErrGarbled, err)}
	}
	if len(fields) < 4 {
		return nil, &ParseError{Err: ErrTruncated}
	}
	if fields[0].Tag != schema.TagBeginString {
		return nil, &ParseError{Tag: schema.TagBeginString, Err: ErrMissingBeginString}
	}
	if fields[1].Tag != schema.TagBodyLength {
		return nil, &ParseError{Tag: schema.TagBodyLength, Err: ErrMissingBodyLength}
	}
	if fields[2].Tag != schema.TagMsgType {
		return nil, &ParseError{Tag: schema.TagMsgType, Err: ErrMissingMsgType}
	}
	last := fields[len(fields)-1]
	if last.Tag != schema.TagCheckSum {
		return nil, &ParseError{Tag: schema.TagCheckSum, Err: ErrMissingCheckSum}
	}

	declared, err := strconv.Atoi(string(fields[1].Value))
	if err != nil || declared < 0 {
		return nil, &ParseError{Tag: schema.TagBodyLength, Err: fmt.Errorf("%w: %q", ErrBodyLengthMismatch, fields[1].Value)}
	}
	bodyStart := len(tagvalue.AppendField(nil, fields[0])) + len(tagvalue.AppendField(nil, fields[1]))
	bodyEnd := len(raw) - len(tagvalue.AppendField(nil, last))
	if got := bodyEnd - bodyStart; got != declared {
		return nil, &ParseError{Tag: schema.TagBodyLength, Err: fmt.Errorf("%w: declared=%d actual=%d", ErrBodyLengthMismatch, declared, got)}
	}

	want, err := strconv.Atoi(string(last.Value))
	if err != nil || len(last.Value) != 3 {
		return nil, &ParseError{Tag: schema.TagCheckSum, Err: fmt.Errorf("%w: %q", ErrChecksumMismatch, last.Value)}
	}
	if got := tagvalue.Checksum(raw[:bodyEnd]); got != want {
		return nil, &ParseError{Tag: schema.TagCheckSum, Err: fmt.Errorf("%w: declared=%03d actual=%03d", ErrChecksumMismatch, want, got)}
	}
	return &Message{fields: fields}, nil
}
