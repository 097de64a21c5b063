package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("protocol: validation failed")
	ErrTruncated          = errors.New("protocol: truncated message")
	ErrGarbled            = errors.New("protocol: garbled field")
	ErrMissingBeginString = errors.New("protocol: BeginString(8) must be first")
	ErrMissingBodyLength  = errors.New("protocol: BodyLength(9) must be second")
	ErrMissingMsgType     = errors.New("protocol: MsgType(35) must be third")
	ErrMissingCheckSum    = errors.New("protocol: CheckSum(10) must be last")
	ErrBodyLengthMismatch = errors.New("protocol: body length mismatch")
	ErrChecksumMismatch   = errors.New("protocol: checksum mismatch")
	ErrFieldMissing       = errors.New("protocol: field missing")
	ErrFieldFormat        = errors.New("protocol: field format invalid")
)

// ParseError is returned by Decode. Tag is zero when no single field is at fault.
type ParseError struct {
	Tag int
	Err error
}

func (e *ParseError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("protocol: parse: %v", e.Err)
	}
	return fmt.Sprintf("protocol: parse tag=%d: %v", e.Tag, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
