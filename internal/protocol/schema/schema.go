package schema

import (
	"fmt"
	"strconv"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/protocol/tagvalue"
)

// Supported protocol versions.
const (
	BeginStringFIX40 = "FIX.4.0"
	BeginStringFIX41 = "FIX.4.1"
	BeginStringFIX42 = "FIX.4.2"
	BeginStringFIX43 = "FIX.4.3"
	BeginStringFIX44 = "FIX.4.4"
)

// Administrative message types.
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSequenceReset = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
)

// Common application message types.
const (
	MsgTypeExecutionReport = "8"
	MsgTypeNewOrderSingle  = "D"
	MsgTypeOrderCancel     = "F"
)

// Session-layer tags.
const (
	TagBeginSeqNo          = 7
	TagBeginString         = 8
	TagBodyLength          = 9
	TagCheckSum            = 10
	TagEndSeqNo            = 16
	TagMsgSeqNum           = 34
	TagMsgType             = 35
	TagNewSeqNo            = 36
	TagPossDupFlag         = 43
	TagRefSeqNum           = 45
	TagSenderCompID        = 49
	TagSendingTime         = 52
	TagTargetCompID        = 56
	TagText                = 58
	TagPossResend          = 97
	TagEncryptMethod       = 98
	TagHeartBtInt          = 108
	TagTestReqID           = 112
	TagOrigSendingTime     = 122
	TagGapFillFlag         = 123
	TagResetSeqNumFlag     = 141
	TagRefTagID            = 371
	TagRefMsgType          = 372
	TagSessionRejectReason = 373
)

// SessionRejectReason(373) values.
const (
	RejectInvalidTagNumber    = 0
	RejectRequiredTagMissing  = 1
	RejectUndefinedTag        = 3
	RejectTagWithoutValue     = 4
	RejectValueIncorrect      = 5
	RejectIncorrectDataFormat = 6
	RejectCompIDProblem       = 9
	RejectSendingTimeAccuracy = 10
	RejectInvalidMsgType      = 11
	RejectOther               = 99
)

// TimestampLayout is the UTCTimestamp wire format with milliseconds.
const TimestampLayout = "20060102-15:04:05.000"

// Accepted UTCTimestamp layouts, most precise first.
var timestampLayouts = []string{
	TimestampLayout,
	"20060102-15:04:05",
	"20060102-15:04:05.000000",
	"20060102-15:04:05.000000000",
}

type FieldType uint8

const (
	TypeString FieldType = iota
	TypeInt
	TypeSeqNum
	TypeLength
	TypeBoolean
	TypeUTCTimestamp
)

func (t FieldType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeSeqNum:
		return "seqnum"
	case TypeLength:
		return "length"
	case TypeBoolean:
		return "boolean"
	case TypeUTCTimestamp:
		return "utctimestamp"
	default:
		return "string"
	}
}

var fieldTypes = map[int]FieldType{
	TagBeginSeqNo:          TypeSeqNum,
	TagBodyLength:          TypeLength,
	TagEndSeqNo:            TypeSeqNum,
	TagMsgSeqNum:           TypeSeqNum,
	TagNewSeqNo:            TypeSeqNum,
	TagPossDupFlag:         TypeBoolean,
	TagRefSeqNum:           TypeSeqNum,
	TagSendingTime:         TypeUTCTimestamp,
	TagPossResend:          TypeBoolean,
	TagEncryptMethod:       TypeInt,
	TagHeartBtInt:          TypeInt,
	TagOrigSendingTime:     TypeUTCTimestamp,
	TagGapFillFlag:         TypeBoolean,
	TagResetSeqNumFlag:     TypeBoolean,
	TagRefTagID:            TypeInt,
	TagSessionRejectReason: TypeInt,
}

// TypeOf returns the declared type of tag; undeclared tags are strings.
func TypeOf(tag int) FieldType {
	if t, ok := fieldTypes[tag]; ok {
		return t
	}
	return TypeString
}

func IsAdmin(msgType string) bool {
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeReject,
		MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	default:
		return false
	}
}

// IsHeaderTag reports whether tag belongs to the standard header.
func IsHeaderTag(tag int) bool {
	switch tag {
	case TagBeginString, TagBodyLength, TagMsgType, TagSenderCompID, TagTargetCompID,
		TagMsgSeqNum, TagPossDupFlag, TagPossResend, TagSendingTime, TagOrigSendingTime:
		return true
	default:
		return false
	}
}

type ValidationError struct {
	MsgType      string
	Tag          int
	Reason       string
	RejectReason int
}

func (e ValidationError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("schema: msg_type=%q: %s", e.MsgType, e.Reason)
	}
	return fmt.Sprintf("schema: msg_type=%q tag=%d: %s", e.MsgType, e.Tag, e.Reason)
}

var headerRequirements = []int{
	TagBeginString,
	TagMsgType,
	TagSenderCompID,
	TagTargetCompID,
	TagMsgSeqNum,
	TagSendingTime,
}

var requirements = map[string][]int{
	MsgTypeHeartbeat:     {},
	MsgTypeTestRequest:   {TagTestReqID},
	MsgTypeResendRequest: {TagBeginSeqNo, TagEndSeqNo},
	MsgTypeReject:        {TagRefSeqNum},
	MsgTypeSequenceReset: {TagNewSeqNo},
	MsgTypeLogout:        {},
	MsgTypeLogon:         {TagEncryptMethod, TagHeartBtInt},
}

// Validate checks the standard header and, for administrative types, the
// required body tags. Typed tags that are present must parse.
func Validate(msgType string, fields []tagvalue.Field) error {
	logs.Tracef("schema.Validate msg_type=%q fields=%d", msgType, len(fields))
	for _, tag := range headerRequirements {
		if _, ok := tagvalue.GetField(fields, tag); !ok {
			return ValidationError{MsgType: msgType, Tag: tag, Reason: "missing required header field", RejectReason: RejectRequiredTagMissing}
		}
	}
	for _, tag := range requirements[msgType] {
		if _, ok := tagvalue.GetField(fields, tag); !ok {
			logs.Debugf("schema.Validate missing field msg_type=%q tag=%d", msgType, tag)
			return ValidationError{MsgType: msgType, Tag: tag, Reason: "missing required field", RejectReason: RejectRequiredTagMissing}
		}
	}
	for _, f := range fields {
		if err := CheckFormat(TypeOf(f.Tag), f.Value); err != nil {
			logs.Debugf("schema.Validate bad format msg_type=%q tag=%d err=%v", msgType, f.Tag, err)
			return ValidationError{MsgType: msgType, Tag: f.Tag, Reason: err.Error(), RejectReason: RejectIncorrectDataFormat}
		}
	}
	return nil
}

// CheckFormat reports whether value is a valid encoding of typ.
func CheckFormat(typ FieldType, value []byte) error {
	switch typ {
	case TypeInt:
		_, err := ParseInt(value)
		return err
	case TypeSeqNum, TypeLength:
		n, err := ParseInt(value)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative %s %d", typ, n)
		}
		return nil
	case TypeBoolean:
		_, err := ParseBool(value)
		return err
	case TypeUTCTimestamp:
		_, err := ParseTimestamp(value)
		return err
	default:
		return nil
	}
}

func ParseInt(value []byte) (int, error) {
	n, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q", value)
	}
	return n, nil
}

func ParseBool(value []byte) (bool, error) {
	switch string(value) {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}

func FormatBool(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}

func ParseTimestamp(value []byte) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if len(layout) != len(value) {
			continue
		}
		if ts, err := time.Parse(layout, string(value)); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid utctimestamp %q", value)
}

func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}
