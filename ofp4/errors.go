package ofp4

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Error is the body of OFPT_ERROR. It can be used as an error, and
// errors.Is matches on type and code only.
type Error struct {
	Type uint16
	Code uint16
	Data []byte
}

func (obj Error) MarshalBinary() (data []byte, err error) {
	data = append(make([]byte, 4), obj.Data...)
	binary.BigEndian.PutUint16(data[0:2], obj.Type)
	binary.BigEndian.PutUint16(data[2:4], obj.Code)
	return
}

func (obj *Error) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 4 {
		return errBodyLen
	}
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.Code = binary.BigEndian.Uint16(data[2:4])
	obj.Data = nil
	if len(data) > 4 {
		obj.Data = data[4:]
	}
	return
}

func (obj Error) Error() string {
	return fmt.Sprintf("type=%s code=%d", errorTypeNames[obj.Type], obj.Code)
}

func (obj Error) Is(target error) bool {
	var e Error
	switch t := target.(type) {
	case Error:
		e = t
	case *Error:
		e = *t
	default:
		return false
	}
	return obj.Type == e.Type && obj.Code == e.Code
}

var errorTypeNames = map[uint16]string{
	OFPET_HELLO_FAILED:          "HELLO_FAILED",
	OFPET_BAD_REQUEST:           "BAD_REQUEST",
	OFPET_BAD_ACTION:            "BAD_ACTION",
	OFPET_BAD_INSTRUCTION:       "BAD_INSTRUCTION",
	OFPET_BAD_MATCH:             "BAD_MATCH",
	OFPET_FLOW_MOD_FAILED:       "FLOW_MOD_FAILED",
	OFPET_GROUP_MOD_FAILED:      "GROUP_MOD_FAILED",
	OFPET_PORT_MOD_FAILED:       "PORT_MOD_FAILED",
	OFPET_TABLE_MOD_FAILED:      "TABLE_MOD_FAILED",
	OFPET_QUEUE_OP_FAILED:       "QUEUE_OP_FAILED",
	OFPET_SWITCH_CONFIG_FAILED:  "SWITCH_CONFIG_FAILED",
	OFPET_ROLE_REQUEST_FAILED:   "ROLE_REQUEST_FAILED",
	OFPET_METER_MOD_FAILED:      "METER_MOD_FAILED",
	OFPET_TABLE_FEATURES_FAILED: "TABLE_FEATURES_FAILED",
	OFPET_EXPERIMENTER:          "EXPERIMENTER",
}

// ErrorData returns the leading bytes of a rejected request, as carried in
// the data field of an error reply.
func ErrorData(request []byte) []byte {
	if len(request) > 64 {
		request = request[:64]
	}
	return append([]byte(nil), request...)
}

type DecodeKind int

const (
	BadVersion DecodeKind = iota + 1
	BadType
	BadLength
	Truncated
)

func (k DecodeKind) String() string {
	switch k {
	case BadVersion:
		return "bad version"
	case BadType:
		return "bad type"
	case BadLength:
		return "bad length"
	case Truncated:
		return "truncated"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DecodeError reports a message that could not be decoded. Header fields
// are filled in as far as they could be read, so the peer can be told
// which request failed.
type DecodeError struct {
	Kind    DecodeKind
	Version uint8
	Type    uint8
	Xid     uint32
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode type=%d xid=%d: %s: %v", e.Type, e.Xid, e.Kind, e.Err)
	}
	return fmt.Sprintf("decode type=%d xid=%d: %s", e.Type, e.Xid, e.Kind)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reply is the error body a receiver should send back. A body decoder
// may pin a more specific code by failing with an Error.
func (e *DecodeError) Reply() Error {
	var specific Error
	if errors.As(e.Err, &specific) {
		return specific
	}
	switch e.Kind {
	case BadVersion:
		return Error{Type: OFPET_BAD_REQUEST, Code: OFPBRC_BAD_VERSION}
	case BadType:
		return Error{Type: OFPET_BAD_REQUEST, Code: OFPBRC_BAD_TYPE}
	}
	return Error{Type: OFPET_BAD_REQUEST, Code: OFPBRC_BAD_LEN}
}

type EncodeError struct {
	Type uint8
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode type=%d: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

var (
	errBodyLen     = errors.New("body length mismatch")
	errTlvLen      = errors.New("element length out of range")
	errTooLong     = errors.New("message exceeds 65535 bytes")
	errUnknownType = errors.New("unknown message type")
)
