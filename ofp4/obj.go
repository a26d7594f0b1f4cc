package ofp4

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jackyang74/oftest/oxm"
)

func align8(num int) int {
	return (num + 7) / 8 * 8
}

// TypedData is a TLV element whose first 16 bits are its type.
type TypedData interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	GetType() uint16
}

type Action TypedData
type Instruction TypedData

type Bytes []byte

func (obj Bytes) MarshalBinary() (data []byte, err error) {
	return []byte(obj), nil
}

type Array []encoding.BinaryMarshaler

func (obj Array) MarshalBinary() ([]byte, error) {
	var data []byte
	for _, a := range []encoding.BinaryMarshaler(obj) {
		if buf, err := a.MarshalBinary(); err != nil {
			return nil, err
		} else {
			data = append(data, buf...)
		}
	}
	return data, nil
}

// eachTLV walks a list of elements whose 16-bit length sits at lenOff.
// Every element must be at least minLen long and fit in data.
func eachTLV(data []byte, lenOff, minLen int, fn func(elem []byte) error) error {
	for cur := 0; cur < len(data); {
		if cur+lenOff+2 > len(data) {
			return errTlvLen
		}
		length := int(binary.BigEndian.Uint16(data[cur+lenOff:]))
		if length < minLen || cur+length > len(data) {
			return errTlvLen
		}
		if err := fn(data[cur : cur+length]); err != nil {
			return err
		}
		cur += length
	}
	return nil
}

type Header struct {
	Version uint8
	Type    uint8
	Xid     uint32
}

/*
Message bodies by type:

	OFPT_HELLO                    Array of HelloElementVersionbitmap, HelloElementUnknown
	OFPT_ERROR                    Error
	OFPT_ECHO_REQUEST             Bytes
	OFPT_ECHO_REPLY               Bytes
	OFPT_EXPERIMENTER             Experimenter

	OFPT_FEATURES_REQUEST         _
	OFPT_FEATURES_REPLY           SwitchFeatures
	OFPT_GET_CONFIG_REQUEST       _
	OFPT_GET_CONFIG_REPLY         SwitchConfig
	OFPT_SET_CONFIG               SwitchConfig

	OFPT_PACKET_IN                PacketIn
	OFPT_FLOW_REMOVED             FlowRemoved
	OFPT_PORT_STATUS              PortStatus

	OFPT_PACKET_OUT               PacketOut
	OFPT_FLOW_MOD                 FlowMod

	OFPT_MULTIPART_REQUEST        MultipartRequest
	OFPT_MULTIPART_REPLY          MultipartReply

	OFPT_BARRIER_REQUEST          _
	OFPT_BARRIER_REPLY            _

Group, port, table and meter modification, queue config, role and async
config messages are not modelled; decoding them fails with BadType.
*/
type Message struct {
	Header
	Body encoding.BinaryMarshaler
}

// Encode serializes a message. The length field is computed here.
func Encode(msg *Message) ([]byte, error) {
	return msg.MarshalBinary()
}

// Decode parses exactly one message. The returned message may share
// memory with data.
func Decode(data []byte) (*Message, error) {
	msg := new(Message)
	if err := msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return msg, nil
}

func (obj Message) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 8)
	if obj.Body != nil {
		var buf []byte
		if buf, err = obj.Body.MarshalBinary(); err != nil {
			return nil, &EncodeError{Type: obj.Type, Err: err}
		}
		data = append(data, buf...)
	}
	if len(data) > OFP_MAX_MESSAGE_LEN {
		return nil, &EncodeError{Type: obj.Type, Err: errTooLong}
	}
	data[0] = obj.Version
	data[1] = obj.Type
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	binary.BigEndian.PutUint32(data[4:8], obj.Xid)
	return
}

func (obj *Message) UnmarshalBinary(data []byte) error {
	*obj = Message{}
	fail := func(kind DecodeKind, err error) error {
		return &DecodeError{Kind: kind, Version: obj.Version, Type: obj.Type, Xid: obj.Xid, Err: err}
	}
	if len(data) > 0 {
		obj.Version = data[0]
	}
	if len(data) > 1 {
		obj.Type = data[1]
	}
	if len(data) < 8 {
		return fail(Truncated, nil)
	}
	obj.Xid = binary.BigEndian.Uint32(data[4:8])
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < 8 || len(data) > length {
		return fail(BadLength, errBodyLen)
	}
	if len(data) < length {
		return fail(Truncated, nil)
	}
	if obj.Type != OFPT_HELLO && obj.Version != OFP_VERSION {
		return fail(BadVersion, nil)
	}
	payload := data[8:length]

	var body encoding.BinaryUnmarshaler
	switch obj.Type {
	default:
		return fail(BadType, errUnknownType)
	case OFPT_FEATURES_REQUEST, OFPT_GET_CONFIG_REQUEST, OFPT_BARRIER_REQUEST, OFPT_BARRIER_REPLY:
		if len(payload) != 0 {
			return fail(BadLength, errBodyLen)
		}
	case OFPT_HELLO:
		elements, err := helloElementsUnmarshalBinary(payload)
		if err != nil {
			return fail(BadLength, err)
		}
		if len(elements) > 0 {
			obj.Body = Array(elements)
		}
	case OFPT_ECHO_REQUEST, OFPT_ECHO_REPLY:
		if len(payload) > 0 {
			obj.Body = Bytes(payload)
		}
	case OFPT_ERROR:
		body = new(Error)
	case OFPT_EXPERIMENTER:
		body = new(Experimenter)
	case OFPT_FEATURES_REPLY:
		body = new(SwitchFeatures)
	case OFPT_GET_CONFIG_REPLY, OFPT_SET_CONFIG:
		body = new(SwitchConfig)
	case OFPT_PACKET_IN:
		body = new(PacketIn)
	case OFPT_FLOW_REMOVED:
		body = new(FlowRemoved)
	case OFPT_PORT_STATUS:
		body = new(PortStatus)
	case OFPT_PACKET_OUT:
		body = new(PacketOut)
	case OFPT_FLOW_MOD:
		body = new(FlowMod)
	case OFPT_MULTIPART_REQUEST:
		body = new(MultipartRequest)
	case OFPT_MULTIPART_REPLY:
		body = new(MultipartReply)
	}
	if body != nil {
		if err := body.UnmarshalBinary(payload); err != nil {
			if errors.Is(err, errBadMultipart) {
				return fail(BadType, err)
			}
			return fail(BadLength, err)
		}
		obj.Body = body.(encoding.BinaryMarshaler)
	}
	return nil
}

func (obj Message) String() string {
	return fmt.Sprintf("%s(xid=%d)", TypeName(obj.Type), obj.Xid)
}

func helloElementsUnmarshalBinary(data []byte) ([]encoding.BinaryMarshaler, error) {
	var elements []encoding.BinaryMarshaler
	for cur := 0; cur < len(data); {
		if cur+4 > len(data) {
			return nil, errTlvLen
		}
		eType := binary.BigEndian.Uint16(data[cur : cur+2])
		eLength := int(binary.BigEndian.Uint16(data[cur+2 : cur+4]))
		if eLength < 4 || cur+eLength > len(data) {
			return nil, errTlvLen
		}
		payload := data[cur : cur+eLength]
		switch eType {
		case OFPHET_VERSIONBITMAP:
			element := new(HelloElementVersionbitmap)
			if err := element.UnmarshalBinary(payload); err != nil {
				return nil, err
			}
			elements = append(elements, element)
		default:
			elements = append(elements, &HelloElementUnknown{Type: eType, Data: payload[4:]})
		}
		cur += align8(eLength)
	}
	return elements, nil
}

type HelloElementVersionbitmap struct {
	Bitmaps []uint32
}

func (obj HelloElementVersionbitmap) MarshalBinary() (data []byte, err error) {
	if len(obj.Bitmaps) == 0 {
		return nil, errors.New("empty version bitmap")
	}
	length := 4 + 4*len(obj.Bitmaps)
	data = make([]byte, align8(length))
	binary.BigEndian.PutUint16(data[0:2], OFPHET_VERSIONBITMAP)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	for i, element := range obj.Bitmaps {
		off := 4 + 4*i
		binary.BigEndian.PutUint32(data[off:off+4], element)
	}
	return
}

func (obj *HelloElementVersionbitmap) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 8 || len(data)%4 != 0 {
		return errBodyLen
	}
	obj.Bitmaps = make([]uint32, len(data)/4-1)
	for i := range obj.Bitmaps {
		off := 4 + 4*i
		obj.Bitmaps[i] = binary.BigEndian.Uint32(data[off : off+4])
	}
	return
}

// Supports reports whether version is set in the bitmap.
func (obj HelloElementVersionbitmap) Supports(version uint8) bool {
	idx := int(version / 32)
	if idx >= len(obj.Bitmaps) {
		return false
	}
	return obj.Bitmaps[idx]&(1<<(version%32)) != 0
}

// VersionBitmap builds a bitmap element advertising versions.
func VersionBitmap(versions ...uint8) *HelloElementVersionbitmap {
	var bitmaps []uint32
	for _, v := range versions {
		idx := int(v / 32)
		for len(bitmaps) <= idx {
			bitmaps = append(bitmaps, 0)
		}
		bitmaps[idx] |= 1 << (v % 32)
	}
	return &HelloElementVersionbitmap{Bitmaps: bitmaps}
}

type HelloElementUnknown struct {
	Type uint16
	Data []byte
}

func (obj HelloElementUnknown) MarshalBinary() ([]byte, error) {
	length := 4 + len(obj.Data)
	data := make([]byte, align8(length))
	binary.BigEndian.PutUint16(data[0:2], obj.Type)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	copy(data[4:], obj.Data)
	return data, nil
}

type Experimenter struct {
	Experimenter uint32
	ExpType      uint32
	Data         []byte
}

func (obj Experimenter) MarshalBinary() (data []byte, err error) {
	data = append(make([]byte, 8), obj.Data...)
	binary.BigEndian.PutUint32(data[0:4], obj.Experimenter)
	binary.BigEndian.PutUint32(data[4:8], obj.ExpType)
	return
}

func (obj *Experimenter) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 8 {
		return errBodyLen
	}
	obj.Experimenter = binary.BigEndian.Uint32(data[0:4])
	obj.ExpType = binary.BigEndian.Uint32(data[4:8])
	if len(data) > 8 {
		obj.Data = data[8:]
	}
	return
}

type SwitchFeatures struct {
	DatapathId   uint64
	NBuffers     uint32
	NTables      uint8
	AuxiliaryId  uint8
	Capabilities uint32
}

func (obj SwitchFeatures) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 24)
	binary.BigEndian.PutUint64(data[0:8], obj.DatapathId)
	binary.BigEndian.PutUint32(data[8:12], obj.NBuffers)
	data[12] = obj.NTables
	data[13] = obj.AuxiliaryId
	binary.BigEndian.PutUint32(data[16:20], obj.Capabilities)
	return
}

func (obj *SwitchFeatures) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 24 {
		return errBodyLen
	}
	obj.DatapathId = binary.BigEndian.Uint64(data[0:8])
	obj.NBuffers = binary.BigEndian.Uint32(data[8:12])
	obj.NTables = data[12]
	obj.AuxiliaryId = data[13]
	obj.Capabilities = binary.BigEndian.Uint32(data[16:20])
	return
}

type SwitchConfig struct {
	Flags       uint16
	MissSendLen uint16
}

func (obj SwitchConfig) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], obj.Flags)
	binary.BigEndian.PutUint16(data[2:4], obj.MissSendLen)
	return
}

func (obj *SwitchConfig) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 4 {
		return Error{Type: OFPET_SWITCH_CONFIG_FAILED, Code: OFPSCFC_BAD_LEN}
	}
	obj.Flags = binary.BigEndian.Uint16(data[0:2])
	obj.MissSendLen = binary.BigEndian.Uint16(data[2:4])
	return
}

// Match is ofp_match. OxmFields holds the raw OXM TLVs.
type Match struct {
	Type      uint16
	OxmFields oxm.Oxm
}

func NewMatch(fields ...oxm.Oxm) Match {
	var buf []byte
	for _, f := range fields {
		buf = append(buf, f...)
	}
	return Match{Type: OFPMT_OXM, OxmFields: buf}
}

func (obj Match) MarshalBinary() (data []byte, err error) {
	length := 4 + len(obj.OxmFields) // excluding padding
	if length > 0xffff {
		return nil, errTooLong
	}
	data = make([]byte, align8(length))
	binary.BigEndian.PutUint16(data[0:2], obj.Type)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	copy(data[4:], obj.OxmFields)
	return
}

// UnmarshalBinary reads a match from the head of data, which may hold
// trailing bytes. Use matchSize to find where the padded match ends.
func (obj *Match) UnmarshalBinary(data []byte) (err error) {
	if _, err = matchSize(data); err != nil {
		return
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.OxmFields = nil
	if length > 4 {
		fields := oxm.Oxm(data[4:length])
		if err := fields.Validate(); errors.Is(err, oxm.ErrTruncated) {
			return Error{Type: OFPET_BAD_MATCH, Code: OFPBMC_BAD_LEN}
		}
		obj.OxmFields = fields
	}
	return
}

// matchSize returns the padded size of the match at the head of data.
func matchSize(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, errBodyLen
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < 4 || align8(length) > len(data) {
		return 0, errBodyLen
	}
	return align8(length), nil
}

type PacketIn struct {
	BufferId uint32
	TotalLen uint16
	Reason   uint8
	TableId  uint8
	Cookie   uint64
	Match    Match
	Data     []byte
}

func (obj PacketIn) MarshalBinary() (data []byte, err error) {
	var match []byte
	if match, err = obj.Match.MarshalBinary(); err != nil {
		return
	}
	data = make([]byte, 16, 16+len(match)+2+len(obj.Data))
	binary.BigEndian.PutUint32(data[0:4], obj.BufferId)
	binary.BigEndian.PutUint16(data[4:6], obj.TotalLen)
	data[6] = obj.Reason
	data[7] = obj.TableId
	binary.BigEndian.PutUint64(data[8:16], obj.Cookie)
	data = append(data, match...)
	data = append(data, 0, 0)
	data = append(data, obj.Data...)
	return
}

func (obj *PacketIn) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 16 {
		return errBodyLen
	}
	size, err := matchSize(data[16:])
	if err != nil {
		return err
	}
	if err = obj.Match.UnmarshalBinary(data[16:]); err != nil {
		return
	}
	if len(data) < 16+size+2 {
		return errBodyLen
	}
	obj.BufferId = binary.BigEndian.Uint32(data[0:4])
	obj.TotalLen = binary.BigEndian.Uint16(data[4:6])
	obj.Reason = data[6]
	obj.TableId = data[7]
	obj.Cookie = binary.BigEndian.Uint64(data[8:16])
	obj.Data = nil
	if rest := data[16+size+2:]; len(rest) > 0 {
		obj.Data = rest
	}
	return
}

type FlowRemoved struct {
	Cookie       uint64
	Priority     uint16
	Reason       uint8
	TableId      uint8
	DurationSec  uint32
	DurationNsec uint32
	IdleTimeout  uint16
	HardTimeout  uint16
	PacketCount  uint64
	ByteCount    uint64
	Match        Match
}

func (obj FlowRemoved) MarshalBinary() (data []byte, err error) {
	var match []byte
	if match, err = obj.Match.MarshalBinary(); err != nil {
		return
	}
	data = append(make([]byte, 40), match...)
	binary.BigEndian.PutUint64(data[0:8], obj.Cookie)
	binary.BigEndian.PutUint16(data[8:10], obj.Priority)
	data[10] = obj.Reason
	data[11] = obj.TableId
	binary.BigEndian.PutUint32(data[12:16], obj.DurationSec)
	binary.BigEndian.PutUint32(data[16:20], obj.DurationNsec)
	binary.BigEndian.PutUint16(data[20:22], obj.IdleTimeout)
	binary.BigEndian.PutUint16(data[22:24], obj.HardTimeout)
	binary.BigEndian.PutUint64(data[24:32], obj.PacketCount)
	binary.BigEndian.PutUint64(data[32:40], obj.ByteCount)
	return
}

func (obj *FlowRemoved) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 40 {
		return errBodyLen
	}
	if size, err := matchSize(data[40:]); err != nil {
		return err
	} else if 40+size != len(data) {
		return errBodyLen
	}
	if err = obj.Match.UnmarshalBinary(data[40:]); err != nil {
		return
	}
	obj.Cookie = binary.BigEndian.Uint64(data[0:8])
	obj.Priority = binary.BigEndian.Uint16(data[8:10])
	obj.Reason = data[10]
	obj.TableId = data[11]
	obj.DurationSec = binary.BigEndian.Uint32(data[12:16])
	obj.DurationNsec = binary.BigEndian.Uint32(data[16:20])
	obj.IdleTimeout = binary.BigEndian.Uint16(data[20:22])
	obj.HardTimeout = binary.BigEndian.Uint16(data[22:24])
	obj.PacketCount = binary.BigEndian.Uint64(data[24:32])
	obj.ByteCount = binary.BigEndian.Uint64(data[32:40])
	return
}

type Port struct {
	PortNo     uint32
	HwAddr     [OFP_ETH_ALEN]byte
	Name       string
	Config     uint32
	State      uint32
	Curr       uint32
	Advertised uint32
	Supported  uint32
	Peer       uint32
	CurrSpeed  uint32
	MaxSpeed   uint32
}

func (obj Port) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 64)
	binary.BigEndian.PutUint32(data[0:4], obj.PortNo)
	copy(data[8:14], obj.HwAddr[:])
	name := []byte(obj.Name)
	if len(name) > OFP_MAX_PORT_NAME_LEN-1 {
		name = name[:OFP_MAX_PORT_NAME_LEN-1]
	}
	copy(data[16:32], name)
	binary.BigEndian.PutUint32(data[32:36], obj.Config)
	binary.BigEndian.PutUint32(data[36:40], obj.State)
	binary.BigEndian.PutUint32(data[40:44], obj.Curr)
	binary.BigEndian.PutUint32(data[44:48], obj.Advertised)
	binary.BigEndian.PutUint32(data[48:52], obj.Supported)
	binary.BigEndian.PutUint32(data[52:56], obj.Peer)
	binary.BigEndian.PutUint32(data[56:60], obj.CurrSpeed)
	binary.BigEndian.PutUint32(data[60:64], obj.MaxSpeed)
	return
}

func (obj *Port) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 64 {
		return errBodyLen
	}
	obj.PortNo = binary.BigEndian.Uint32(data[0:4])
	copy(obj.HwAddr[:], data[8:14])
	name := data[16 : 16+OFP_MAX_PORT_NAME_LEN]
	if end := bytes.IndexByte(name, 0); end >= 0 {
		name = name[:end]
	}
	obj.Name = string(name)
	obj.Config = binary.BigEndian.Uint32(data[32:36])
	obj.State = binary.BigEndian.Uint32(data[36:40])
	obj.Curr = binary.BigEndian.Uint32(data[40:44])
	obj.Advertised = binary.BigEndian.Uint32(data[44:48])
	obj.Supported = binary.BigEndian.Uint32(data[48:52])
	obj.Peer = binary.BigEndian.Uint32(data[52:56])
	obj.CurrSpeed = binary.BigEndian.Uint32(data[56:60])
	obj.MaxSpeed = binary.BigEndian.Uint32(data[60:64])
	return
}

type PortStatus struct {
	Reason uint8
	Desc   Port
}

func (obj PortStatus) MarshalBinary() (data []byte, err error) {
	var desc []byte
	if desc, err = obj.Desc.MarshalBinary(); err != nil {
		return
	}
	data = append(make([]byte, 8), desc...)
	data[0] = obj.Reason
	return
}

func (obj *PortStatus) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 72 {
		return errBodyLen
	}
	obj.Reason = data[0]
	return obj.Desc.UnmarshalBinary(data[8:])
}

type PacketOut struct {
	BufferId uint32
	InPort   uint32
	Actions  []Action
	Data     []byte
}

func (obj PacketOut) MarshalBinary() (data []byte, err error) {
	var actions []byte
	if actions, err = actionList(obj.Actions).MarshalBinary(); err != nil {
		return
	}
	if len(actions) > 0xffff {
		return nil, errTooLong
	}
	data = make([]byte, 16, 16+len(actions)+len(obj.Data))
	binary.BigEndian.PutUint32(data[0:4], obj.BufferId)
	binary.BigEndian.PutUint32(data[4:8], obj.InPort)
	binary.BigEndian.PutUint16(data[8:10], uint16(len(actions)))
	data = append(data, actions...)
	data = append(data, obj.Data...)
	return
}

func (obj *PacketOut) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return errBodyLen
	}
	actionsLen := int(binary.BigEndian.Uint16(data[8:10]))
	if 16+actionsLen > len(data) {
		return errBodyLen
	}
	var actions actionList
	if err := actions.UnmarshalBinary(data[16 : 16+actionsLen]); err != nil {
		return err
	}
	obj.Actions = []Action(actions)
	obj.BufferId = binary.BigEndian.Uint32(data[0:4])
	obj.InPort = binary.BigEndian.Uint32(data[4:8])
	obj.Data = nil
	if rest := data[16+actionsLen:]; len(rest) > 0 {
		obj.Data = rest
	}
	return nil
}

type FlowMod struct {
	Cookie       uint64
	CookieMask   uint64
	TableId      uint8
	Command      uint8
	IdleTimeout  uint16
	HardTimeout  uint16
	Priority     uint16
	BufferId     uint32
	OutPort      uint32
	OutGroup     uint32
	Flags        uint16
	Match        Match
	Instructions []Instruction
}

func (obj FlowMod) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 40)
	binary.BigEndian.PutUint64(data[0:8], obj.Cookie)
	binary.BigEndian.PutUint64(data[8:16], obj.CookieMask)
	data[16] = obj.TableId
	data[17] = obj.Command
	binary.BigEndian.PutUint16(data[18:20], obj.IdleTimeout)
	binary.BigEndian.PutUint16(data[20:22], obj.HardTimeout)
	binary.BigEndian.PutUint16(data[22:24], obj.Priority)
	binary.BigEndian.PutUint32(data[24:28], obj.BufferId)
	binary.BigEndian.PutUint32(data[28:32], obj.OutPort)
	binary.BigEndian.PutUint32(data[32:36], obj.OutGroup)
	binary.BigEndian.PutUint16(data[36:38], obj.Flags)

	if buf, err := obj.Match.MarshalBinary(); err != nil {
		return nil, err
	} else {
		data = append(data, buf...)
	}
	if buf, err := instructionList(obj.Instructions).MarshalBinary(); err != nil {
		return nil, err
	} else {
		data = append(data, buf...)
	}
	return data, nil
}

func (obj *FlowMod) UnmarshalBinary(data []byte) error {
	if len(data) < 40 {
		return errBodyLen
	}
	size, err := matchSize(data[40:])
	if err != nil {
		return err
	}
	if err := obj.Match.UnmarshalBinary(data[40:]); err != nil {
		return err
	}
	var instructions instructionList
	if err := instructions.UnmarshalBinary(data[40+size:]); err != nil {
		return err
	}
	obj.Instructions = []Instruction(instructions)
	obj.Cookie = binary.BigEndian.Uint64(data[0:8])
	obj.CookieMask = binary.BigEndian.Uint64(data[8:16])
	obj.TableId = data[16]
	obj.Command = data[17]
	obj.IdleTimeout = binary.BigEndian.Uint16(data[18:20])
	obj.HardTimeout = binary.BigEndian.Uint16(data[20:22])
	obj.Priority = binary.BigEndian.Uint16(data[22:24])
	obj.BufferId = binary.BigEndian.Uint32(data[24:28])
	obj.OutPort = binary.BigEndian.Uint32(data[28:32])
	obj.OutGroup = binary.BigEndian.Uint32(data[32:36])
	obj.Flags = binary.BigEndian.Uint16(data[36:38])
	return nil
}
