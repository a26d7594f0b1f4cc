package ofp4

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
)

var errBadMultipart = Error{Type: OFPET_BAD_REQUEST, Code: OFPBRC_BAD_MULTIPART}

/*
Multipart bodies by type:

	              request             reply
	OFPMP_DESC       _                   Desc
	OFPMP_FLOW       FlowStatsRequest    Array of FlowStats
	OFPMP_AGGREGATE  FlowStatsRequest    AggregateStatsReply
	OFPMP_TABLE      _                   Array of TableStats
	OFPMP_PORT_STATS PortStatsRequest    Array of PortStats
	OFPMP_PORT_DESC  _                   Array of Port
*/
type MultipartRequest struct {
	Type  uint16
	Flags uint16
	Body  encoding.BinaryMarshaler
}

func multipartHeader(mtype, flags uint16, body encoding.BinaryMarshaler) ([]byte, error) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], mtype)
	binary.BigEndian.PutUint16(data[2:4], flags)
	// 4 padding
	if body != nil {
		buf, err := body.MarshalBinary()
		if err != nil {
			return nil, err
		}
		data = append(data, buf...)
	}
	return data, nil
}

func (obj MultipartRequest) MarshalBinary() ([]byte, error) {
	return multipartHeader(obj.Type, obj.Flags, obj.Body)
}

func (obj *MultipartRequest) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 8 {
		return errBodyLen
	}
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.Flags = binary.BigEndian.Uint16(data[2:4])
	obj.Body = nil
	payload := data[8:]
	var body encoding.BinaryUnmarshaler
	switch obj.Type {
	default:
		return errBadMultipart
	case OFPMP_DESC, OFPMP_TABLE, OFPMP_PORT_DESC:
		if len(payload) != 0 {
			return errBodyLen
		}
	case OFPMP_FLOW, OFPMP_AGGREGATE:
		body = new(FlowStatsRequest)
	case OFPMP_PORT_STATS:
		body = new(PortStatsRequest)
	}
	if body != nil {
		if err = body.UnmarshalBinary(payload); err != nil {
			return
		}
		obj.Body = body.(encoding.BinaryMarshaler)
	}
	return
}

type MultipartReply struct {
	Type  uint16
	Flags uint16
	Body  encoding.BinaryMarshaler
}

func (obj MultipartReply) MarshalBinary() ([]byte, error) {
	return multipartHeader(obj.Type, obj.Flags, obj.Body)
}

func (obj *MultipartReply) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 8 {
		return errBodyLen
	}
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.Flags = binary.BigEndian.Uint16(data[2:4])
	payload := data[8:]
	switch obj.Type {
	default:
		return errBadMultipart
	case OFPMP_DESC:
		body := new(Desc)
		if err = body.UnmarshalBinary(payload); err != nil {
			return
		}
		obj.Body = body
	case OFPMP_AGGREGATE:
		body := new(AggregateStatsReply)
		if err = body.UnmarshalBinary(payload); err != nil {
			return
		}
		obj.Body = body
	case OFPMP_FLOW:
		var array Array
		err = eachTLV(payload, 0, 56, func(elem []byte) error {
			entry := new(FlowStats)
			if err := entry.UnmarshalBinary(elem); err != nil {
				return err
			}
			array = append(array, entry)
			return nil
		})
		obj.Body = array
	case OFPMP_TABLE:
		obj.Body, err = fixedArray(payload, 24, func() encoding.BinaryUnmarshaler { return new(TableStats) })
	case OFPMP_PORT_STATS:
		obj.Body, err = fixedArray(payload, 112, func() encoding.BinaryUnmarshaler { return new(PortStats) })
	case OFPMP_PORT_DESC:
		obj.Body, err = fixedArray(payload, 64, func() encoding.BinaryUnmarshaler { return new(Port) })
	}
	return
}

func fixedArray(data []byte, size int, factory func() encoding.BinaryUnmarshaler) (Array, error) {
	if len(data)%size != 0 {
		return nil, errBodyLen
	}
	var array Array
	for cur := 0; cur < len(data); cur += size {
		entry := factory()
		if err := entry.UnmarshalBinary(data[cur : cur+size]); err != nil {
			return nil, err
		}
		array = append(array, entry.(encoding.BinaryMarshaler))
	}
	return array, nil
}

// Append merges the body of a continuation reply into obj.
func (obj *MultipartReply) Append(next MultipartReply) error {
	if next.Type != obj.Type {
		return fmt.Errorf("multipart continuation type %d for %d", next.Type, obj.Type)
	}
	obj.Flags = next.Flags
	if next.Body == nil {
		return nil
	}
	head, ok1 := obj.Body.(Array)
	tail, ok2 := next.Body.(Array)
	if obj.Body != nil && !ok1 || !ok2 {
		return fmt.Errorf("multipart type %d cannot be continued", obj.Type)
	}
	obj.Body = append(head, tail...)
	return nil
}

type Desc struct {
	MfrDesc   string
	HwDesc    string
	SwDesc    string
	SerialNum string
	DpDesc    string
}

func putString(buf []byte, s string) {
	b := []byte(s)
	if len(b) > len(buf)-1 {
		b = b[:len(buf)-1]
	}
	copy(buf, b)
}

func getString(buf []byte) string {
	if end := bytes.IndexByte(buf, 0); end >= 0 {
		buf = buf[:end]
	}
	return string(buf)
}

func (obj Desc) MarshalBinary() ([]byte, error) {
	data := make([]byte, 1056)
	putString(data[0:256], obj.MfrDesc)
	putString(data[256:512], obj.HwDesc)
	putString(data[512:768], obj.SwDesc)
	putString(data[768:800], obj.SerialNum)
	putString(data[800:1056], obj.DpDesc)
	return data, nil
}

func (obj *Desc) UnmarshalBinary(data []byte) error {
	if len(data) != 1056 {
		return errBodyLen
	}
	obj.MfrDesc = getString(data[0:256])
	obj.HwDesc = getString(data[256:512])
	obj.SwDesc = getString(data[512:768])
	obj.SerialNum = getString(data[768:800])
	obj.DpDesc = getString(data[800:1056])
	return nil
}

// FlowStatsRequest is the request body of both OFPMP_FLOW and
// OFPMP_AGGREGATE.
type FlowStatsRequest struct {
	TableId    uint8
	OutPort    uint32
	OutGroup   uint32
	Cookie     uint64
	CookieMask uint64
	Match      Match
}

func (obj FlowStatsRequest) MarshalBinary() ([]byte, error) {
	data := make([]byte, 32)
	if match, err := obj.Match.MarshalBinary(); err != nil {
		return nil, err
	} else {
		data = append(data, match...)
	}
	data[0] = obj.TableId
	binary.BigEndian.PutUint32(data[4:8], obj.OutPort)
	binary.BigEndian.PutUint32(data[8:12], obj.OutGroup)
	binary.BigEndian.PutUint64(data[16:24], obj.Cookie)
	binary.BigEndian.PutUint64(data[24:32], obj.CookieMask)
	return data, nil
}

func (obj *FlowStatsRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 32 {
		return errBodyLen
	}
	if size, err := matchSize(data[32:]); err != nil {
		return err
	} else if 32+size != len(data) {
		return errBodyLen
	}
	if err := obj.Match.UnmarshalBinary(data[32:]); err != nil {
		return err
	}
	obj.TableId = data[0]
	obj.OutPort = binary.BigEndian.Uint32(data[4:8])
	obj.OutGroup = binary.BigEndian.Uint32(data[8:12])
	obj.Cookie = binary.BigEndian.Uint64(data[16:24])
	obj.CookieMask = binary.BigEndian.Uint64(data[24:32])
	return nil
}

type FlowStats struct {
	TableId      uint8
	DurationSec  uint32
	DurationNsec uint32
	Priority     uint16
	IdleTimeout  uint16
	HardTimeout  uint16
	Flags        uint16
	Cookie       uint64
	PacketCount  uint64
	ByteCount    uint64
	Match        Match
	Instructions []Instruction
}

func (obj FlowStats) MarshalBinary() (data []byte, err error) {
	var match, insts []byte
	if match, err = obj.Match.MarshalBinary(); err != nil {
		return
	}
	if insts, err = instructionList(obj.Instructions).MarshalBinary(); err != nil {
		return
	}
	data = append(append(make([]byte, 48), match...), insts...)
	if len(data) > 0xffff {
		return nil, errTooLong
	}
	binary.BigEndian.PutUint16(data[0:2], uint16(len(data)))
	data[2] = obj.TableId
	binary.BigEndian.PutUint32(data[4:8], obj.DurationSec)
	binary.BigEndian.PutUint32(data[8:12], obj.DurationNsec)
	binary.BigEndian.PutUint16(data[12:14], obj.Priority)
	binary.BigEndian.PutUint16(data[14:16], obj.IdleTimeout)
	binary.BigEndian.PutUint16(data[16:18], obj.HardTimeout)
	binary.BigEndian.PutUint16(data[18:20], obj.Flags)
	binary.BigEndian.PutUint64(data[24:32], obj.Cookie)
	binary.BigEndian.PutUint64(data[32:40], obj.PacketCount)
	binary.BigEndian.PutUint64(data[40:48], obj.ByteCount)
	return
}

func (obj *FlowStats) UnmarshalBinary(data []byte) error {
	if len(data) < 56 {
		return errBodyLen
	}
	size, err := matchSize(data[48:])
	if err != nil {
		return err
	}
	if err := obj.Match.UnmarshalBinary(data[48:]); err != nil {
		return err
	}
	var instructions instructionList
	if err := instructions.UnmarshalBinary(data[48+size:]); err != nil {
		return err
	}
	obj.Instructions = []Instruction(instructions)
	obj.TableId = data[2]
	obj.DurationSec = binary.BigEndian.Uint32(data[4:8])
	obj.DurationNsec = binary.BigEndian.Uint32(data[8:12])
	obj.Priority = binary.BigEndian.Uint16(data[12:14])
	obj.IdleTimeout = binary.BigEndian.Uint16(data[14:16])
	obj.HardTimeout = binary.BigEndian.Uint16(data[16:18])
	obj.Flags = binary.BigEndian.Uint16(data[18:20])
	obj.Cookie = binary.BigEndian.Uint64(data[24:32])
	obj.PacketCount = binary.BigEndian.Uint64(data[32:40])
	obj.ByteCount = binary.BigEndian.Uint64(data[40:48])
	return nil
}

type AggregateStatsReply struct {
	PacketCount uint64
	ByteCount   uint64
	FlowCount   uint32
}

func (obj AggregateStatsReply) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 24)
	binary.BigEndian.PutUint64(data[0:8], obj.PacketCount)
	binary.BigEndian.PutUint64(data[8:16], obj.ByteCount)
	binary.BigEndian.PutUint32(data[16:20], obj.FlowCount)
	return
}

func (obj *AggregateStatsReply) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 24 {
		return errBodyLen
	}
	obj.PacketCount = binary.BigEndian.Uint64(data[0:8])
	obj.ByteCount = binary.BigEndian.Uint64(data[8:16])
	obj.FlowCount = binary.BigEndian.Uint32(data[16:20])
	return
}

type TableStats struct {
	TableId      uint8
	ActiveCount  uint32
	LookupCount  uint64
	MatchedCount uint64
}

func (obj TableStats) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 24)
	data[0] = obj.TableId
	binary.BigEndian.PutUint32(data[4:8], obj.ActiveCount)
	binary.BigEndian.PutUint64(data[8:16], obj.LookupCount)
	binary.BigEndian.PutUint64(data[16:24], obj.MatchedCount)
	return
}

func (obj *TableStats) UnmarshalBinary(data []byte) (err error) {
	obj.TableId = data[0]
	obj.ActiveCount = binary.BigEndian.Uint32(data[4:8])
	obj.LookupCount = binary.BigEndian.Uint64(data[8:16])
	obj.MatchedCount = binary.BigEndian.Uint64(data[16:24])
	return
}

type PortStatsRequest struct {
	PortNo uint32
}

func (obj PortStatsRequest) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], obj.PortNo)
	return
}

func (obj *PortStatsRequest) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 8 {
		return errBodyLen
	}
	obj.PortNo = binary.BigEndian.Uint32(data[0:4])
	return
}

type PortStats struct {
	PortNo       uint32
	RxPackets    uint64
	TxPackets    uint64
	RxBytes      uint64
	TxBytes      uint64
	RxDropped    uint64
	TxDropped    uint64
	RxErrors     uint64
	TxErrors     uint64
	RxFrameErr   uint64
	RxOverErr    uint64
	RxCrcErr     uint64
	Collisions   uint64
	DurationSec  uint32
	DurationNsec uint32
}

func (obj PortStats) MarshalBinary() (data []byte, err error) {
	data = make([]byte, 112)
	binary.BigEndian.PutUint32(data[0:4], obj.PortNo)
	for i, v := range []uint64{
		obj.RxPackets, obj.TxPackets, obj.RxBytes, obj.TxBytes,
		obj.RxDropped, obj.TxDropped, obj.RxErrors, obj.TxErrors,
		obj.RxFrameErr, obj.RxOverErr, obj.RxCrcErr, obj.Collisions,
	} {
		binary.BigEndian.PutUint64(data[8+8*i:], v)
	}
	binary.BigEndian.PutUint32(data[104:108], obj.DurationSec)
	binary.BigEndian.PutUint32(data[108:112], obj.DurationNsec)
	return
}

func (obj *PortStats) UnmarshalBinary(data []byte) (err error) {
	obj.PortNo = binary.BigEndian.Uint32(data[0:4])
	for i, p := range []*uint64{
		&obj.RxPackets, &obj.TxPackets, &obj.RxBytes, &obj.TxBytes,
		&obj.RxDropped, &obj.TxDropped, &obj.RxErrors, &obj.TxErrors,
		&obj.RxFrameErr, &obj.RxOverErr, &obj.RxCrcErr, &obj.Collisions,
	} {
		*p = binary.BigEndian.Uint64(data[8+8*i:])
	}
	obj.DurationSec = binary.BigEndian.Uint32(data[104:108])
	obj.DurationNsec = binary.BigEndian.Uint32(data[108:112])
	return
}
