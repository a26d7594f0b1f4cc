package ofp4

import (
	"encoding/binary"
)

var errInstructionLen = Error{Type: OFPET_BAD_INSTRUCTION, Code: OFPBIC_BAD_LEN}

type instructionList []Instruction

func (obj instructionList) MarshalBinary() ([]byte, error) {
	var data []byte
	for _, inst := range []Instruction(obj) {
		if buf, err := inst.MarshalBinary(); err != nil {
			return nil, err
		} else {
			data = append(data, buf...)
		}
	}
	return data, nil
}

func (obj *instructionList) UnmarshalBinary(data []byte) error {
	var instructions []Instruction
	err := eachTLV(data, 2, 8, func(elem []byte) error {
		var instruction Instruction
		switch binary.BigEndian.Uint16(elem[0:2]) {
		default:
			instruction = new(InstructionUnknown)
		case OFPIT_GOTO_TABLE:
			instruction = new(InstructionGotoTable)
		case OFPIT_WRITE_METADATA:
			instruction = new(InstructionWriteMetadata)
		case OFPIT_WRITE_ACTIONS, OFPIT_APPLY_ACTIONS, OFPIT_CLEAR_ACTIONS:
			instruction = new(InstructionActions)
		case OFPIT_METER:
			instruction = new(InstructionMeter)
		}
		if err := instruction.UnmarshalBinary(elem); err != nil {
			return err
		}
		instructions = append(instructions, instruction)
		return nil
	})
	if err == errTlvLen {
		return errInstructionLen
	} else if err != nil {
		return err
	}
	*obj = instructions
	return nil
}

type InstructionGotoTable struct {
	TableId uint8
}

func (obj InstructionGotoTable) MarshalBinary() ([]byte, error) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], OFPIT_GOTO_TABLE)
	binary.BigEndian.PutUint16(data[2:4], 8)
	data[4] = obj.TableId
	// 3 padding
	return data, nil
}

func (obj *InstructionGotoTable) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 8 {
		return errInstructionLen
	}
	obj.TableId = data[4]
	return
}

func (obj InstructionGotoTable) GetType() uint16 {
	return OFPIT_GOTO_TABLE
}

type InstructionWriteMetadata struct {
	Metadata     uint64
	MetadataMask uint64
}

func (obj InstructionWriteMetadata) MarshalBinary() ([]byte, error) {
	data := make([]byte, 24)
	binary.BigEndian.PutUint16(data[0:2], OFPIT_WRITE_METADATA)
	binary.BigEndian.PutUint16(data[2:4], 24)
	binary.BigEndian.PutUint64(data[8:16], obj.Metadata)
	binary.BigEndian.PutUint64(data[16:24], obj.MetadataMask)
	return data, nil
}

func (obj *InstructionWriteMetadata) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 24 {
		return errInstructionLen
	}
	obj.Metadata = binary.BigEndian.Uint64(data[8:16])
	obj.MetadataMask = binary.BigEndian.Uint64(data[16:24])
	return
}

func (obj InstructionWriteMetadata) GetType() uint16 {
	return OFPIT_WRITE_METADATA
}

// InstructionActions is write-actions, apply-actions or clear-actions.
type InstructionActions struct {
	Type    uint16
	Actions []Action
}

func (obj InstructionActions) MarshalBinary() ([]byte, error) {
	actions, err := actionList(obj.Actions).MarshalBinary()
	if err != nil {
		return nil, err
	}
	if 8+len(actions) > 0xffff {
		return nil, errTooLong
	}
	data := make([]byte, 8+len(actions))
	binary.BigEndian.PutUint16(data[0:2], obj.Type)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	// 4 padding
	copy(data[8:], actions)
	return data, nil
}

func (obj *InstructionActions) UnmarshalBinary(data []byte) error {
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	var actions actionList
	if err := actions.UnmarshalBinary(data[8:]); err != nil {
		return err
	}
	obj.Actions = []Action(actions)
	return nil
}

func (obj InstructionActions) GetType() uint16 {
	return obj.Type
}

type InstructionMeter struct {
	MeterId uint32
}

func (obj InstructionMeter) MarshalBinary() ([]byte, error) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], OFPIT_METER)
	binary.BigEndian.PutUint16(data[2:4], 8)
	binary.BigEndian.PutUint32(data[4:8], obj.MeterId)
	return data, nil
}

func (obj *InstructionMeter) UnmarshalBinary(data []byte) (err error) {
	if len(data) != 8 {
		return errInstructionLen
	}
	obj.MeterId = binary.BigEndian.Uint32(data[4:8])
	return
}

func (obj InstructionMeter) GetType() uint16 {
	return OFPIT_METER
}

// InstructionUnknown holds experimenter and unrecognised instructions.
type InstructionUnknown struct {
	Type uint16
	Data []byte
}

func (obj InstructionUnknown) MarshalBinary() ([]byte, error) {
	length := align8(4 + len(obj.Data))
	data := make([]byte, length)
	binary.BigEndian.PutUint16(data[0:2], obj.Type)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	copy(data[4:], obj.Data)
	return data, nil
}

func (obj *InstructionUnknown) UnmarshalBinary(data []byte) error {
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.Data = data[4:]
	return nil
}

func (obj InstructionUnknown) GetType() uint16 {
	return obj.Type
}
