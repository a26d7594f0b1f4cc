package ofp4

import (
	"encoding/binary"

	"github.com/jackyang74/oftest/oxm"
)

var errActionLen = Error{Type: OFPET_BAD_ACTION, Code: OFPBAC_BAD_LEN}

type actionList []Action

func (obj actionList) MarshalBinary() ([]byte, error) {
	var data []byte
	for _, action := range []Action(obj) {
		if buf, err := action.MarshalBinary(); err != nil {
			return nil, err
		} else {
			data = append(data, buf...)
		}
	}
	return data, nil
}

// UnmarshalBinary keeps actions of unknown type as ActionUnknown so that
// the receiver can reject them with a proper error code.
func (obj *actionList) UnmarshalBinary(data []byte) error {
	var actions []Action
	err := eachTLV(data, 2, 8, func(elem []byte) error {
		if len(elem)%8 != 0 {
			return errActionLen
		}
		var action Action
		switch binary.BigEndian.Uint16(elem[0:2]) {
		default:
			action = new(ActionUnknown)
		case OFPAT_COPY_TTL_OUT, OFPAT_COPY_TTL_IN, OFPAT_DEC_MPLS_TTL, OFPAT_POP_VLAN, OFPAT_DEC_NW_TTL, OFPAT_POP_PBB:
			action = new(ActionGeneric)
		case OFPAT_OUTPUT:
			action = new(ActionOutput)
		case OFPAT_SET_MPLS_TTL:
			action = new(ActionMplsTtl)
		case OFPAT_PUSH_VLAN, OFPAT_PUSH_MPLS, OFPAT_PUSH_PBB:
			action = new(ActionPush)
		case OFPAT_POP_MPLS:
			action = new(ActionPopMpls)
		case OFPAT_SET_QUEUE:
			action = new(ActionSetQueue)
		case OFPAT_GROUP:
			action = new(ActionGroup)
		case OFPAT_SET_NW_TTL:
			action = new(ActionNwTtl)
		case OFPAT_SET_FIELD:
			action = new(ActionSetField)
		case OFPAT_EXPERIMENTER:
			action = new(ActionExperimenter)
		}
		if err := action.UnmarshalBinary(elem); err != nil {
			return err
		}
		actions = append(actions, action)
		return nil
	})
	if err != nil {
		if err == errTlvLen {
			return errActionLen
		}
		return err
	}
	*obj = actions
	return nil
}

func fixedAction(atype uint16, length int) []byte {
	data := make([]byte, length)
	binary.BigEndian.PutUint16(data[0:2], atype)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	return data
}

func checkLen(data []byte, length int) error {
	if len(data) != length {
		return errActionLen
	}
	return nil
}

// ActionGeneric covers the actions that carry no argument.
type ActionGeneric struct {
	Type uint16
}

func (obj *ActionGeneric) MarshalBinary() (data []byte, err error) {
	return fixedAction(obj.Type, 8), nil
}

func (obj *ActionGeneric) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	return
}

func (obj *ActionGeneric) GetType() uint16 {
	return obj.Type
}

type ActionOutput struct {
	Port   uint32
	MaxLen uint16
}

func (obj *ActionOutput) MarshalBinary() (data []byte, err error) {
	data = fixedAction(OFPAT_OUTPUT, 16)
	binary.BigEndian.PutUint32(data[4:8], obj.Port)
	binary.BigEndian.PutUint16(data[8:10], obj.MaxLen)
	return
}

func (obj *ActionOutput) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 16); err != nil {
		return
	}
	obj.Port = binary.BigEndian.Uint32(data[4:8])
	obj.MaxLen = binary.BigEndian.Uint16(data[8:10])
	return
}

func (obj *ActionOutput) GetType() uint16 {
	return OFPAT_OUTPUT
}

type ActionMplsTtl struct {
	MplsTtl uint8
}

func (obj *ActionMplsTtl) MarshalBinary() (data []byte, err error) {
	data = fixedAction(OFPAT_SET_MPLS_TTL, 8)
	data[4] = obj.MplsTtl
	return
}

func (obj *ActionMplsTtl) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.MplsTtl = data[4]
	return
}

func (obj *ActionMplsTtl) GetType() uint16 {
	return OFPAT_SET_MPLS_TTL
}

// ActionPush is push_vlan, push_mpls or push_pbb, told apart by Type.
type ActionPush struct {
	Type      uint16
	Ethertype uint16
}

func (obj *ActionPush) MarshalBinary() (data []byte, err error) {
	data = fixedAction(obj.Type, 8)
	binary.BigEndian.PutUint16(data[4:6], obj.Ethertype)
	return
}

func (obj *ActionPush) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.Ethertype = binary.BigEndian.Uint16(data[4:6])
	return
}

func (obj *ActionPush) GetType() uint16 {
	return obj.Type
}

type ActionPopMpls struct {
	Ethertype uint16
}

func (obj *ActionPopMpls) MarshalBinary() (data []byte, err error) {
	data = fixedAction(OFPAT_POP_MPLS, 8)
	binary.BigEndian.PutUint16(data[4:6], obj.Ethertype)
	return
}

func (obj *ActionPopMpls) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.Ethertype = binary.BigEndian.Uint16(data[4:6])
	return
}

func (obj *ActionPopMpls) GetType() uint16 {
	return OFPAT_POP_MPLS
}

type ActionSetQueue struct {
	QueueId uint32
}

func (obj *ActionSetQueue) MarshalBinary() (data []byte, err error) {
	data = fixedAction(OFPAT_SET_QUEUE, 8)
	binary.BigEndian.PutUint32(data[4:8], obj.QueueId)
	return
}

func (obj *ActionSetQueue) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.QueueId = binary.BigEndian.Uint32(data[4:8])
	return
}

func (obj *ActionSetQueue) GetType() uint16 {
	return OFPAT_SET_QUEUE
}

type ActionGroup struct {
	GroupId uint32
}

func (obj *ActionGroup) MarshalBinary() (data []byte, err error) {
	data = fixedAction(OFPAT_GROUP, 8)
	binary.BigEndian.PutUint32(data[4:8], obj.GroupId)
	return
}

func (obj *ActionGroup) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.GroupId = binary.BigEndian.Uint32(data[4:8])
	return
}

func (obj *ActionGroup) GetType() uint16 {
	return OFPAT_GROUP
}

type ActionNwTtl struct {
	NwTtl uint8
}

func (obj *ActionNwTtl) MarshalBinary() (data []byte, err error) {
	data = fixedAction(OFPAT_SET_NW_TTL, 8)
	data[4] = obj.NwTtl
	return
}

func (obj *ActionNwTtl) UnmarshalBinary(data []byte) (err error) {
	if err = checkLen(data, 8); err != nil {
		return
	}
	obj.NwTtl = data[4]
	return
}

func (obj *ActionNwTtl) GetType() uint16 {
	return OFPAT_SET_NW_TTL
}

// ActionSetField carries a single OXM TLV, header included.
type ActionSetField struct {
	Field oxm.Oxm
}

func (obj *ActionSetField) MarshalBinary() (data []byte, err error) {
	length := 4 + len(obj.Field)
	data = fixedAction(OFPAT_SET_FIELD, align8(length))
	copy(data[4:], obj.Field)
	return
}

func (obj *ActionSetField) UnmarshalBinary(data []byte) (err error) {
	if len(data) < 8 {
		return errActionLen
	}
	field := oxm.Oxm(data[4:])
	end := 4 + field.Header().Length()
	if end > len(field) || align8(4+end) != len(data) {
		return errActionLen
	}
	obj.Field = field[:end]
	return
}

func (obj *ActionSetField) GetType() uint16 {
	return OFPAT_SET_FIELD
}

type ActionExperimenter struct {
	Experimenter uint32
	Data         []byte
}

func (obj *ActionExperimenter) MarshalBinary() (data []byte, err error) {
	length := 8 + len(obj.Data)
	data = fixedAction(OFPAT_EXPERIMENTER, align8(length))
	binary.BigEndian.PutUint32(data[4:8], obj.Experimenter)
	copy(data[8:], obj.Data)
	return
}

func (obj *ActionExperimenter) UnmarshalBinary(data []byte) (err error) {
	obj.Experimenter = binary.BigEndian.Uint32(data[4:8])
	obj.Data = nil
	if len(data) > 8 {
		obj.Data = data[8:]
	}
	return
}

func (obj *ActionExperimenter) GetType() uint16 {
	return OFPAT_EXPERIMENTER
}

// ActionUnknown holds an action of a type this package does not know.
type ActionUnknown struct {
	Type uint16
	Data []byte
}

func (obj *ActionUnknown) MarshalBinary() (data []byte, err error) {
	length := 4 + len(obj.Data)
	data = fixedAction(obj.Type, align8(length))
	copy(data[4:], obj.Data)
	return
}

func (obj *ActionUnknown) UnmarshalBinary(data []byte) (err error) {
	obj.Type = binary.BigEndian.Uint16(data[0:2])
	obj.Data = data[4:]
	return
}

func (obj *ActionUnknown) GetType() uint16 {
	return obj.Type
}
