package ofp4sw

import (
	"sort"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/oxm"
	"k8s.io/klog/v2"
)

// Output is one copy of a frame leaving an action list.
type Output struct {
	Port    uint32
	MaxLen  uint16
	Reason  uint8
	QueueId uint32
	Data    []byte
}

type action interface {
	process(f *Frame) (*Output, error)
	key() actionKey
	wire() ofp4.Action
}

// actionKey identifies an action set slot. Set-field occupies one slot
// per field.
type actionKey struct {
	atype uint16
	field uint8
}

type actionOutput ofp4.ActionOutput

func (a *actionOutput) process(f *Frame) (*Output, error) {
	data, err := f.Serialized()
	if err != nil {
		return nil, err
	}
	return &Output{
		Port:    a.Port,
		MaxLen:  a.MaxLen,
		Reason:  ofp4.OFPR_ACTION,
		QueueId: f.queueId,
		Data:    append([]byte(nil), data...),
	}, nil
}

func (a *actionOutput) key() actionKey { return actionKey{atype: ofp4.OFPAT_OUTPUT} }

func (a *actionOutput) wire() ofp4.Action { return (*ofp4.ActionOutput)(a) }

type actionGeneric ofp4.ActionGeneric

func (a *actionGeneric) process(f *Frame) (*Output, error) {
	switch a.Type {
	case ofp4.OFPAT_DEC_MPLS_TTL, ofp4.OFPAT_DEC_NW_TTL:
		data, err := f.Serialized()
		if err != nil {
			return nil, err
		}
		var ttl *uint8
		if a.Type == ofp4.OFPAT_DEC_NW_TTL {
			ttl = ipTTL(f.Layers())
		} else {
			ttl, _ = mplsTTLs(f.Layers())
		}
		if ttl == nil {
			return nil, errNoLayer
		}
		if f.decTTL(ttl) {
			return &Output{
				Port:   ofp4.OFPP_CONTROLLER,
				MaxLen: ofp4.OFPCML_NO_BUFFER,
				Reason: ofp4.OFPR_INVALID_TTL,
				Data:   append([]byte(nil), data...),
			}, nil
		}
	case ofp4.OFPAT_COPY_TTL_OUT:
		if outer, inner := mplsTTLs(f.Layers()); outer != nil && inner != nil {
			*outer = *inner
		}
	case ofp4.OFPAT_COPY_TTL_IN:
		if outer, inner := mplsTTLs(f.Layers()); outer != nil && inner != nil {
			*inner = *outer
		}
	case ofp4.OFPAT_POP_VLAN:
		return nil, f.popVlan()
	default:
		return nil, ErrBadAction
	}
	return nil, nil
}

func (a *actionGeneric) key() actionKey { return actionKey{atype: a.Type} }

func (a *actionGeneric) wire() ofp4.Action { return (*ofp4.ActionGeneric)(a) }

type actionPush ofp4.ActionPush

func (a *actionPush) process(f *Frame) (*Output, error) {
	switch a.Type {
	case ofp4.OFPAT_PUSH_VLAN:
		return nil, f.pushVlan(a.Ethertype)
	case ofp4.OFPAT_PUSH_MPLS:
		return nil, f.pushMpls(a.Ethertype)
	}
	return nil, ErrBadAction
}

func (a *actionPush) key() actionKey { return actionKey{atype: a.Type} }

func (a *actionPush) wire() ofp4.Action { return (*ofp4.ActionPush)(a) }

type actionPopMpls ofp4.ActionPopMpls

func (a *actionPopMpls) process(f *Frame) (*Output, error) {
	return nil, f.popMpls(a.Ethertype)
}

func (a *actionPopMpls) key() actionKey { return actionKey{atype: ofp4.OFPAT_POP_MPLS} }

func (a *actionPopMpls) wire() ofp4.Action { return (*ofp4.ActionPopMpls)(a) }

type actionSetQueue ofp4.ActionSetQueue

func (a *actionSetQueue) process(f *Frame) (*Output, error) {
	f.queueId = a.QueueId
	return nil, nil
}

func (a *actionSetQueue) key() actionKey { return actionKey{atype: ofp4.OFPAT_SET_QUEUE} }

func (a *actionSetQueue) wire() ofp4.Action { return (*ofp4.ActionSetQueue)(a) }

type actionMplsTtl ofp4.ActionMplsTtl

func (a *actionMplsTtl) process(f *Frame) (*Output, error) {
	outer, _ := mplsTTLs(f.Layers())
	if outer == nil {
		return nil, errNoLayer
	}
	*outer = a.MplsTtl
	return nil, nil
}

func (a *actionMplsTtl) key() actionKey { return actionKey{atype: ofp4.OFPAT_SET_MPLS_TTL} }

func (a *actionMplsTtl) wire() ofp4.Action { return (*ofp4.ActionMplsTtl)(a) }

type actionNwTtl ofp4.ActionNwTtl

func (a *actionNwTtl) process(f *Frame) (*Output, error) {
	ttl := ipTTL(f.Layers())
	if ttl == nil {
		return nil, errNoLayer
	}
	*ttl = a.NwTtl
	return nil, nil
}

func (a *actionNwTtl) key() actionKey { return actionKey{atype: ofp4.OFPAT_SET_NW_TTL} }

func (a *actionNwTtl) wire() ofp4.Action { return (*ofp4.ActionNwTtl)(a) }

type actionSetField ofp4.ActionSetField

func (a *actionSetField) process(f *Frame) (*Output, error) {
	return nil, f.setField(a.Field.Header().Field(), a.Field.Value())
}

func (a *actionSetField) key() actionKey {
	return actionKey{atype: ofp4.OFPAT_SET_FIELD, field: a.Field.Header().Field()}
}

func (a *actionSetField) wire() ofp4.Action { return (*ofp4.ActionSetField)(a) }

// actionList is an apply-actions or write-actions list, run in order.
type actionList []action

func (list actionList) process(f *Frame) []Output {
	var outs []Output
	for _, act := range list {
		out, err := act.process(f)
		if err != nil {
			klog.V(4).InfoS("Action skipped", "action", act.wire(), "err", err)
		}
		if out != nil {
			outs = append(outs, *out)
		}
		if f.isInvalid() {
			break
		}
	}
	return outs
}

func (list actionList) wire() []ofp4.Action {
	var acts []ofp4.Action
	for _, act := range list {
		acts = append(acts, act.wire())
	}
	return acts
}

var actionSetOrder = [...]uint16{
	ofp4.OFPAT_COPY_TTL_IN,
	ofp4.OFPAT_POP_VLAN,
	ofp4.OFPAT_POP_MPLS,
	ofp4.OFPAT_PUSH_MPLS,
	ofp4.OFPAT_PUSH_VLAN,
	ofp4.OFPAT_COPY_TTL_OUT,
	ofp4.OFPAT_DEC_MPLS_TTL,
	ofp4.OFPAT_DEC_NW_TTL,
	ofp4.OFPAT_SET_MPLS_TTL,
	ofp4.OFPAT_SET_NW_TTL,
	ofp4.OFPAT_SET_FIELD,
	ofp4.OFPAT_SET_QUEUE,
	ofp4.OFPAT_OUTPUT,
}

// ActionSet accumulates write-actions over the tables a packet visits.
// The zero value is an empty set.
type ActionSet struct {
	actions map[actionKey]action
}

// Write merges actions, a later action replacing an earlier one of the
// same kind.
func (s *ActionSet) Write(actions actionList) {
	if s.actions == nil {
		s.actions = make(map[actionKey]action)
	}
	for _, act := range actions {
		s.actions[act.key()] = act
	}
}

func (s *ActionSet) Clear() {
	s.actions = nil
}

func (s *ActionSet) Len() int {
	return len(s.actions)
}

func (s *ActionSet) ordered() actionList {
	var list actionList
	for _, atype := range actionSetOrder {
		if atype == ofp4.OFPAT_SET_FIELD {
			var fields actionList
			for k, act := range s.actions {
				if k.atype == atype {
					fields = append(fields, act)
				}
			}
			sort.Slice(fields, func(i, j int) bool { return fields[i].key().field < fields[j].key().field })
			list = append(list, fields...)
		} else if act, ok := s.actions[actionKey{atype: atype}]; ok {
			list = append(list, act)
		}
	}
	return list
}

// Actions returns the content in execution order.
func (s *ActionSet) Actions() []ofp4.Action {
	return s.ordered().wire()
}

func (s *ActionSet) process(f *Frame) []Output {
	return s.ordered().process(f)
}

func isReservedPort(port uint32) bool {
	switch port {
	case ofp4.OFPP_IN_PORT, ofp4.OFPP_FLOOD, ofp4.OFPP_ALL, ofp4.OFPP_CONTROLLER:
		return true
	}
	return false
}

// settable reports whether a set-field action may rewrite the field.
func settable(field uint8) bool {
	switch field {
	case oxm.OFPXMT_OFB_IN_PORT, oxm.OFPXMT_OFB_IN_PHY_PORT, oxm.OFPXMT_OFB_METADATA,
		oxm.OFPXMT_OFB_IPV6_ND_TARGET, oxm.OFPXMT_OFB_IPV6_ND_SLL, oxm.OFPXMT_OFB_IPV6_ND_TLL,
		oxm.OFPXMT_OFB_PBB_ISID, oxm.OFPXMT_OFB_IPV6_EXTHDR:
		return false
	}
	return oxm.Width(field) > 0
}

// actionEnv is what action validation needs to know about the switch.
type actionEnv struct {
	knownPort   func(uint32) bool
	inPacketOut bool
}

func (env actionEnv) compile(acts []ofp4.Action) (actionList, error) {
	var list actionList
	for _, a := range acts {
		act, err := env.compileOne(a)
		if err != nil {
			return nil, err
		}
		list = append(list, act)
	}
	return list, nil
}

func (env actionEnv) compileOne(a ofp4.Action) (action, error) {
	switch act := a.(type) {
	case *ofp4.ActionOutput:
		port := act.Port
		switch {
		case port == 0 || port == ofp4.OFPP_ANY:
			return nil, ErrBadOutPort
		case port == ofp4.OFPP_TABLE:
			if !env.inPacketOut {
				return nil, ErrBadOutPort
			}
		case port > ofp4.OFPP_MAX:
			if !isReservedPort(port) {
				return nil, ErrBadOutPort
			}
		case env.knownPort != nil && !env.knownPort(port):
			return nil, ErrBadOutPort
		}
		return (*actionOutput)(act), nil
	case *ofp4.ActionGeneric:
		switch act.Type {
		case ofp4.OFPAT_COPY_TTL_OUT, ofp4.OFPAT_COPY_TTL_IN, ofp4.OFPAT_DEC_MPLS_TTL,
			ofp4.OFPAT_DEC_NW_TTL, ofp4.OFPAT_POP_VLAN:
			return (*actionGeneric)(act), nil
		}
		return nil, ErrBadAction
	case *ofp4.ActionPush:
		switch act.Type {
		case ofp4.OFPAT_PUSH_VLAN:
			if act.Ethertype != 0x8100 && act.Ethertype != 0x88a8 {
				return nil, ErrBadArgument
			}
		case ofp4.OFPAT_PUSH_MPLS:
			if act.Ethertype != 0x8847 && act.Ethertype != 0x8848 {
				return nil, ErrBadArgument
			}
		default:
			return nil, ErrBadAction
		}
		return (*actionPush)(act), nil
	case *ofp4.ActionPopMpls:
		if act.Ethertype == 0 || act.Ethertype == 0x8847 || act.Ethertype == 0x8848 {
			return nil, ErrBadArgument
		}
		return (*actionPopMpls)(act), nil
	case *ofp4.ActionSetQueue:
		return (*actionSetQueue)(act), nil
	case *ofp4.ActionMplsTtl:
		return (*actionMplsTtl)(act), nil
	case *ofp4.ActionNwTtl:
		return (*actionNwTtl)(act), nil
	case *ofp4.ActionSetField:
		if len(act.Field) < 4 {
			return nil, ErrBadArgument
		}
		hdr := act.Field.Header()
		if 4+hdr.Length() != len(act.Field) {
			return nil, ErrBadArgument
		}
		if hdr.Class() != oxm.OFPXMC_OPENFLOW_BASIC || !settable(hdr.Field()) {
			return nil, ErrBadSetType
		}
		if hdr.HasMask() || len(act.Field.Value()) != oxm.Width(hdr.Field()) {
			return nil, ErrBadArgument
		}
		if checkValue(hdr.Field(), act.Field.Value(), nil) != nil {
			return nil, ErrBadArgument
		}
		return (*actionSetField)(act), nil
	case *ofp4.ActionGroup:
		return nil, ErrBadOutGroup
	case *ofp4.ActionExperimenter:
		return nil, ErrBadExperimenter
	}
	return nil, ErrBadAction
}
