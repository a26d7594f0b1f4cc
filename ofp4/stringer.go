package ofp4

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackyang74/oftest/oxm"
)

var typeNames = [...]string{
	OFPT_HELLO:                    "HELLO",
	OFPT_ERROR:                    "ERROR",
	OFPT_ECHO_REQUEST:             "ECHO_REQUEST",
	OFPT_ECHO_REPLY:               "ECHO_REPLY",
	OFPT_EXPERIMENTER:             "EXPERIMENTER",
	OFPT_FEATURES_REQUEST:         "FEATURES_REQUEST",
	OFPT_FEATURES_REPLY:           "FEATURES_REPLY",
	OFPT_GET_CONFIG_REQUEST:       "GET_CONFIG_REQUEST",
	OFPT_GET_CONFIG_REPLY:         "GET_CONFIG_REPLY",
	OFPT_SET_CONFIG:               "SET_CONFIG",
	OFPT_PACKET_IN:                "PACKET_IN",
	OFPT_FLOW_REMOVED:             "FLOW_REMOVED",
	OFPT_PORT_STATUS:              "PORT_STATUS",
	OFPT_PACKET_OUT:               "PACKET_OUT",
	OFPT_FLOW_MOD:                 "FLOW_MOD",
	OFPT_GROUP_MOD:                "GROUP_MOD",
	OFPT_PORT_MOD:                 "PORT_MOD",
	OFPT_TABLE_MOD:                "TABLE_MOD",
	OFPT_MULTIPART_REQUEST:        "MULTIPART_REQUEST",
	OFPT_MULTIPART_REPLY:          "MULTIPART_REPLY",
	OFPT_BARRIER_REQUEST:          "BARRIER_REQUEST",
	OFPT_BARRIER_REPLY:            "BARRIER_REPLY",
	OFPT_QUEUE_GET_CONFIG_REQUEST: "QUEUE_GET_CONFIG_REQUEST",
	OFPT_QUEUE_GET_CONFIG_REPLY:   "QUEUE_GET_CONFIG_REPLY",
	OFPT_ROLE_REQUEST:             "ROLE_REQUEST",
	OFPT_ROLE_REPLY:               "ROLE_REPLY",
	OFPT_GET_ASYNC_REQUEST:        "GET_ASYNC_REQUEST",
	OFPT_GET_ASYNC_REPLY:          "GET_ASYNC_REPLY",
	OFPT_SET_ASYNC:                "SET_ASYNC",
	OFPT_METER_MOD:                "METER_MOD",
}

func TypeName(t uint8) string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("OFPT_%d", t)
}

var portNames = map[uint32]string{
	OFPP_MAX:        "max",
	OFPP_IN_PORT:    "in_port",
	OFPP_TABLE:      "table",
	OFPP_NORMAL:     "normal",
	OFPP_FLOOD:      "flood",
	OFPP_ALL:        "all",
	OFPP_CONTROLLER: "controller",
	OFPP_LOCAL:      "local",
	OFPP_ANY:        "any",
}

func portString(port uint32) string {
	if name, ok := portNames[port]; ok {
		return name
	}
	return strconv.FormatUint(uint64(port), 10)
}

func parsePort(txt string) (uint32, error) {
	for num, name := range portNames {
		if name == txt {
			return num, nil
		}
	}
	n, err := strconv.ParseUint(txt, 0, 32)
	return uint32(n), err
}

var genericActionNames = map[uint16]string{
	OFPAT_COPY_TTL_OUT: "copy_ttl_out",
	OFPAT_COPY_TTL_IN:  "copy_ttl_in",
	OFPAT_DEC_MPLS_TTL: "dec_mpls_ttl",
	OFPAT_POP_VLAN:     "pop_vlan",
	OFPAT_DEC_NW_TTL:   "dec_nw_ttl",
	OFPAT_POP_PBB:      "pop_pbb",
}

var pushActionNames = map[uint16]string{
	OFPAT_PUSH_VLAN: "push_vlan",
	OFPAT_PUSH_MPLS: "push_mpls",
	OFPAT_PUSH_PBB:  "push_pbb",
}

func ActionString(action Action) string {
	switch a := action.(type) {
	case *ActionGeneric:
		if name, ok := genericActionNames[a.Type]; ok {
			return name
		}
	case *ActionOutput:
		if a.Port == OFPP_CONTROLLER && a.MaxLen != OFPCML_MAX {
			return fmt.Sprintf("output=controller:0x%x", a.MaxLen)
		}
		return "output=" + portString(a.Port)
	case *ActionMplsTtl:
		return fmt.Sprintf("set_mpls_ttl=%d", a.MplsTtl)
	case *ActionPush:
		if name, ok := pushActionNames[a.Type]; ok {
			return fmt.Sprintf("%s=0x%04x", name, a.Ethertype)
		}
	case *ActionPopMpls:
		return fmt.Sprintf("pop_mpls=0x%04x", a.Ethertype)
	case *ActionSetQueue:
		return fmt.Sprintf("set_queue=%d", a.QueueId)
	case *ActionGroup:
		return fmt.Sprintf("group=%d", a.GroupId)
	case *ActionNwTtl:
		return fmt.Sprintf("set_nw_ttl=%d", a.NwTtl)
	case *ActionSetField:
		return "set_" + a.Field.String()
	case *ActionExperimenter:
		return fmt.Sprintf("experimenter=0x%x", a.Experimenter)
	}
	return fmt.Sprintf("action%d", action.GetType())
}

// ParseAction reads one action token such as output=2, push_vlan=0x8100
// or set_ipv4_dst=10.0.0.1.
func ParseAction(txt string) (Action, error) {
	label, value := txt, ""
	if idx := strings.IndexRune(txt, '='); idx > 0 {
		label, value = txt[:idx], txt[idx+1:]
	}
	for atype, name := range genericActionNames {
		if name == label {
			return &ActionGeneric{Type: atype}, nil
		}
	}
	for atype, name := range pushActionNames {
		if name == label {
			n, err := strconv.ParseUint(value, 0, 16)
			return &ActionPush{Type: atype, Ethertype: uint16(n)}, err
		}
	}
	switch label {
	case "output":
		vs := strings.SplitN(value, ":", 2)
		port, err := parsePort(vs[0])
		if err != nil {
			return nil, err
		}
		maxLen := uint64(OFPCML_MAX)
		if len(vs) > 1 {
			if maxLen, err = strconv.ParseUint(vs[1], 0, 16); err != nil {
				return nil, err
			}
		}
		return &ActionOutput{Port: port, MaxLen: uint16(maxLen)}, nil
	case "set_mpls_ttl", "set_nw_ttl":
		n, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return nil, err
		}
		if label == "set_nw_ttl" {
			return &ActionNwTtl{NwTtl: uint8(n)}, nil
		}
		return &ActionMplsTtl{MplsTtl: uint8(n)}, nil
	case "pop_mpls":
		n, err := strconv.ParseUint(value, 0, 16)
		return &ActionPopMpls{Ethertype: uint16(n)}, err
	case "set_queue", "group":
		n, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return nil, err
		}
		if label == "group" {
			return &ActionGroup{GroupId: uint32(n)}, nil
		}
		return &ActionSetQueue{QueueId: uint32(n)}, nil
	}
	if strings.HasPrefix(label, "set_") {
		field, _, err := oxm.ParseOne(txt[len("set_"):])
		if err != nil {
			return nil, err
		}
		return &ActionSetField{Field: field}, nil
	}
	return nil, fmt.Errorf("unknown action %s", txt)
}

func actionsString(actions []Action) string {
	var ret []string
	for _, a := range actions {
		ret = append(ret, ActionString(a))
	}
	return strings.Join(ret, ",")
}

func instructionsString(insts []Instruction) string {
	var ret []string
	for _, inst := range insts {
		switch i := inst.(type) {
		case *InstructionGotoTable:
			ret = append(ret, fmt.Sprintf("@goto=%d", i.TableId))
		case *InstructionWriteMetadata:
			ret = append(ret, fmt.Sprintf("@metadata=0x%x/0x%x", i.Metadata, i.MetadataMask))
		case *InstructionActions:
			switch i.Type {
			case OFPIT_APPLY_ACTIONS:
				ret = append(ret, "@apply")
			case OFPIT_WRITE_ACTIONS:
				ret = append(ret, "@write")
			case OFPIT_CLEAR_ACTIONS:
				ret = append(ret, "@clear")
			}
			if len(i.Actions) > 0 {
				ret = append(ret, actionsString(i.Actions))
			}
		case *InstructionMeter:
			ret = append(ret, fmt.Sprintf("@meter=%d", i.MeterId))
		default:
			ret = append(ret, fmt.Sprintf("@inst%d", inst.GetType()))
		}
	}
	return strings.Join(ret, ",")
}

func flowString(table uint8, priority uint16, cookie uint64, match Match, insts []Instruction) string {
	s := []string{fmt.Sprintf("table=%d,priority=%d,cookie=0x%x", table, priority, cookie)}
	if len(match.OxmFields) > 0 {
		s = append(s, match.OxmFields.String())
	}
	if len(insts) > 0 {
		s = append(s, instructionsString(insts))
	}
	return strings.Join(s, ",")
}

func (obj FlowMod) String() string {
	return flowString(obj.TableId, obj.Priority, obj.Cookie, obj.Match, obj.Instructions)
}

func (obj FlowStats) String() string {
	return fmt.Sprintf("%s,n_packets=%d,n_bytes=%d,duration=%d.%09ds",
		flowString(obj.TableId, obj.Priority, obj.Cookie, obj.Match, obj.Instructions),
		obj.PacketCount, obj.ByteCount, obj.DurationSec, obj.DurationNsec)
}

// ParseFlow reads the text form used by FlowMod.String:
// flow parameters, then match fields, then instructions introduced by '@'.
// Flow parameters are table, priority, cookie, idle_timeout, hard_timeout,
// out_port and flags (a '+' separated subset of send_flow_rem,
// check_overlap, reset_counts).
func ParseFlow(txt string) (FlowMod, error) {
	fm := FlowMod{
		Priority: 0x8000,
		BufferId: OFP_NO_BUFFER,
		OutPort:  OFPP_ANY,
		OutGroup: OFPG_ANY,
		Match:    NewMatch(),
	}
	var current *InstructionActions
	for _, token := range strings.Split(txt, ",") {
		if token == "" {
			continue
		}
		label, value := token, ""
		if idx := strings.IndexRune(token, '='); idx > 0 {
			label, value = token[:idx], token[idx+1:]
		}
		var err error
		switch {
		case label == "table":
			err = parseUint(value, 8, func(n uint64) { fm.TableId = uint8(n) })
		case label == "priority":
			err = parseUint(value, 16, func(n uint64) { fm.Priority = uint16(n) })
		case label == "cookie":
			err = parseUint(value, 64, func(n uint64) { fm.Cookie = n })
		case label == "idle_timeout":
			err = parseUint(value, 16, func(n uint64) { fm.IdleTimeout = uint16(n) })
		case label == "hard_timeout":
			err = parseUint(value, 16, func(n uint64) { fm.HardTimeout = uint16(n) })
		case label == "out_port":
			fm.OutPort, err = parsePort(value)
		case label == "flags":
			for _, f := range strings.Split(value, "+") {
				switch f {
				case "send_flow_rem":
					fm.Flags |= OFPFF_SEND_FLOW_REM
				case "check_overlap":
					fm.Flags |= OFPFF_CHECK_OVERLAP
				case "reset_counts":
					fm.Flags |= OFPFF_RESET_COUNTS
				default:
					err = fmt.Errorf("unknown flag %s", f)
				}
			}
		case label == "@apply" || label == "@write" || label == "@clear":
			itype := map[string]uint16{
				"@apply": OFPIT_APPLY_ACTIONS,
				"@write": OFPIT_WRITE_ACTIONS,
				"@clear": OFPIT_CLEAR_ACTIONS,
			}[label]
			current = &InstructionActions{Type: itype}
			fm.Instructions = append(fm.Instructions, current)
		case label == "@goto":
			err = parseUint(value, 8, func(n uint64) {
				fm.Instructions = append(fm.Instructions, &InstructionGotoTable{TableId: uint8(n)})
			})
			current = nil
		case label == "@metadata":
			vs := strings.SplitN(value, "/", 2)
			inst := &InstructionWriteMetadata{MetadataMask: 0xffffffffffffffff}
			if err = parseUint(vs[0], 64, func(n uint64) { inst.Metadata = n }); err == nil && len(vs) > 1 {
				err = parseUint(vs[1], 64, func(n uint64) { inst.MetadataMask = n })
			}
			fm.Instructions = append(fm.Instructions, inst)
			current = nil
		case label == "@meter":
			err = parseUint(value, 32, func(n uint64) {
				fm.Instructions = append(fm.Instructions, &InstructionMeter{MeterId: uint32(n)})
			})
			current = nil
		case current != nil:
			var action Action
			if action, err = ParseAction(token); err == nil {
				current.Actions = append(current.Actions, action)
			}
		default:
			var field []byte
			if field, _, err = oxm.ParseOne(token); err == nil {
				fm.Match.OxmFields = append(fm.Match.OxmFields, field...)
			}
		}
		if err != nil {
			return fm, fmt.Errorf("%s: %w", token, err)
		}
	}
	return fm, nil
}

func parseUint(txt string, bits int, set func(uint64)) error {
	n, err := strconv.ParseUint(txt, 0, bits)
	if err != nil {
		return err
	}
	set(n)
	return nil
}
