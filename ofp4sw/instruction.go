package ofp4sw

import (
	"github.com/jackyang74/oftest/ofp4"
)

// instructionSet is the validated form of a flow entry's instructions.
type instructionSet struct {
	apply    actionList
	clear    bool
	write    actionList
	metadata *metadataInstruction
	gotoNext uint8 // 0 for none, as table 0 is never a goto target
}

type metadataInstruction struct {
	metadata uint64
	mask     uint64
}

func (m metadataInstruction) apply(f *Frame) {
	f.metadata = f.metadata&^m.mask | m.metadata&m.mask
}

// tableEnv is the part of the switch that instruction validation needs.
type tableEnv struct {
	tableId   uint8
	lastTable uint8
	knownPort func(uint32) bool
}

func (env tableEnv) compile(insts []ofp4.Instruction) (*instructionSet, error) {
	acts := actionEnv{knownPort: env.knownPort}
	set := &instructionSet{}
	for _, inst := range insts {
		switch i := inst.(type) {
		case *ofp4.InstructionGotoTable:
			if i.TableId <= env.tableId || i.TableId > env.lastTable {
				return nil, ErrBadGotoTable
			}
			set.gotoNext = i.TableId
		case *ofp4.InstructionWriteMetadata:
			set.metadata = &metadataInstruction{metadata: i.Metadata, mask: i.MetadataMask}
		case *ofp4.InstructionActions:
			switch i.Type {
			case ofp4.OFPIT_CLEAR_ACTIONS:
				set.clear = true
			case ofp4.OFPIT_WRITE_ACTIONS, ofp4.OFPIT_APPLY_ACTIONS:
				list, err := acts.compile(i.Actions)
				if err != nil {
					return nil, err
				}
				if i.Type == ofp4.OFPIT_WRITE_ACTIONS {
					set.write = list
				} else {
					set.apply = list
				}
			default:
				return nil, ErrUnknownInst
			}
		case *ofp4.InstructionMeter:
			return nil, ErrUnsupInst
		default:
			return nil, ErrUnknownInst
		}
	}
	return set, nil
}

// Decision is what one flow entry's instructions did to a frame.
type Decision struct {
	Outputs   []Output
	NextTable uint8
	Goto      bool
	// Dropped is set when a ttl decrement discarded the frame.
	Dropped bool
}

/*
Execute runs the instructions of entry on frame in the order apply-actions,
clear-actions, write-actions, write-metadata, goto-table. Without a goto the
accumulated action set is executed as well, ending the pipeline.

Outputs to the controller carry reason NO_MATCH when entry is a table-miss
entry.
*/
func Execute(entry *FlowEntry, frame *Frame, set *ActionSet) Decision {
	var d Decision
	inst := entry.inst
	d.Outputs = inst.apply.process(frame)
	if frame.isInvalid() {
		d.Dropped = true
		return d.withMissReason(entry)
	}
	if inst.clear {
		set.Clear()
	}
	if len(inst.write) > 0 {
		set.Write(inst.write)
	}
	if inst.metadata != nil {
		inst.metadata.apply(frame)
	}
	if inst.gotoNext != 0 {
		d.Goto = true
		d.NextTable = inst.gotoNext
		return d.withMissReason(entry)
	}
	d.Outputs = append(d.Outputs, set.process(frame)...)
	d.Dropped = frame.isInvalid()
	return d.withMissReason(entry)
}

func (d Decision) withMissReason(entry *FlowEntry) Decision {
	if entry.IsTableMiss() {
		for i := range d.Outputs {
			if d.Outputs[i].Reason == ofp4.OFPR_ACTION {
				d.Outputs[i].Reason = ofp4.OFPR_NO_MATCH
			}
		}
	}
	return d
}
