package ofp4sw

import (
	"github.com/jackyang74/oftest/ofp4"
)

// Errors reported by flow-mod handling. Compare with errors.Is; the
// returned values may carry request data.
var (
	ErrTableFull  = ofp4.Error{Type: ofp4.OFPET_FLOW_MOD_FAILED, Code: ofp4.OFPFMFC_TABLE_FULL}
	ErrOverlap    = ofp4.Error{Type: ofp4.OFPET_FLOW_MOD_FAILED, Code: ofp4.OFPFMFC_OVERLAP}
	ErrBadCommand = ofp4.Error{Type: ofp4.OFPET_FLOW_MOD_FAILED, Code: ofp4.OFPFMFC_BAD_COMMAND}
	ErrBadTableId = ofp4.Error{Type: ofp4.OFPET_FLOW_MOD_FAILED, Code: ofp4.OFPFMFC_BAD_TABLE_ID}

	ErrBadAction       = ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_TYPE}
	ErrBadArgument     = ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_ARGUMENT}
	ErrBadOutPort      = ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_OUT_PORT}
	ErrBadOutGroup     = ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_OUT_GROUP}
	ErrBadSetType      = ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_SET_TYPE}
	ErrBadExperimenter = ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_EXPERIMENTER}

	ErrUnknownInst  = ofp4.Error{Type: ofp4.OFPET_BAD_INSTRUCTION, Code: ofp4.OFPBIC_UNKNOWN_INST}
	ErrUnsupInst    = ofp4.Error{Type: ofp4.OFPET_BAD_INSTRUCTION, Code: ofp4.OFPBIC_UNSUP_INST}
	ErrBadGotoTable = ofp4.Error{Type: ofp4.OFPET_BAD_INSTRUCTION, Code: ofp4.OFPBIC_BAD_TABLE_ID}

	ErrBufferUnknown  = ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BUFFER_UNKNOWN}
	ErrBadPort        = ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BAD_PORT}
	ErrBadRequestType = ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BAD_TYPE}
	ErrBadMultipart   = ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BAD_MULTIPART}

	ErrBadConfigFlags = ofp4.Error{Type: ofp4.OFPET_SWITCH_CONFIG_FAILED, Code: ofp4.OFPSCFC_BAD_FLAGS}
)
