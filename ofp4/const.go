package ofp4

import (
	"github.com/jackyang74/oftest/oxm"
)

const (
	OFP_VERSION               = 4
	OFP_TCP_PORT              = 6653
	OFP_HEADER_LEN            = 8
	OFP_MAX_MESSAGE_LEN       = 0xffff
	OFP_ETH_ALEN              = 6
	OFP_MAX_PORT_NAME_LEN     = 16
	OFP_MAX_TABLE_NAME_LEN    = 32
	DESC_STR_LEN              = 256
	SERIAL_NUM_LEN            = 32
	OFP_DEFAULT_MISS_SEND_LEN = 128
	OFP_NO_BUFFER             = 0xffffffff
)

const (
	OFPT_HELLO = iota
	OFPT_ERROR
	OFPT_ECHO_REQUEST
	OFPT_ECHO_REPLY
	OFPT_EXPERIMENTER
	OFPT_FEATURES_REQUEST
	OFPT_FEATURES_REPLY
	OFPT_GET_CONFIG_REQUEST
	OFPT_GET_CONFIG_REPLY
	OFPT_SET_CONFIG
	OFPT_PACKET_IN
	OFPT_FLOW_REMOVED
	OFPT_PORT_STATUS
	OFPT_PACKET_OUT
	OFPT_FLOW_MOD
	OFPT_GROUP_MOD
	OFPT_PORT_MOD
	OFPT_TABLE_MOD
	OFPT_MULTIPART_REQUEST
	OFPT_MULTIPART_REPLY
	OFPT_BARRIER_REQUEST
	OFPT_BARRIER_REPLY
	OFPT_QUEUE_GET_CONFIG_REQUEST
	OFPT_QUEUE_GET_CONFIG_REPLY
	OFPT_ROLE_REQUEST
	OFPT_ROLE_REPLY
	OFPT_GET_ASYNC_REQUEST
	OFPT_GET_ASYNC_REPLY
	OFPT_SET_ASYNC
	OFPT_METER_MOD
)

const (
	OFPHET_VERSIONBITMAP = 1
)

const (
	OFPET_HELLO_FAILED = iota
	OFPET_BAD_REQUEST
	OFPET_BAD_ACTION
	OFPET_BAD_INSTRUCTION
	OFPET_BAD_MATCH
	OFPET_FLOW_MOD_FAILED
	OFPET_GROUP_MOD_FAILED
	OFPET_PORT_MOD_FAILED
	OFPET_TABLE_MOD_FAILED
	OFPET_QUEUE_OP_FAILED
	OFPET_SWITCH_CONFIG_FAILED
	OFPET_ROLE_REQUEST_FAILED
	OFPET_METER_MOD_FAILED
	OFPET_TABLE_FEATURES_FAILED
	OFPET_EXPERIMENTER = 0xffff
)

const (
	OFPHFC_INCOMPATIBLE = iota
	OFPHFC_EPERM
)

const (
	OFPBRC_BAD_VERSION = iota
	OFPBRC_BAD_TYPE
	OFPBRC_BAD_MULTIPART
	OFPBRC_BAD_EXPERIMENTER
	OFPBRC_BAD_EXP_TYPE
	OFPBRC_EPERM
	OFPBRC_BAD_LEN
	OFPBRC_BUFFER_EMPTY
	OFPBRC_BUFFER_UNKNOWN
	OFPBRC_BAD_TABLE_ID
	OFPBRC_IS_SLAVE
	OFPBRC_BAD_PORT
	OFPBRC_BAD_PACKET
	OFPBRC_MULTIPART_BUFFER_OVERFLOW
)

const (
	OFPBAC_BAD_TYPE = iota
	OFPBAC_BAD_LEN
	OFPBAC_BAD_EXPERIMENTER
	OFPBAC_BAD_EXP_TYPE
	OFPBAC_BAD_OUT_PORT
	OFPBAC_BAD_ARGUMENT
	OFPBAC_EPERM
	OFPBAC_TOO_MANY
	OFPBAC_BAD_QUEUE
	OFPBAC_BAD_OUT_GROUP
	OFPBAC_MATCH_INCONSISTENT
	OFPBAC_UNSUPPORTED_ORDER
	OFPBAC_BAD_TAG
	OFPBAC_BAD_SET_TYPE
	OFPBAC_BAD_SET_LEN
	OFPBAC_BAD_SET_ARGUMENT
)

const (
	OFPBIC_UNKNOWN_INST = iota
	OFPBIC_UNSUP_INST
	OFPBIC_BAD_TABLE_ID
	OFPBIC_UNSUP_METADATA
	OFPBIC_UNSUP_METADATA_MASK
	OFPBIC_BAD_EXPERIMENTER
	OFPBIC_BAD_EXP_TYPE
	OFPBIC_BAD_LEN
	OFPBIC_EPERM
)

const (
	OFPBMC_BAD_TYPE = iota
	OFPBMC_BAD_LEN
	OFPBMC_BAD_TAG
	OFPBMC_BAD_DL_ADDR_MASK
	OFPBMC_BAD_NW_ADDR_MASK
	OFPBMC_BAD_WILDCARDS
	OFPBMC_BAD_FIELD
	OFPBMC_BAD_VALUE
	OFPBMC_BAD_MASK
	OFPBMC_BAD_PREREQ
	OFPBMC_DUP_FIELD
	OFPBMC_EPERM
)

const (
	OFPFMFC_UNKNOWN = iota
	OFPFMFC_TABLE_FULL
	OFPFMFC_BAD_TABLE_ID
	OFPFMFC_OVERLAP
	OFPFMFC_EPERM
	OFPFMFC_BAD_TIMEOUT
	OFPFMFC_BAD_COMMAND
	OFPFMFC_BAD_FLAGS
)

const (
	OFPSCFC_BAD_FLAGS = iota
	OFPSCFC_BAD_LEN
	OFPSCFC_EPERM
)

const (
	OFPAT_OUTPUT       = 0
	OFPAT_COPY_TTL_OUT = 11
	OFPAT_COPY_TTL_IN  = 12
	OFPAT_SET_MPLS_TTL = 15
	OFPAT_DEC_MPLS_TTL = 16
	OFPAT_PUSH_VLAN    = 17
	OFPAT_POP_VLAN     = 18
	OFPAT_PUSH_MPLS    = 19
	OFPAT_POP_MPLS     = 20
	OFPAT_SET_QUEUE    = 21
	OFPAT_GROUP        = 22
	OFPAT_SET_NW_TTL   = 23
	OFPAT_DEC_NW_TTL   = 24
	OFPAT_SET_FIELD    = 25
	OFPAT_PUSH_PBB     = 26
	OFPAT_POP_PBB      = 27
	OFPAT_EXPERIMENTER = 0xffff
)

const (
	OFPIT_GOTO_TABLE     = 1
	OFPIT_WRITE_METADATA = 2
	OFPIT_WRITE_ACTIONS  = 3
	OFPIT_APPLY_ACTIONS  = 4
	OFPIT_CLEAR_ACTIONS  = 5
	OFPIT_METER          = 6
	OFPIT_EXPERIMENTER   = 0xffff
)

const (
	OFPMT_STANDARD = 0
	OFPMT_OXM      = 1
)

const (
	OFPFC_ADD = iota
	OFPFC_MODIFY
	OFPFC_MODIFY_STRICT
	OFPFC_DELETE
	OFPFC_DELETE_STRICT
)

const (
	OFPFF_SEND_FLOW_REM = 1 << iota
	OFPFF_CHECK_OVERLAP
	OFPFF_RESET_COUNTS
	OFPFF_NO_PKT_COUNTS
	OFPFF_NO_BYT_COUNTS
)

const (
	OFPRR_IDLE_TIMEOUT = iota
	OFPRR_HARD_TIMEOUT
	OFPRR_DELETE
	OFPRR_GROUP_DELETE
)

const (
	OFPR_NO_MATCH = iota
	OFPR_ACTION
	OFPR_INVALID_TTL
)

const (
	OFPPR_ADD = iota
	OFPPR_DELETE
	OFPPR_MODIFY
)

const (
	OFPTT_MAX = 0xfe
	OFPTT_ALL = 0xff
)

const (
	OFPG_MAX = 0xffffff00
	OFPG_ALL = 0xfffffffc
	OFPG_ANY = 0xffffffff
)

const (
	OFPCML_MAX       = 0xffe5
	OFPCML_NO_BUFFER = 0xffff
)

const (
	OFPC_FLOW_STATS   = 1 << 0
	OFPC_TABLE_STATS  = 1 << 1
	OFPC_PORT_STATS   = 1 << 2
	OFPC_GROUP_STATS  = 1 << 3
	OFPC_IP_REASM     = 1 << 5
	OFPC_QUEUE_STATS  = 1 << 6
	OFPC_PORT_BLOCKED = 1 << 8
)

const (
	OFPC_FRAG_NORMAL = 0
	OFPC_FRAG_DROP   = 1
	OFPC_FRAG_REASM  = 2
	OFPC_FRAG_MASK   = 3
)

const (
	OFPPC_PORT_DOWN    = 1 << 0
	OFPPC_NO_RECV      = 1 << 2
	OFPPC_NO_FWD       = 1 << 5
	OFPPC_NO_PACKET_IN = 1 << 6
)

const (
	OFPPS_LINK_DOWN = 1 << 0
	OFPPS_BLOCKED   = 1 << 1
	OFPPS_LIVE      = 1 << 2
)

const (
	OFPPF_10MB_HD    = 1 << 0
	OFPPF_10MB_FD    = 1 << 1
	OFPPF_100MB_HD   = 1 << 2
	OFPPF_100MB_FD   = 1 << 3
	OFPPF_1GB_HD     = 1 << 4
	OFPPF_1GB_FD     = 1 << 5
	OFPPF_10GB_FD    = 1 << 6
	OFPPF_40GB_FD    = 1 << 7
	OFPPF_100GB_FD   = 1 << 8
	OFPPF_1TB_FD     = 1 << 9
	OFPPF_OTHER      = 1 << 10
	OFPPF_COPPER     = 1 << 11
	OFPPF_FIBER      = 1 << 12
	OFPPF_AUTONEG    = 1 << 13
	OFPPF_PAUSE      = 1 << 14
	OFPPF_PAUSE_ASYM = 1 << 15
)

const (
	OFPMP_DESC           = 0
	OFPMP_FLOW           = 1
	OFPMP_AGGREGATE      = 2
	OFPMP_TABLE          = 3
	OFPMP_PORT_STATS     = 4
	OFPMP_QUEUE          = 5
	OFPMP_GROUP          = 6
	OFPMP_GROUP_DESC     = 7
	OFPMP_GROUP_FEATURES = 8
	OFPMP_METER          = 9
	OFPMP_METER_CONFIG   = 10
	OFPMP_METER_FEATURES = 11
	OFPMP_TABLE_FEATURES = 12
	OFPMP_PORT_DESC      = 13
	OFPMP_EXPERIMENTER   = 0xffff
)

const (
	OFPMPF_REQ_MORE   = 1
	OFPMPF_REPLY_MORE = 1
)

const (
	OFPP_MAX        = oxm.OFPP_MAX
	OFPP_IN_PORT    = oxm.OFPP_IN_PORT
	OFPP_TABLE      = oxm.OFPP_TABLE
	OFPP_NORMAL     = oxm.OFPP_NORMAL
	OFPP_FLOOD      = oxm.OFPP_FLOOD
	OFPP_ALL        = oxm.OFPP_ALL
	OFPP_CONTROLLER = oxm.OFPP_CONTROLLER
	OFPP_LOCAL      = oxm.OFPP_LOCAL
	OFPP_ANY        = oxm.OFPP_ANY
)
