package oxm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated = errors.New("oxm truncated")
	ErrBadField  = errors.New("oxm field unknown")
	ErrBadLen    = errors.New("oxm length mismatch")
	ErrBadMask   = errors.New("oxm field not maskable")
	ErrDupField  = errors.New("oxm field duplicated")
)

type kind int

const (
	kindDec kind = iota
	kindHex
	kindMac
	kindIPv4
	kindIPv6
)

type fieldDef struct {
	name     string
	width    int
	maskable bool
	kind     kind
}

var fields = [...]fieldDef{
	OFPXMT_OFB_IN_PORT:        {"in_port", 4, false, kindDec},
	OFPXMT_OFB_IN_PHY_PORT:    {"in_phy_port", 4, false, kindDec},
	OFPXMT_OFB_METADATA:       {"metadata", 8, true, kindHex},
	OFPXMT_OFB_ETH_DST:        {"eth_dst", 6, true, kindMac},
	OFPXMT_OFB_ETH_SRC:        {"eth_src", 6, true, kindMac},
	OFPXMT_OFB_ETH_TYPE:       {"eth_type", 2, false, kindHex},
	OFPXMT_OFB_VLAN_VID:       {"vlan_vid", 2, true, kindHex},
	OFPXMT_OFB_VLAN_PCP:       {"vlan_pcp", 1, false, kindDec},
	OFPXMT_OFB_IP_DSCP:        {"ip_dscp", 1, false, kindHex},
	OFPXMT_OFB_IP_ECN:         {"ip_ecn", 1, false, kindHex},
	OFPXMT_OFB_IP_PROTO:       {"ip_proto", 1, false, kindDec},
	OFPXMT_OFB_IPV4_SRC:       {"ipv4_src", 4, true, kindIPv4},
	OFPXMT_OFB_IPV4_DST:       {"ipv4_dst", 4, true, kindIPv4},
	OFPXMT_OFB_TCP_SRC:        {"tcp_src", 2, false, kindDec},
	OFPXMT_OFB_TCP_DST:        {"tcp_dst", 2, false, kindDec},
	OFPXMT_OFB_UDP_SRC:        {"udp_src", 2, false, kindDec},
	OFPXMT_OFB_UDP_DST:        {"udp_dst", 2, false, kindDec},
	OFPXMT_OFB_SCTP_SRC:       {"sctp_src", 2, false, kindDec},
	OFPXMT_OFB_SCTP_DST:       {"sctp_dst", 2, false, kindDec},
	OFPXMT_OFB_ICMPV4_TYPE:    {"icmpv4_type", 1, false, kindDec},
	OFPXMT_OFB_ICMPV4_CODE:    {"icmpv4_code", 1, false, kindDec},
	OFPXMT_OFB_ARP_OP:         {"arp_op", 2, false, kindDec},
	OFPXMT_OFB_ARP_SPA:        {"arp_spa", 4, true, kindIPv4},
	OFPXMT_OFB_ARP_TPA:        {"arp_tpa", 4, true, kindIPv4},
	OFPXMT_OFB_ARP_SHA:        {"arp_sha", 6, true, kindMac},
	OFPXMT_OFB_ARP_THA:        {"arp_tha", 6, true, kindMac},
	OFPXMT_OFB_IPV6_SRC:       {"ipv6_src", 16, true, kindIPv6},
	OFPXMT_OFB_IPV6_DST:       {"ipv6_dst", 16, true, kindIPv6},
	OFPXMT_OFB_IPV6_FLABEL:    {"ipv6_flabel", 4, true, kindHex},
	OFPXMT_OFB_ICMPV6_TYPE:    {"icmpv6_type", 1, false, kindDec},
	OFPXMT_OFB_ICMPV6_CODE:    {"icmpv6_code", 1, false, kindDec},
	OFPXMT_OFB_IPV6_ND_TARGET: {"ipv6_nd_target", 16, false, kindIPv6},
	OFPXMT_OFB_IPV6_ND_SLL:    {"ipv6_nd_sll", 6, false, kindMac},
	OFPXMT_OFB_IPV6_ND_TLL:    {"ipv6_nd_tll", 6, false, kindMac},
	OFPXMT_OFB_MPLS_LABEL:     {"mpls_label", 4, false, kindHex},
	OFPXMT_OFB_MPLS_TC:        {"mpls_tc", 1, false, kindDec},
	OFPXMT_OFB_MPLS_BOS:       {"mpls_bos", 1, false, kindDec},
	OFPXMT_OFB_PBB_ISID:       {"pbb_isid", 3, true, kindHex},
	OFPXMT_OFB_TUNNEL_ID:      {"tunnel_id", 8, true, kindHex},
	OFPXMT_OFB_IPV6_EXTHDR:    {"ipv6_exthdr", 2, true, kindHex},
}

func lookupField(field uint8) (fieldDef, bool) {
	if int(field) < len(fields) {
		return fields[field], true
	}
	return fieldDef{}, false
}

// Width returns the value width in bytes of an openflow basic field, or 0.
func Width(field uint8) int {
	def, _ := lookupField(field)
	return def.width
}

func Maskable(field uint8) bool {
	def, _ := lookupField(field)
	return def.maskable
}

func FieldName(field uint8) string {
	if def, ok := lookupField(field); ok {
		return def.name
	}
	return fmt.Sprintf("field%d", field)
}

func FieldByName(name string) (uint8, bool) {
	for i, def := range fields {
		if def.name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Oxm is a sequence of OXM TLVs, as carried in ofp_match or set-field.
type Oxm []byte

func (self Oxm) Header() Header {
	return Header(binary.BigEndian.Uint32(self))
}

func (self Oxm) Value() []byte {
	hdr := self.Header()
	if hdr.HasMask() {
		return self[4 : 4+hdr.Length()/2]
	}
	return self[4 : 4+hdr.Length()]
}

func (self Oxm) Mask() []byte {
	hdr := self.Header()
	if hdr.HasMask() {
		return self[4+hdr.Length()/2 : 4+hdr.Length()]
	}
	return nil
}

// Iter splits the sequence into single TLVs. Call Validate first on
// untrusted input; Iter stops at the first truncated element.
func (self Oxm) Iter() []Oxm {
	var seq []Oxm
	for cur := 0; cur+4 <= len(self); {
		length := 4 + Oxm(self[cur:]).Header().Length()
		if cur+length > len(self) {
			break
		}
		seq = append(seq, self[cur:cur+length])
		cur += length
	}
	return seq
}

// New builds a single openflow basic TLV. A nil mask produces an unmasked TLV.
func New(field uint8, value, mask []byte) Oxm {
	hdr := Basic(field)
	hdr.SetMask(mask != nil)
	hdr.SetLength(len(value) + len(mask))
	buf := make([]byte, 4, 4+len(value)+len(mask))
	binary.BigEndian.PutUint32(buf, uint32(hdr))
	buf = append(buf, value...)
	return append(buf, mask...)
}

// Validate checks the TLV chain framing, and for openflow basic fields the
// value width, maskability and uniqueness. Experimenter and NXM classes
// are only checked for framing.
func (self Oxm) Validate() error {
	seen := make(map[uint32]bool)
	for cur := 0; cur < len(self); {
		if cur+4 > len(self) {
			return ErrTruncated
		}
		hdr := Oxm(self[cur:]).Header()
		length := hdr.Length()
		if cur+4+length > len(self) {
			return ErrTruncated
		}
		if hdr.Class() == OFPXMC_OPENFLOW_BASIC {
			def, ok := lookupField(hdr.Field())
			if !ok {
				return ErrBadField
			}
			if hdr.HasMask() {
				if !def.maskable {
					return ErrBadMask
				}
				if length != 2*def.width {
					return ErrBadLen
				}
			} else if length != def.width {
				return ErrBadLen
			}
			if seen[hdr.Type()] {
				return ErrDupField
			}
			seen[hdr.Type()] = true
		}
		cur += 4 + length
	}
	return nil
}
