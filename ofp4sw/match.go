package ofp4sw

import (
	"bytes"
	"errors"
	"sort"
	"strings"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/oxm"
)

/*
Predicate is the condition a match puts on a single field. It is one of
Wildcard, Exact or Masked.
*/
type Predicate interface {
	// Test reports whether a field value satisfies the predicate.
	Test(value []byte) bool
	valueMask() (value, mask []byte)
}

type Wildcard struct{}

func (Wildcard) Test([]byte) bool { return true }

func (Wildcard) valueMask() ([]byte, []byte) { return nil, nil }

type Exact struct {
	Value []byte
}

func (p Exact) Test(value []byte) bool { return bytes.Equal(p.Value, value) }

func (p Exact) valueMask() ([]byte, []byte) {
	mask := make([]byte, len(p.Value))
	for i := range mask {
		mask[i] = 0xff
	}
	return p.Value, mask
}

// Masked holds a value with the bits outside Mask cleared.
type Masked struct {
	Value []byte
	Mask  []byte
}

func (p Masked) Test(value []byte) bool {
	if len(value) != len(p.Value) {
		return false
	}
	for i, m := range p.Mask {
		if value[i]&m != p.Value[i] {
			return false
		}
	}
	return true
}

func (p Masked) valueMask() ([]byte, []byte) { return p.Value, p.Mask }

// NewPredicate normalizes a value and an optional mask. A nil or all-ones
// mask gives Exact, an all-zero mask gives Wildcard.
func NewPredicate(value, mask []byte) Predicate {
	if mask == nil {
		return Exact{Value: append([]byte(nil), value...)}
	}
	zero, full := true, true
	for _, m := range mask {
		if m != 0 {
			zero = false
		}
		if m != 0xff {
			full = false
		}
	}
	switch {
	case zero:
		return Wildcard{}
	case full:
		return Exact{Value: append([]byte(nil), value...)}
	}
	v := make([]byte, len(value))
	for i := range v {
		v[i] = value[i] & mask[i]
	}
	return Masked{Value: v, Mask: append([]byte(nil), mask...)}
}

func predicateEqual(a, b Predicate) bool {
	av, am := a.valueMask()
	bv, bm := b.valueMask()
	return bytes.Equal(av, bv) && bytes.Equal(am, bm)
}

// Match maps openflow basic fields to predicates. An absent field is a
// wildcard, so the empty Match selects every packet.
type Match map[uint8]Predicate

func badMatch(code uint16) error {
	return ofp4.Error{Type: ofp4.OFPET_BAD_MATCH, Code: code}
}

// NewMatch builds a Match from its wire form. Errors are ofp4.Error values
// of type OFPET_BAD_MATCH.
func NewMatch(wire ofp4.Match) (Match, error) {
	if wire.Type != ofp4.OFPMT_OXM {
		return nil, badMatch(ofp4.OFPBMC_BAD_TYPE)
	}
	if err := wire.OxmFields.Validate(); err != nil {
		switch {
		case errors.Is(err, oxm.ErrBadField):
			return nil, badMatch(ofp4.OFPBMC_BAD_FIELD)
		case errors.Is(err, oxm.ErrBadMask):
			return nil, badMatch(ofp4.OFPBMC_BAD_MASK)
		case errors.Is(err, oxm.ErrDupField):
			return nil, badMatch(ofp4.OFPBMC_DUP_FIELD)
		}
		return nil, badMatch(ofp4.OFPBMC_BAD_LEN)
	}
	m := make(Match)
	for _, tlv := range wire.OxmFields.Iter() {
		hdr := tlv.Header()
		if hdr.Class() != oxm.OFPXMC_OPENFLOW_BASIC {
			return nil, badMatch(ofp4.OFPBMC_BAD_FIELD)
		}
		if err := checkValue(hdr.Field(), tlv.Value(), tlv.Mask()); err != nil {
			return nil, err
		}
		if p := NewPredicate(tlv.Value(), tlv.Mask()); !isWildcard(p) {
			m[hdr.Field()] = p
		}
	}
	if err := m.checkPrerequisites(); err != nil {
		return nil, err
	}
	return m, nil
}

func checkValue(field uint8, value, mask []byte) error {
	var limit byte
	switch field {
	case oxm.OFPXMT_OFB_VLAN_PCP:
		limit = 7
	case oxm.OFPXMT_OFB_IP_DSCP:
		limit = 63
	case oxm.OFPXMT_OFB_IP_ECN:
		limit = 3
	case oxm.OFPXMT_OFB_MPLS_BOS:
		limit = 1
	case oxm.OFPXMT_OFB_MPLS_TC:
		limit = 7
	case oxm.OFPXMT_OFB_MPLS_LABEL, oxm.OFPXMT_OFB_IPV6_FLABEL:
		// 20 bit values in 32 bit fields
		if value[0] != 0 || value[1]&0xf0 != 0 {
			return badMatch(ofp4.OFPBMC_BAD_VALUE)
		}
		return nil
	case oxm.OFPXMT_OFB_VLAN_VID:
		if value[0]&^0x1f != 0 {
			return badMatch(ofp4.OFPBMC_BAD_VALUE)
		}
		return nil
	default:
		return nil
	}
	if value[0] > limit {
		return badMatch(ofp4.OFPBMC_BAD_VALUE)
	}
	return nil
}

func (m Match) exactIs(field uint8, candidates ...[]byte) bool {
	p, ok := m[field].(Exact)
	if !ok {
		return false
	}
	for _, c := range candidates {
		if bytes.Equal(p.Value, c) {
			return true
		}
	}
	return false
}

var (
	ethIPv4          = []byte{0x08, 0x00}
	ethIPv6          = []byte{0x86, 0xdd}
	ethARP           = []byte{0x08, 0x06}
	ethMPLS          = []byte{0x88, 0x47}
	ethMPLSMulticast = []byte{0x88, 0x48}
	ethPBB           = []byte{0x88, 0xe7}
)

// checkPrerequisites enforces that a field is only matched together with
// the fields that make it meaningful, such as tcp_src with ip_proto=6.
func (m Match) checkPrerequisites() error {
	for field := range m {
		ok := true
		switch field {
		case oxm.OFPXMT_OFB_IN_PHY_PORT:
			_, ok = m[oxm.OFPXMT_OFB_IN_PORT]
		case oxm.OFPXMT_OFB_VLAN_PCP:
			v, mask := m.valueMaskOrNil(oxm.OFPXMT_OFB_VLAN_VID)
			ok = v != nil && v[0]&mask[0]&0x10 != 0
		case oxm.OFPXMT_OFB_IP_DSCP, oxm.OFPXMT_OFB_IP_ECN, oxm.OFPXMT_OFB_IP_PROTO:
			ok = m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethIPv4, ethIPv6)
		case oxm.OFPXMT_OFB_IPV4_SRC, oxm.OFPXMT_OFB_IPV4_DST:
			ok = m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethIPv4)
		case oxm.OFPXMT_OFB_TCP_SRC, oxm.OFPXMT_OFB_TCP_DST:
			ok = m.exactIs(oxm.OFPXMT_OFB_IP_PROTO, []byte{6})
		case oxm.OFPXMT_OFB_UDP_SRC, oxm.OFPXMT_OFB_UDP_DST:
			ok = m.exactIs(oxm.OFPXMT_OFB_IP_PROTO, []byte{17})
		case oxm.OFPXMT_OFB_SCTP_SRC, oxm.OFPXMT_OFB_SCTP_DST:
			ok = m.exactIs(oxm.OFPXMT_OFB_IP_PROTO, []byte{132})
		case oxm.OFPXMT_OFB_ICMPV4_TYPE, oxm.OFPXMT_OFB_ICMPV4_CODE:
			ok = m.exactIs(oxm.OFPXMT_OFB_IP_PROTO, []byte{1}) && m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethIPv4)
		case oxm.OFPXMT_OFB_ARP_OP, oxm.OFPXMT_OFB_ARP_SPA, oxm.OFPXMT_OFB_ARP_TPA,
			oxm.OFPXMT_OFB_ARP_SHA, oxm.OFPXMT_OFB_ARP_THA:
			ok = m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethARP)
		case oxm.OFPXMT_OFB_IPV6_SRC, oxm.OFPXMT_OFB_IPV6_DST, oxm.OFPXMT_OFB_IPV6_FLABEL,
			oxm.OFPXMT_OFB_IPV6_EXTHDR:
			ok = m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethIPv6)
		case oxm.OFPXMT_OFB_ICMPV6_TYPE, oxm.OFPXMT_OFB_ICMPV6_CODE:
			ok = m.exactIs(oxm.OFPXMT_OFB_IP_PROTO, []byte{58}) && m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethIPv6)
		case oxm.OFPXMT_OFB_IPV6_ND_TARGET:
			ok = m.exactIs(oxm.OFPXMT_OFB_ICMPV6_TYPE, []byte{135}, []byte{136})
		case oxm.OFPXMT_OFB_IPV6_ND_SLL:
			ok = m.exactIs(oxm.OFPXMT_OFB_ICMPV6_TYPE, []byte{135})
		case oxm.OFPXMT_OFB_IPV6_ND_TLL:
			ok = m.exactIs(oxm.OFPXMT_OFB_ICMPV6_TYPE, []byte{136})
		case oxm.OFPXMT_OFB_MPLS_LABEL, oxm.OFPXMT_OFB_MPLS_TC, oxm.OFPXMT_OFB_MPLS_BOS:
			ok = m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethMPLS, ethMPLSMulticast)
		case oxm.OFPXMT_OFB_PBB_ISID:
			ok = m.exactIs(oxm.OFPXMT_OFB_ETH_TYPE, ethPBB)
		}
		if !ok {
			return badMatch(ofp4.OFPBMC_BAD_PREREQ)
		}
	}
	return nil
}

// Matches reports whether the packet satisfies every predicate.
func (m Match) Matches(fields *PacketFields) bool {
	for field, p := range m {
		value, ok := fields.Value(field)
		if !ok || !p.Test(value) {
			return false
		}
	}
	return true
}

/*
Fit reports whether the receiver, a match in the flow table, is selected
by req, the match of a non-strict modify, delete or stats request. Every
field of req must be present in the receiver with a mask at least as
specific and a value agreeing on req's mask.
*/
func (m Match) Fit(req Match) bool {
	for field, rp := range req {
		ep, ok := m[field]
		if !ok {
			return false
		}
		rv, rm := rp.valueMask()
		ev, em := ep.valueMask()
		if len(rv) != len(ev) {
			return false
		}
		for i := range rm {
			if em[i]&rm[i] != rm[i] || ev[i]&rm[i] != rv[i] {
				return false
			}
		}
	}
	return true
}

// Intersects reports whether some packet could satisfy both matches.
func (m Match) Intersects(other Match) bool {
	for field, ap := range m {
		bp, ok := other[field]
		if !ok {
			continue
		}
		av, am := ap.valueMask()
		bv, bm := bp.valueMask()
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if (av[i]^bv[i])&am[i]&bm[i] != 0 {
				return false
			}
		}
	}
	return true
}

// Equal is field by field predicate equality, never containment.
func (m Match) Equal(other Match) bool {
	if len(m) != len(other) {
		return false
	}
	for field, ap := range m {
		bp, ok := other[field]
		if !ok || !predicateEqual(ap, bp) {
			return false
		}
	}
	return true
}

func (m Match) fieldIds() []int {
	var ids []int
	for field := range m {
		ids = append(ids, int(field))
	}
	sort.Ints(ids)
	return ids
}

// Wire returns the match as OXM TLVs in field order.
func (m Match) Wire() ofp4.Match {
	var fields []oxm.Oxm
	for _, id := range m.fieldIds() {
		switch p := m[uint8(id)].(type) {
		case Exact:
			fields = append(fields, oxm.New(uint8(id), p.Value, nil))
		case Masked:
			fields = append(fields, oxm.New(uint8(id), p.Value, p.Mask))
		}
	}
	return ofp4.NewMatch(fields...)
}

func (m Match) String() string {
	if len(m) == 0 {
		return "any"
	}
	return strings.TrimSpace(m.Wire().OxmFields.String())
}

func (m Match) valueMaskOrNil(field uint8) ([]byte, []byte) {
	if p, ok := m[field]; ok {
		return p.valueMask()
	}
	return nil, nil
}

func isWildcard(p Predicate) bool {
	_, ok := p.(Wildcard)
	return ok
}
