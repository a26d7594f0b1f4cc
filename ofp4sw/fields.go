package ofp4sw

import (
	"encoding/binary"
	"net"

	"github.com/jackyang74/oftest/oxm"
)

// PacketFields is the header view of a frame that matching works on.
// Protocol fields are only visible when the enclosing ethertype or ip
// protocol says the header is present.
type PacketFields struct {
	InPort   uint32
	Metadata uint64
	TunnelId uint64

	EthDst  net.HardwareAddr
	EthSrc  net.HardwareAddr
	EthType uint16
	VlanVid uint16 // OFPVID_PRESENT is set for tagged frames
	VlanPcp uint8

	MplsLabel uint32
	MplsTc    uint8
	MplsBos   uint8

	IPDscp     uint8
	IPEcn      uint8
	IPProto    uint8
	IPTTL      uint8
	IPSrc      net.IP
	IPDst      net.IP
	IPv6Flabel uint32

	TCPSrc, TCPDst   uint16
	UDPSrc, UDPDst   uint16
	SCTPSrc, SCTPDst uint16
	ICMPType         uint8
	ICMPCode         uint8

	ArpOp  uint16
	ArpSpa net.IP
	ArpTpa net.IP
	ArpSha net.HardwareAddr
	ArpTha net.HardwareAddr

	// Length is the frame size in bytes.
	Length int
}

func be16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

func be32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func be64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func (p *PacketFields) isIPv4() bool { return p.EthType == 0x0800 && p.IPSrc.To4() != nil }

func (p *PacketFields) isIPv6() bool { return p.EthType == 0x86dd && len(p.IPSrc) == net.IPv6len && p.IPSrc.To4() == nil }

func (p *PacketFields) isMPLS() bool { return p.EthType == 0x8847 || p.EthType == 0x8848 }

// Value returns the wire encoding of a field, and false when the packet
// does not carry it.
func (p *PacketFields) Value(field uint8) ([]byte, bool) {
	ip := p.isIPv4() || p.isIPv6()
	switch field {
	case oxm.OFPXMT_OFB_IN_PORT, oxm.OFPXMT_OFB_IN_PHY_PORT:
		return be32(p.InPort), true
	case oxm.OFPXMT_OFB_METADATA:
		return be64(p.Metadata), true
	case oxm.OFPXMT_OFB_TUNNEL_ID:
		return be64(p.TunnelId), true
	case oxm.OFPXMT_OFB_ETH_DST:
		return []byte(p.EthDst), len(p.EthDst) == 6
	case oxm.OFPXMT_OFB_ETH_SRC:
		return []byte(p.EthSrc), len(p.EthSrc) == 6
	case oxm.OFPXMT_OFB_ETH_TYPE:
		return be16(p.EthType), true
	case oxm.OFPXMT_OFB_VLAN_VID:
		return be16(p.VlanVid), true
	case oxm.OFPXMT_OFB_VLAN_PCP:
		return []byte{p.VlanPcp}, p.VlanVid&oxm.OFPVID_PRESENT != 0
	case oxm.OFPXMT_OFB_MPLS_LABEL:
		return be32(p.MplsLabel), p.isMPLS()
	case oxm.OFPXMT_OFB_MPLS_TC:
		return []byte{p.MplsTc}, p.isMPLS()
	case oxm.OFPXMT_OFB_MPLS_BOS:
		return []byte{p.MplsBos}, p.isMPLS()
	case oxm.OFPXMT_OFB_IP_DSCP:
		return []byte{p.IPDscp}, ip
	case oxm.OFPXMT_OFB_IP_ECN:
		return []byte{p.IPEcn}, ip
	case oxm.OFPXMT_OFB_IP_PROTO:
		return []byte{p.IPProto}, ip
	case oxm.OFPXMT_OFB_IPV4_SRC:
		return []byte(p.IPSrc.To4()), p.isIPv4()
	case oxm.OFPXMT_OFB_IPV4_DST:
		return []byte(p.IPDst.To4()), p.isIPv4()
	case oxm.OFPXMT_OFB_IPV6_SRC:
		return []byte(p.IPSrc), p.isIPv6()
	case oxm.OFPXMT_OFB_IPV6_DST:
		return []byte(p.IPDst), p.isIPv6()
	case oxm.OFPXMT_OFB_IPV6_FLABEL:
		return be32(p.IPv6Flabel), p.isIPv6()
	case oxm.OFPXMT_OFB_TCP_SRC:
		return be16(p.TCPSrc), ip && p.IPProto == 6
	case oxm.OFPXMT_OFB_TCP_DST:
		return be16(p.TCPDst), ip && p.IPProto == 6
	case oxm.OFPXMT_OFB_UDP_SRC:
		return be16(p.UDPSrc), ip && p.IPProto == 17
	case oxm.OFPXMT_OFB_UDP_DST:
		return be16(p.UDPDst), ip && p.IPProto == 17
	case oxm.OFPXMT_OFB_SCTP_SRC:
		return be16(p.SCTPSrc), ip && p.IPProto == 132
	case oxm.OFPXMT_OFB_SCTP_DST:
		return be16(p.SCTPDst), ip && p.IPProto == 132
	case oxm.OFPXMT_OFB_ICMPV4_TYPE:
		return []byte{p.ICMPType}, p.isIPv4() && p.IPProto == 1
	case oxm.OFPXMT_OFB_ICMPV4_CODE:
		return []byte{p.ICMPCode}, p.isIPv4() && p.IPProto == 1
	case oxm.OFPXMT_OFB_ICMPV6_TYPE:
		return []byte{p.ICMPType}, p.isIPv6() && p.IPProto == 58
	case oxm.OFPXMT_OFB_ICMPV6_CODE:
		return []byte{p.ICMPCode}, p.isIPv6() && p.IPProto == 58
	case oxm.OFPXMT_OFB_ARP_OP:
		return be16(p.ArpOp), p.EthType == 0x0806
	case oxm.OFPXMT_OFB_ARP_SPA:
		return []byte(p.ArpSpa.To4()), p.EthType == 0x0806 && p.ArpSpa.To4() != nil
	case oxm.OFPXMT_OFB_ARP_TPA:
		return []byte(p.ArpTpa.To4()), p.EthType == 0x0806 && p.ArpTpa.To4() != nil
	case oxm.OFPXMT_OFB_ARP_SHA:
		return []byte(p.ArpSha), p.EthType == 0x0806 && len(p.ArpSha) == 6
	case oxm.OFPXMT_OFB_ARP_THA:
		return []byte(p.ArpTha), p.EthType == 0x0806 && len(p.ArpTha) == 6
	}
	return nil, false
}

// ParseFields decodes an ethernet frame received on inPort.
func ParseFields(data []byte, inPort uint32) PacketFields {
	return NewFrame(data, inPort).Fields()
}
