package ofp4sw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jackyang74/oftest/oxm"
)

var errNoLayer = errors.New("frame has no such header")

// Frame is a packet travelling through the pipeline together with its
// out-of-band pipeline fields.
type Frame struct {
	// serialized is authoritative unless dirty, in which case layers are.
	// Both empty means the frame was dropped by a ttl decrement.
	serialized []byte
	layers     []gopacket.Layer
	dirty      bool

	inPort   uint32
	metadata uint64
	tunnelId uint64
	queueId  uint32
}

// NewFrame copies data.
func NewFrame(data []byte, inPort uint32) *Frame {
	return &Frame{
		serialized: append([]byte(nil), data...),
		inPort:     inPort,
	}
}

func (f *Frame) isInvalid() bool {
	return len(f.serialized) == 0 && len(f.layers) == 0
}

func (f *Frame) invalidate() {
	f.serialized = nil
	f.layers = nil
	f.dirty = false
}

func (f *Frame) decoded() []gopacket.Layer {
	if f.layers == nil && len(f.serialized) > 0 {
		f.layers = headerLayers(f.serialized)
	}
	return f.layers
}

// headerLayers decodes data down to the transport header. Whatever the
// last decoded header carries is kept as an opaque payload, so
// application data serializes back byte for byte.
func headerLayers(data []byte) []gopacket.Layer {
	var ls []gopacket.Layer
headers:
	for _, layer := range gopacket.NewPacket(data, layers.LinkTypeEthernet, gopacket.NoCopy).Layers() {
		switch layer.(type) {
		case *layers.Ethernet, *layers.Dot1Q, *layers.MPLS, *layers.IPv4, *layers.IPv6:
			ls = append(ls, layer)
		case *layers.TCP, *layers.UDP, *layers.SCTP, *layers.ICMPv4, *layers.ICMPv6, *layers.ARP:
			ls = append(ls, layer)
			break headers
		default:
			break headers
		}
	}
	if len(ls) == 0 {
		return []gopacket.Layer{gopacket.Payload(data)}
	}
	if rest := ls[len(ls)-1].LayerPayload(); len(rest) > 0 {
		ls = append(ls, gopacket.Payload(rest))
	}
	return ls
}

// Layers returns the gopacket layers for modification. The layers are
// pointers, so header fields may be changed in place. The frame is
// reserialized on the next call to Serialized.
func (f *Frame) Layers() []gopacket.Layer {
	ls := f.decoded()
	f.dirty = true
	return ls
}

// Serialized returns the wire bytes. Treat the result as frozen.
func (f *Frame) Serialized() ([]byte, error) {
	if !f.dirty {
		return f.serialized, nil
	}
	ls := make([]gopacket.SerializableLayer, len(f.layers))
	var network gopacket.NetworkLayer
	for i, layer := range f.layers {
		switch l := layer.(type) {
		case *layers.IPv4:
			network = l
		case *layers.IPv6:
			network = l
		case *layers.TCP:
			l.SetNetworkLayerForChecksum(network)
		case *layers.UDP:
			l.SetNetworkLayerForChecksum(network)
		case *layers.ICMPv6:
			l.SetNetworkLayerForChecksum(network)
		}
		if t, ok := layer.(gopacket.SerializableLayer); ok {
			ls[i] = t
		} else {
			return nil, fmt.Errorf("non serializable layer %v", layer.LayerType())
		}
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}, ls...); err != nil {
		return nil, err
	}
	f.serialized = buf.Bytes()
	f.layers = nil
	f.dirty = false
	return f.serialized, nil
}

// clone returns an independent copy, or an invalid frame when the
// current layers cannot be serialized.
func (f *Frame) clone() *Frame {
	data, err := f.Serialized()
	if err != nil {
		return &Frame{}
	}
	c := NewFrame(data, f.inPort)
	c.metadata = f.metadata
	c.tunnelId = f.tunnelId
	c.queueId = f.queueId
	return c
}

// Fields extracts the match view. Only the outermost occurrence of each
// header is used.
func (f *Frame) Fields() PacketFields {
	p := PacketFields{
		InPort:   f.inPort,
		Metadata: f.metadata,
		TunnelId: f.tunnelId,
	}
	if data, err := f.Serialized(); err == nil {
		p.Length = len(data)
	}
	var seenVlan, seenMpls, seenIP, seenL4 bool
	for _, layer := range f.decoded() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			p.EthDst = l.DstMAC
			p.EthSrc = l.SrcMAC
			p.EthType = uint16(l.EthernetType)
		case *layers.Dot1Q:
			if !seenVlan {
				seenVlan = true
				p.VlanVid = oxm.OFPVID_PRESENT | l.VLANIdentifier
				p.VlanPcp = l.Priority
			}
			if !seenMpls {
				p.EthType = uint16(l.Type)
			}
		case *layers.MPLS:
			if !seenMpls {
				seenMpls = true
				p.MplsLabel = l.Label
				p.MplsTc = l.TrafficClass
				if l.StackBottom {
					p.MplsBos = 1
				}
			}
		case *layers.IPv4:
			if !seenIP {
				seenIP = true
				p.IPDscp = l.TOS >> 2
				p.IPEcn = l.TOS & 0x03
				p.IPProto = uint8(l.Protocol)
				p.IPTTL = l.TTL
				p.IPSrc = l.SrcIP
				p.IPDst = l.DstIP
			}
		case *layers.IPv6:
			if !seenIP {
				seenIP = true
				p.IPDscp = l.TrafficClass >> 2
				p.IPEcn = l.TrafficClass & 0x03
				p.IPProto = uint8(l.NextHeader)
				p.IPTTL = l.HopLimit
				p.IPSrc = l.SrcIP
				p.IPDst = l.DstIP
				p.IPv6Flabel = l.FlowLabel
			}
		case *layers.ARP:
			p.ArpOp = l.Operation
			p.ArpSpa = net.IP(l.SourceProtAddress)
			p.ArpTpa = net.IP(l.DstProtAddress)
			p.ArpSha = net.HardwareAddr(l.SourceHwAddress)
			p.ArpTha = net.HardwareAddr(l.DstHwAddress)
		case *layers.TCP:
			if !seenL4 {
				seenL4 = true
				p.TCPSrc = uint16(l.SrcPort)
				p.TCPDst = uint16(l.DstPort)
			}
		case *layers.UDP:
			if !seenL4 {
				seenL4 = true
				p.UDPSrc = uint16(l.SrcPort)
				p.UDPDst = uint16(l.DstPort)
			}
		case *layers.SCTP:
			if !seenL4 {
				seenL4 = true
				p.SCTPSrc = uint16(l.SrcPort)
				p.SCTPDst = uint16(l.DstPort)
			}
		case *layers.ICMPv4:
			if !seenL4 {
				seenL4 = true
				p.ICMPType = l.TypeCode.Type()
				p.ICMPCode = l.TypeCode.Code()
			}
		case *layers.ICMPv6:
			if !seenL4 {
				seenL4 = true
				p.ICMPType = l.TypeCode.Type()
				p.ICMPCode = l.TypeCode.Code()
			}
		}
	}
	return p
}

func findLayer[T gopacket.Layer](ls []gopacket.Layer) (T, bool) {
	for _, layer := range ls {
		if l, ok := layer.(T); ok {
			return l, true
		}
	}
	var zero T
	return zero, false
}

// setField applies a set-field action. Frames lacking the header are
// left untouched and reported with errNoLayer.
func (f *Frame) setField(field uint8, value []byte) error {
	if field == oxm.OFPXMT_OFB_TUNNEL_ID {
		f.tunnelId = binary.BigEndian.Uint64(value)
		return nil
	}
	ls := f.Layers()
	switch field {
	case oxm.OFPXMT_OFB_ETH_DST, oxm.OFPXMT_OFB_ETH_SRC:
		eth, ok := findLayer[*layers.Ethernet](ls)
		if !ok {
			return errNoLayer
		}
		mac := net.HardwareAddr(append([]byte(nil), value...))
		if field == oxm.OFPXMT_OFB_ETH_DST {
			eth.DstMAC = mac
		} else {
			eth.SrcMAC = mac
		}
	case oxm.OFPXMT_OFB_ETH_TYPE:
		var last *layers.EthernetType
		for _, layer := range ls {
			switch l := layer.(type) {
			case *layers.Ethernet:
				last = &l.EthernetType
			case *layers.Dot1Q:
				last = &l.Type
			}
		}
		if last == nil {
			return errNoLayer
		}
		*last = layers.EthernetType(binary.BigEndian.Uint16(value))
	case oxm.OFPXMT_OFB_VLAN_VID, oxm.OFPXMT_OFB_VLAN_PCP:
		tag, ok := findLayer[*layers.Dot1Q](ls)
		if !ok {
			return errNoLayer
		}
		if field == oxm.OFPXMT_OFB_VLAN_VID {
			tag.VLANIdentifier = binary.BigEndian.Uint16(value) & 0x0fff
		} else {
			tag.Priority = value[0] & 0x07
		}
	case oxm.OFPXMT_OFB_MPLS_LABEL, oxm.OFPXMT_OFB_MPLS_TC, oxm.OFPXMT_OFB_MPLS_BOS:
		mpls, ok := findLayer[*layers.MPLS](ls)
		if !ok {
			return errNoLayer
		}
		switch field {
		case oxm.OFPXMT_OFB_MPLS_LABEL:
			mpls.Label = binary.BigEndian.Uint32(value) & 0xfffff
		case oxm.OFPXMT_OFB_MPLS_TC:
			mpls.TrafficClass = value[0] & 0x07
		default:
			mpls.StackBottom = value[0] != 0
		}
	case oxm.OFPXMT_OFB_IP_DSCP, oxm.OFPXMT_OFB_IP_ECN, oxm.OFPXMT_OFB_IP_PROTO:
		var tos *uint8
		if ip4, ok := findLayer[*layers.IPv4](ls); ok {
			tos = &ip4.TOS
			if field == oxm.OFPXMT_OFB_IP_PROTO {
				ip4.Protocol = layers.IPProtocol(value[0])
			}
		} else if ip6, ok := findLayer[*layers.IPv6](ls); ok {
			tos = &ip6.TrafficClass
			if field == oxm.OFPXMT_OFB_IP_PROTO {
				ip6.NextHeader = layers.IPProtocol(value[0])
			}
		} else {
			return errNoLayer
		}
		switch field {
		case oxm.OFPXMT_OFB_IP_DSCP:
			*tos = *tos&0x03 | value[0]<<2
		case oxm.OFPXMT_OFB_IP_ECN:
			*tos = *tos&0xfc | value[0]&0x03
		}
	case oxm.OFPXMT_OFB_IPV4_SRC, oxm.OFPXMT_OFB_IPV4_DST:
		ip4, ok := findLayer[*layers.IPv4](ls)
		if !ok {
			return errNoLayer
		}
		addr := net.IP(append([]byte(nil), value...))
		if field == oxm.OFPXMT_OFB_IPV4_SRC {
			ip4.SrcIP = addr
		} else {
			ip4.DstIP = addr
		}
	case oxm.OFPXMT_OFB_IPV6_SRC, oxm.OFPXMT_OFB_IPV6_DST, oxm.OFPXMT_OFB_IPV6_FLABEL:
		ip6, ok := findLayer[*layers.IPv6](ls)
		if !ok {
			return errNoLayer
		}
		switch field {
		case oxm.OFPXMT_OFB_IPV6_SRC:
			ip6.SrcIP = net.IP(append([]byte(nil), value...))
		case oxm.OFPXMT_OFB_IPV6_DST:
			ip6.DstIP = net.IP(append([]byte(nil), value...))
		default:
			ip6.FlowLabel = binary.BigEndian.Uint32(value) & 0xfffff
		}
	case oxm.OFPXMT_OFB_TCP_SRC, oxm.OFPXMT_OFB_TCP_DST:
		tcp, ok := findLayer[*layers.TCP](ls)
		if !ok {
			return errNoLayer
		}
		port := layers.TCPPort(binary.BigEndian.Uint16(value))
		if field == oxm.OFPXMT_OFB_TCP_SRC {
			tcp.SrcPort = port
		} else {
			tcp.DstPort = port
		}
	case oxm.OFPXMT_OFB_UDP_SRC, oxm.OFPXMT_OFB_UDP_DST:
		udp, ok := findLayer[*layers.UDP](ls)
		if !ok {
			return errNoLayer
		}
		port := layers.UDPPort(binary.BigEndian.Uint16(value))
		if field == oxm.OFPXMT_OFB_UDP_SRC {
			udp.SrcPort = port
		} else {
			udp.DstPort = port
		}
	case oxm.OFPXMT_OFB_SCTP_SRC, oxm.OFPXMT_OFB_SCTP_DST:
		sctp, ok := findLayer[*layers.SCTP](ls)
		if !ok {
			return errNoLayer
		}
		port := layers.SCTPPort(binary.BigEndian.Uint16(value))
		if field == oxm.OFPXMT_OFB_SCTP_SRC {
			sctp.SrcPort = port
		} else {
			sctp.DstPort = port
		}
	case oxm.OFPXMT_OFB_ICMPV4_TYPE, oxm.OFPXMT_OFB_ICMPV4_CODE:
		icmp, ok := findLayer[*layers.ICMPv4](ls)
		if !ok {
			return errNoLayer
		}
		t, c := icmp.TypeCode.Type(), icmp.TypeCode.Code()
		if field == oxm.OFPXMT_OFB_ICMPV4_TYPE {
			t = value[0]
		} else {
			c = value[0]
		}
		icmp.TypeCode = layers.CreateICMPv4TypeCode(t, c)
	case oxm.OFPXMT_OFB_ICMPV6_TYPE, oxm.OFPXMT_OFB_ICMPV6_CODE:
		icmp, ok := findLayer[*layers.ICMPv6](ls)
		if !ok {
			return errNoLayer
		}
		t, c := icmp.TypeCode.Type(), icmp.TypeCode.Code()
		if field == oxm.OFPXMT_OFB_ICMPV6_TYPE {
			t = value[0]
		} else {
			c = value[0]
		}
		icmp.TypeCode = layers.CreateICMPv6TypeCode(t, c)
	case oxm.OFPXMT_OFB_ARP_OP, oxm.OFPXMT_OFB_ARP_SPA, oxm.OFPXMT_OFB_ARP_TPA,
		oxm.OFPXMT_OFB_ARP_SHA, oxm.OFPXMT_OFB_ARP_THA:
		arp, ok := findLayer[*layers.ARP](ls)
		if !ok {
			return errNoLayer
		}
		v := append([]byte(nil), value...)
		switch field {
		case oxm.OFPXMT_OFB_ARP_OP:
			arp.Operation = binary.BigEndian.Uint16(value)
		case oxm.OFPXMT_OFB_ARP_SPA:
			arp.SourceProtAddress = v
		case oxm.OFPXMT_OFB_ARP_TPA:
			arp.DstProtAddress = v
		case oxm.OFPXMT_OFB_ARP_SHA:
			arp.SourceHwAddress = v
		default:
			arp.DstHwAddress = v
		}
	default:
		return fmt.Errorf("set-field %s unsupported", oxm.FieldName(field))
	}
	return nil
}

// tagEnd is the index just past the ethernet header and its vlan tags.
func tagEnd(ls []gopacket.Layer) int {
	i := 1
	for i < len(ls) {
		if _, ok := ls[i].(*layers.Dot1Q); !ok {
			break
		}
		i++
	}
	return i
}

// setNextType rewrites the ethertype field of the header at ls[i-1].
func setNextType(ls []gopacket.Layer, i int, ethertype uint16) {
	switch l := ls[i-1].(type) {
	case *layers.Ethernet:
		l.EthernetType = layers.EthernetType(ethertype)
	case *layers.Dot1Q:
		l.Type = layers.EthernetType(ethertype)
	}
}

func insertLayer(ls []gopacket.Layer, i int, layer gopacket.Layer) []gopacket.Layer {
	out := make([]gopacket.Layer, 0, len(ls)+1)
	out = append(out, ls[:i]...)
	out = append(out, layer)
	return append(out, ls[i:]...)
}

func removeLayer(ls []gopacket.Layer, i int) []gopacket.Layer {
	out := make([]gopacket.Layer, 0, len(ls)-1)
	out = append(out, ls[:i]...)
	return append(out, ls[i+1:]...)
}

func (f *Frame) pushVlan(ethertype uint16) error {
	ls := f.Layers()
	if len(ls) == 0 {
		return errNoLayer
	}
	eth, ok := ls[0].(*layers.Ethernet)
	if !ok {
		return errNoLayer
	}
	tag := &layers.Dot1Q{Type: eth.EthernetType}
	if len(ls) > 1 {
		if outer, ok := ls[1].(*layers.Dot1Q); ok {
			tag.Priority = outer.Priority
			tag.DropEligible = outer.DropEligible
			tag.VLANIdentifier = outer.VLANIdentifier
		}
	}
	eth.EthernetType = layers.EthernetType(ethertype)
	f.layers = insertLayer(ls, 1, tag)
	return nil
}

func (f *Frame) popVlan() error {
	ls := f.Layers()
	if len(ls) < 2 {
		return errNoLayer
	}
	eth, ok1 := ls[0].(*layers.Ethernet)
	tag, ok2 := ls[1].(*layers.Dot1Q)
	if !ok1 || !ok2 {
		return errNoLayer
	}
	eth.EthernetType = tag.Type
	f.layers = removeLayer(ls, 1)
	return nil
}

func (f *Frame) pushMpls(ethertype uint16) error {
	ls := f.Layers()
	if len(ls) == 0 {
		return errNoLayer
	}
	if _, ok := ls[0].(*layers.Ethernet); !ok {
		return errNoLayer
	}
	i := tagEnd(ls)
	shim := &layers.MPLS{StackBottom: true}
	if i < len(ls) {
		switch l := ls[i].(type) {
		case *layers.MPLS:
			shim.Label = l.Label
			shim.TrafficClass = l.TrafficClass
			shim.TTL = l.TTL
			shim.StackBottom = false
		case *layers.IPv4:
			shim.TTL = l.TTL
		case *layers.IPv6:
			shim.TTL = l.HopLimit
		}
	}
	setNextType(ls, i, ethertype)
	f.layers = insertLayer(ls, i, shim)
	return nil
}

func (f *Frame) popMpls(ethertype uint16) error {
	ls := f.Layers()
	if len(ls) == 0 {
		return errNoLayer
	}
	i := tagEnd(ls)
	if i >= len(ls) {
		return errNoLayer
	}
	if _, ok := ls[i].(*layers.MPLS); !ok {
		return errNoLayer
	}
	setNextType(ls, i, ethertype)
	f.layers = removeLayer(ls, i)
	return nil
}

// ttl returns a pointer to the ttl of the outermost ip header.
func ipTTL(ls []gopacket.Layer) *uint8 {
	for _, layer := range ls {
		switch l := layer.(type) {
		case *layers.IPv4:
			return &l.TTL
		case *layers.IPv6:
			return &l.HopLimit
		}
	}
	return nil
}

// mplsTTLs returns the ttl of the outermost shim and of the header
// right under it, which is either another shim or an ip header.
func mplsTTLs(ls []gopacket.Layer) (outer, inner *uint8) {
	for i, layer := range ls {
		if l, ok := layer.(*layers.MPLS); ok {
			outer = &l.TTL
			if i+1 < len(ls) {
				if next, ok := ls[i+1].(*layers.MPLS); ok {
					inner = &next.TTL
				} else {
					inner = ipTTL(ls[i+1:])
				}
			}
			return
		}
	}
	return
}

// decTTL decrements a ttl. It reports true when the ttl reached zero,
// in which case the frame is invalidated.
func (f *Frame) decTTL(ttl *uint8) bool {
	if *ttl <= 1 {
		*ttl = 0
		f.invalidate()
		return true
	}
	*ttl--
	return false
}
