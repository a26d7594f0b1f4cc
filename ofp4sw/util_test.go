package ofp4sw

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/oxm"
)

var (
	hostA = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	hostB = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

// tcpPacket builds an ethernet/ipv4/tcp frame of exactly size bytes.
func tcpPacket(t *testing.T, size int) []byte {
	t.Helper()
	require.GreaterOrEqual(t, size, 60)
	eth := &layers.Ethernet{SrcMAC: hostA, DstMAC: hostB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{192, 168, 0, 1},
		DstIP:    net.IP{192, 168, 0, 2},
	}
	tcp := &layers.TCP{SrcPort: 1234, DstPort: 80, Window: 1024, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, tcp, gopacket.Payload(make([]byte, size-54)))
}

func udpPacket(t *testing.T, ttl uint8) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: hostA, DstMAC: hostB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      ttl,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, udp, gopacket.Payload(make([]byte, 40)))
}

func arpPacket(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: hostA, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   hostA,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return serialize(t, eth, arp)
}

func inPort(no uint32) oxm.Oxm { return oxm.New(oxm.OFPXMT_OFB_IN_PORT, be32(no), nil) }

func ethType(v uint16) oxm.Oxm { return oxm.New(oxm.OFPXMT_OFB_ETH_TYPE, be16(v), nil) }

func ipProto(v uint8) oxm.Oxm { return oxm.New(oxm.OFPXMT_OFB_IP_PROTO, []byte{v}, nil) }

func ipv4Dst(addr, mask net.IP) oxm.Oxm {
	if mask == nil {
		return oxm.New(oxm.OFPXMT_OFB_IPV4_DST, addr.To4(), nil)
	}
	return oxm.New(oxm.OFPXMT_OFB_IPV4_DST, addr.To4(), mask.To4())
}

func mustMatch(t *testing.T, fields ...oxm.Oxm) Match {
	t.Helper()
	m, err := NewMatch(ofp4.NewMatch(fields...))
	require.NoError(t, err)
	return m
}

func output(port uint32) *ofp4.ActionOutput {
	return &ofp4.ActionOutput{Port: port, MaxLen: ofp4.OFPCML_NO_BUFFER}
}

func applyActions(acts ...ofp4.Action) *ofp4.InstructionActions {
	return &ofp4.InstructionActions{Type: ofp4.OFPIT_APPLY_ACTIONS, Actions: acts}
}

func writeActions(acts ...ofp4.Action) *ofp4.InstructionActions {
	return &ofp4.InstructionActions{Type: ofp4.OFPIT_WRITE_ACTIONS, Actions: acts}
}

func flowAdd(priority uint16, match ofp4.Match, insts ...ofp4.Instruction) *ofp4.FlowMod {
	return &ofp4.FlowMod{
		Command:      ofp4.OFPFC_ADD,
		Priority:     priority,
		BufferId:     ofp4.OFP_NO_BUFFER,
		OutPort:      ofp4.OFPP_ANY,
		OutGroup:     ofp4.OFPG_ANY,
		Match:        match,
		Instructions: insts,
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
