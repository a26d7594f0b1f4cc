package ofp4sw

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// 802.1ad service tags decode like customer tags, and an mpls bottom of
// stack falls back to a raw payload when the inner protocol is unknown.
func init() {
	layers.MPLSPayloadDecoder = gopacket.DecodeFunc(decodeMPLS)
	layers.EthernetTypeMetadata[ethernetTypeDot1QSTag] = layers.EthernetTypeMetadata[layers.EthernetTypeDot1Q]
}

const ethernetTypeDot1QSTag layers.EthernetType = 0x88a8

func decodeMPLS(data []byte, p gopacket.PacketBuilder) error {
	g := layers.ProtocolGuessingDecoder{}
	if err := g.Decode(data, p); err != nil {
		return gopacket.DecodePayload.Decode(data, p)
	}
	return nil
}
