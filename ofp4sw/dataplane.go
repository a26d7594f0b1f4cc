package ofp4sw

import (
	"context"
	"errors"

	"github.com/jackyang74/oftest"
)

var ErrQueueFull = errors.New("dataplane queue full")

type Packet struct {
	Port uint32
	Data []byte
}

// ChannelDataplane is an in-memory dataplane. Frames put on In reach the
// switch, frames the switch sends appear on Out. Sends never block; a
// full queue fails with ErrQueueFull.
type ChannelDataplane struct {
	In  chan Packet
	Out chan Packet
}

func NewChannelDataplane(size int) *ChannelDataplane {
	return &ChannelDataplane{
		In:  make(chan Packet, size),
		Out: make(chan Packet, size),
	}
}

func (d *ChannelDataplane) SendToPort(port uint32, data []byte) error {
	return trySend(d.Out, port, data)
}

func (d *ChannelDataplane) ReceiveFromPort(ctx context.Context) (uint32, []byte, error) {
	return receive(ctx, d.In)
}

// Peer is the other end of the wire: what it sends reaches the switch
// ports, and it receives what the switch forwards.
func (d *ChannelDataplane) Peer() oftest.Dataplane {
	return channelPeer{d}
}

type channelPeer struct {
	d *ChannelDataplane
}

func (p channelPeer) SendToPort(port uint32, data []byte) error {
	return trySend(p.d.In, port, data)
}

func (p channelPeer) ReceiveFromPort(ctx context.Context) (uint32, []byte, error) {
	return receive(ctx, p.d.Out)
}

func trySend(ch chan<- Packet, port uint32, data []byte) error {
	select {
	case ch <- Packet{Port: port, Data: append([]byte(nil), data...)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func receive(ctx context.Context, ch <-chan Packet) (uint32, []byte, error) {
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case pkt := <-ch:
		return pkt.Port, pkt.Data, nil
	}
}
