/*
Package oftest holds the pieces shared by the switch emulator and the
probe: the dataplane boundary, port counters and version dispatch of raw
messages.
*/
package oftest

import (
	"context"
)

// Dataplane moves ethernet frames in and out of switch ports.
type Dataplane interface {
	SendToPort(port uint32, data []byte) error
	// ReceiveFromPort blocks until a frame arrives or ctx is done.
	ReceiveFromPort(ctx context.Context) (port uint32, data []byte, err error)
}

type PortStats struct {
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
	RxDropped uint64
	TxDropped uint64
	RxErrors  uint64
	TxErrors  uint64
	Ethernet  *PortStatsEthernet
}

type PortStatsEthernet struct {
	RxFrameErr uint64
	RxOverErr  uint64
	RxCrcErr   uint64
	Collisions uint64
}
