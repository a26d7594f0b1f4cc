/*
Package trafgen is the boundary to a traffic generator: a device that
replays frames into switch ports and counts what comes back out.

Tester ports are numbered from 0. Counters are cumulative since the last
ResetStats; rates cover the last second, in packets and bits per second.
*/
package trafgen

//go:generate mockgen -destination testing/mock_trafgen.go -package testing github.com/jackyang74/oftest/trafgen Tester

import (
	"fmt"
	"strings"

	"github.com/jackyang74/oftest/ofp4"
)

type Tester interface {
	GetRcvPktsCnt(port int) (uint64, error)
	GetRcvBytesCnt(port int) (uint64, error)
	GetRcvRatePps(port int) (uint64, error)
	GetRcvRateBps(port int) (uint64, error)
	ResetStats() error

	// SetEnable and SetDisable gate the transmit side of a port.
	SetEnable(port int) error
	SetDisable(port int) error

	// SetReplayCnt sets how many times the loaded frames are replayed;
	// 0 replays until stopped.
	SetReplayCnt(port int, count int) error
	// SetReplayRate paces replay in packets per second; 0 is unpaced.
	SetReplayRate(port int, pps int) error
	SetBeginReplay(port int) error
	SetStopReplay(port int) error
	// ResetReplay stops replay and restores count and rate defaults.
	ResetReplay(port int) error
}

type Mismatch struct {
	Counter string
	Tester  uint64
	Switch  uint64
}

// MismatchError lists counters on which a tester and a switch disagree.
type MismatchError struct {
	Port       int
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	var parts []string
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s tester=%d switch=%d", m.Counter, m.Tester, m.Switch))
	}
	return fmt.Sprintf("tester port %d: %s", e.Port, strings.Join(parts, ", "))
}

/*
CrossCheck compares what the tester received on port with the transmit
counters of the switch port wired to it. It returns a *MismatchError when
packets or bytes differ.
*/
func CrossCheck(t Tester, port int, stats ofp4.PortStats) error {
	pkts, err := t.GetRcvPktsCnt(port)
	if err != nil {
		return fmt.Errorf("read packet count: %w", err)
	}
	bytes, err := t.GetRcvBytesCnt(port)
	if err != nil {
		return fmt.Errorf("read byte count: %w", err)
	}
	var mismatches []Mismatch
	if pkts != stats.TxPackets {
		mismatches = append(mismatches, Mismatch{Counter: "packets", Tester: pkts, Switch: stats.TxPackets})
	}
	if bytes != stats.TxBytes {
		mismatches = append(mismatches, Mismatch{Counter: "bytes", Tester: bytes, Switch: stats.TxBytes})
	}
	if len(mismatches) > 0 {
		return &MismatchError{Port: port, Mismatches: mismatches}
	}
	return nil
}
