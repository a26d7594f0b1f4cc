package ofp4sw

import (
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/jackyang74/oftest"
	"github.com/jackyang74/oftest/ofp4"
)

type PortState struct {
	Name      string
	HwAddr    net.HardwareAddr
	LinkDown  bool
	Curr      uint32
	CurrSpeed uint32 // kbps
	MaxSpeed  uint32 // kbps
}

type port struct {
	no      uint32
	state   PortState
	config  uint32
	stats   oftest.PortStats
	created time.Time
}

func (p *port) desc() ofp4.Port {
	desc := ofp4.Port{
		PortNo:    p.no,
		Name:      p.state.Name,
		Config:    p.config,
		Curr:      p.state.Curr,
		CurrSpeed: p.state.CurrSpeed,
		MaxSpeed:  p.state.MaxSpeed,
	}
	copy(desc.HwAddr[:], p.state.HwAddr)
	if p.state.LinkDown {
		desc.State |= ofp4.OFPPS_LINK_DOWN
	} else if p.config&ofp4.OFPPC_PORT_DOWN == 0 {
		desc.State |= ofp4.OFPPS_LIVE
	}
	return desc
}

func (p *port) wireStats(now time.Time) ofp4.PortStats {
	sec, nsec := splitDuration(now.Sub(p.created))
	s := ofp4.PortStats{
		PortNo:       p.no,
		RxPackets:    p.stats.RxPackets,
		TxPackets:    p.stats.TxPackets,
		RxBytes:      p.stats.RxBytes,
		TxBytes:      p.stats.TxBytes,
		RxDropped:    p.stats.RxDropped,
		TxDropped:    p.stats.TxDropped,
		RxErrors:     p.stats.RxErrors,
		TxErrors:     p.stats.TxErrors,
		DurationSec:  sec,
		DurationNsec: nsec,
	}
	if eth := p.stats.Ethernet; eth != nil {
		s.RxFrameErr = eth.RxFrameErr
		s.RxOverErr = eth.RxOverErr
		s.RxCrcErr = eth.RxCrcErr
		s.Collisions = eth.Collisions
	}
	return s
}

func (p *port) canForward() bool {
	return p.config&(ofp4.OFPPC_NO_FWD|ofp4.OFPPC_PORT_DOWN) == 0 && !p.state.LinkDown
}

func (p *port) canReceive() bool {
	return p.config&(ofp4.OFPPC_NO_RECV|ofp4.OFPPC_PORT_DOWN) == 0 && !p.state.LinkDown
}

// AddPort attaches a dataplane port under an openflow port number.
func (pipe *Pipeline) AddPort(no uint32, state PortState) error {
	if no == 0 || no > ofp4.OFPP_MAX {
		return fmt.Errorf("port %d: %w", no, ErrBadPort)
	}
	pipe.lock.Lock()
	if _, ok := pipe.ports[no]; ok {
		pipe.lock.Unlock()
		return fmt.Errorf("port %d already exists", no)
	}
	p := &port{no: no, state: state, created: pipe.now()}
	pipe.ports[no] = p
	desc := p.desc()
	pipe.lock.Unlock()

	pipe.portStatus(ofp4.OFPPR_ADD, desc)
	return nil
}

func (pipe *Pipeline) RemovePort(no uint32) error {
	pipe.lock.Lock()
	p, ok := pipe.ports[no]
	if !ok {
		pipe.lock.Unlock()
		return fmt.Errorf("port %d: %w", no, ErrBadPort)
	}
	delete(pipe.ports, no)
	desc := p.desc()
	pipe.lock.Unlock()

	pipe.portStatus(ofp4.OFPPR_DELETE, desc)
	return nil
}

// SetPortConfig changes the config bits selected by mask.
func (pipe *Pipeline) SetPortConfig(no uint32, config, mask uint32) error {
	return pipe.modifyPort(no, func(p *port) {
		p.config = p.config&^mask | config&mask
	})
}

func (pipe *Pipeline) SetLinkDown(no uint32, down bool) error {
	return pipe.modifyPort(no, func(p *port) {
		p.state.LinkDown = down
	})
}

func (pipe *Pipeline) modifyPort(no uint32, fn func(*port)) error {
	pipe.lock.Lock()
	p, ok := pipe.ports[no]
	if !ok {
		pipe.lock.Unlock()
		return fmt.Errorf("port %d: %w", no, ErrBadPort)
	}
	before := p.desc()
	fn(p)
	after := p.desc()
	pipe.lock.Unlock()

	if before != after {
		pipe.portStatus(ofp4.OFPPR_MODIFY, after)
	}
	return nil
}

func (pipe *Pipeline) portStatus(reason uint8, desc ofp4.Port) {
	if fn := pipe.events().PortStatus; fn != nil {
		fn(ofp4.PortStatus{Reason: reason, Desc: desc})
	}
}

func (pipe *Pipeline) knownPort(no uint32) bool {
	pipe.lock.RLock()
	defer pipe.lock.RUnlock()
	_, ok := pipe.ports[no]
	return ok
}

// portNumbers returns the attached ports in ascending order. The caller
// holds the lock.
func (pipe *Pipeline) portNumbers() []uint32 {
	nos := make([]uint32, 0, len(pipe.ports))
	for no := range pipe.ports {
		nos = append(nos, no)
	}
	sort.Slice(nos, func(i, j int) bool { return nos[i] < nos[j] })
	return nos
}

func (pipe *Pipeline) PortDesc() []ofp4.Port {
	pipe.lock.RLock()
	defer pipe.lock.RUnlock()
	var descs []ofp4.Port
	for _, no := range pipe.portNumbers() {
		descs = append(descs, pipe.ports[no].desc())
	}
	return descs
}

// PortStats answers a port statistics request; OFPP_ANY selects all ports.
func (pipe *Pipeline) PortStats(no uint32) ([]ofp4.PortStats, error) {
	now := pipe.now()
	pipe.lock.RLock()
	defer pipe.lock.RUnlock()
	if no == ofp4.OFPP_ANY {
		var stats []ofp4.PortStats
		for _, n := range pipe.portNumbers() {
			stats = append(stats, pipe.ports[n].wireStats(now))
		}
		return stats, nil
	}
	p, ok := pipe.ports[no]
	if !ok {
		return nil, ErrBadPort
	}
	return []ofp4.PortStats{p.wireStats(now)}, nil
}

// PortCounters returns a copy of the counters of one port.
func (pipe *Pipeline) PortCounters(no uint32) (oftest.PortStats, bool) {
	pipe.lock.RLock()
	defer pipe.lock.RUnlock()
	p, ok := pipe.ports[no]
	if !ok {
		return oftest.PortStats{}, false
	}
	return p.stats, true
}
