package trafgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/gopacket/pcapgo"
	"github.com/jackyang74/oftest"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

var (
	ErrBadPort     = errors.New("trafgen: no such port")
	ErrDisabled    = errors.New("trafgen: port transmit disabled")
	ErrNoFrames    = errors.New("trafgen: nothing loaded for replay")
	ErrBadArgument = errors.New("trafgen: bad argument")
)

const rateWindow = time.Second

// Failed sends back off between these bounds so an unpaced endless
// replay into a broken dataplane does not spin.
const (
	minSendBackoff = time.Millisecond
	maxSendBackoff = 100 * time.Millisecond
)

type sample struct {
	at    time.Time
	bytes int
}

type softPort struct {
	enabled   bool
	rxPackets uint64
	rxBytes   uint64
	window    *deque.Deque

	frames     [][]byte
	replayCnt  int
	replayRate rate.Limit
	stop       context.CancelFunc
	done       chan struct{}
}

func newSoftPort() *softPort {
	return &softPort{
		window:     deque.New(),
		replayCnt:  1,
		replayRate: rate.Inf,
	}
}

type SoftOptions struct {
	Ports int
	// FirstPort is the switch port wired to tester port 0; tester port n
	// is wired to FirstPort+n. Defaults to 1.
	FirstPort uint32
	Now       func() time.Time
}

// Soft is a Tester in software. It injects frames through a Dataplane
// and counts the frames the Dataplane hands back.
type Soft struct {
	dp        oftest.Dataplane
	firstPort uint32
	now       func() time.Time

	lock  sync.Mutex
	ports []*softPort
}

var _ Tester = (*Soft)(nil)

func NewSoft(dp oftest.Dataplane, opts SoftOptions) *Soft {
	if opts.FirstPort == 0 {
		opts.FirstPort = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Soft{dp: dp, firstPort: opts.FirstPort, now: opts.Now}
	for i := 0; i < opts.Ports; i++ {
		s.ports = append(s.ports, newSoftPort())
	}
	return s
}

// port returns the state of a tester port. The caller holds the lock.
func (s *Soft) port(no int) (*softPort, error) {
	if no < 0 || no >= len(s.ports) {
		return nil, fmt.Errorf("%w: %d", ErrBadPort, no)
	}
	return s.ports[no], nil
}

// LoadPcap replaces the frames replayed on port with the packets of a
// pcap capture and returns how many were read.
func (s *Soft) LoadPcap(port int, r io.Reader) (int, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return 0, err
	}
	var frames [][]byte
	for {
		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		frames = append(frames, data)
	}
	if err := s.SetFrames(port, frames...); err != nil {
		return 0, err
	}
	return len(frames), nil
}

func (s *Soft) SetFrames(port int, frames ...[]byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return err
	}
	p.frames = frames
	return nil
}

// Run counts frames leaving the switch until ctx is done.
func (s *Soft) Run(ctx context.Context) error {
	for {
		no, data, err := s.dp.ReceiveFromPort(ctx)
		if err != nil {
			return err
		}
		s.record(int(no)-int(s.firstPort), len(data))
	}
}

func (s *Soft) record(port, size int) {
	now := s.now()
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		klog.V(4).InfoS("Frame on unwired port ignored", "port", port)
		return
	}
	p.rxPackets++
	p.rxBytes += uint64(size)
	p.window.PushBack(sample{at: now, bytes: size})
	prune(p.window, now)
}

func prune(window *deque.Deque, now time.Time) {
	for window.Len() > 0 && !window.Front().(sample).at.After(now.Add(-rateWindow)) {
		window.PopFront()
	}
}

func (s *Soft) GetRcvPktsCnt(port int) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return 0, err
	}
	return p.rxPackets, nil
}

func (s *Soft) GetRcvBytesCnt(port int) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return 0, err
	}
	return p.rxBytes, nil
}

func (s *Soft) rate(port int) (pps, bps uint64, err error) {
	now := s.now()
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return 0, 0, err
	}
	prune(p.window, now)
	for i := 0; i < p.window.Len(); i++ {
		pps++
		bps += 8 * uint64(p.window.At(i).(sample).bytes)
	}
	return pps, bps, nil
}

func (s *Soft) GetRcvRatePps(port int) (uint64, error) {
	pps, _, err := s.rate(port)
	return pps, err
}

func (s *Soft) GetRcvRateBps(port int) (uint64, error) {
	_, bps, err := s.rate(port)
	return bps, err
}

func (s *Soft) ResetStats() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, p := range s.ports {
		p.rxPackets = 0
		p.rxBytes = 0
		p.window.Clear()
	}
	return nil
}

func (s *Soft) setEnabled(port int, enabled bool) error {
	s.lock.Lock()
	p, err := s.port(port)
	if err != nil {
		s.lock.Unlock()
		return err
	}
	p.enabled = enabled
	s.lock.Unlock()
	if !enabled {
		return s.SetStopReplay(port)
	}
	return nil
}

func (s *Soft) SetEnable(port int) error  { return s.setEnabled(port, true) }
func (s *Soft) SetDisable(port int) error { return s.setEnabled(port, false) }

func (s *Soft) SetReplayCnt(port int, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: replay count %d", ErrBadArgument, count)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return err
	}
	p.replayCnt = count
	return nil
}

func (s *Soft) SetReplayRate(port int, pps int) error {
	if pps < 0 {
		return fmt.Errorf("%w: replay rate %d", ErrBadArgument, pps)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return err
	}
	p.replayRate = rate.Inf
	if pps > 0 {
		p.replayRate = rate.Limit(pps)
	}
	return nil
}

// SetBeginReplay starts sending the loaded frames into the switch port
// wired to port. A replay already running is stopped first.
func (s *Soft) SetBeginReplay(port int) error {
	if err := s.SetStopReplay(port); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return err
	}
	if !p.enabled {
		return fmt.Errorf("%w: %d", ErrDisabled, port)
	}
	if len(p.frames) == 0 {
		return fmt.Errorf("%w: %d", ErrNoFrames, port)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.stop = cancel
	p.done = make(chan struct{})
	go s.replay(ctx, p.done, s.firstPort+uint32(port), p.frames, p.replayCnt, rate.NewLimiter(p.replayRate, 1))
	return nil
}

func (s *Soft) replay(ctx context.Context, done chan struct{}, swPort uint32, frames [][]byte, count int, limiter *rate.Limiter) {
	defer close(done)
	sent := 0
	var backoff time.Duration
	for round := 0; count == 0 || round < count; round++ {
		for _, frame := range frames {
			if err := limiter.Wait(ctx); err != nil {
				klog.V(2).InfoS("Replay stopped", "port", swPort, "sent", sent)
				return
			}
			if err := s.dp.SendToPort(swPort, frame); err != nil {
				backoff = min(max(2*backoff, minSendBackoff), maxSendBackoff)
				klog.V(2).InfoS("Replay frame not sent", "port", swPort, "err", err, "backoff", backoff)
				if !sleep(ctx, backoff) {
					klog.V(2).InfoS("Replay stopped", "port", swPort, "sent", sent)
					return
				}
				continue
			}
			backoff = 0
			sent++
		}
	}
	klog.V(2).InfoS("Replay finished", "port", swPort, "sent", sent)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ReplayDone returns a channel closed when the current replay on port
// ends, or nil when none was started.
func (s *Soft) ReplayDone(port int) <-chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return nil
	}
	return p.done
}

func (s *Soft) SetStopReplay(port int) error {
	s.lock.Lock()
	p, err := s.port(port)
	if err != nil {
		s.lock.Unlock()
		return err
	}
	stop, done := p.stop, p.done
	p.stop = nil
	s.lock.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	return nil
}

func (s *Soft) ResetReplay(port int) error {
	if err := s.SetStopReplay(port); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.port(port)
	if err != nil {
		return err
	}
	p.replayCnt = 1
	p.replayRate = rate.Inf
	return nil
}
