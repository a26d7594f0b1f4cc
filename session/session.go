/*
Package session runs one OpenFlow control connection: hello negotiation,
request/reply transactions keyed by xid, and buffering of asynchronous
messages.

A Session owns a single read loop. Replies are matched to pending
transactions there; everything else goes to the Handler when one is set,
otherwise to the async buffer and the subscribers.
*/
package session

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/jackyang74/oftest/ofp4"
	"k8s.io/klog/v2"
)

type State int32

const (
	Connecting State = iota
	AwaitingHello
	Established
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case AwaitingHello:
		return "AwaitingHello"
	case Established:
		return "Established"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Handler receives inbound messages that are neither hello, echo request
// nor a reply to a pending transaction. It runs on the read loop, so it
// must not wait on Transact or Barrier.
type Handler func(s *Session, msg *ofp4.Message)

// Observer is notified of traffic and transaction outcomes.
type Observer interface {
	MessageIn(mtype uint8)
	MessageOut(mtype uint8)
	Transaction(mtype uint8, outcome string)
}

type nopObserver struct{}

func (nopObserver) MessageIn(uint8)           {}
func (nopObserver) MessageOut(uint8)          {}
func (nopObserver) Transaction(uint8, string) {}

const (
	defaultAsyncBuffer      = 1024
	defaultSubscriberBuffer = 64
)

type Options struct {
	// Versions advertised in hello. Defaults to OpenFlow 1.3 only.
	Versions []uint8
	Handler  Handler
	Observer Observer
	// AsyncBuffer bounds the messages kept for Poll; the oldest is
	// dropped on overflow.
	AsyncBuffer      int
	SubscriberBuffer int
}

type slot struct {
	done    chan result
	partial *ofp4.Message
}

type result struct {
	msg *ofp4.Message
	err error
}

type Session struct {
	conn io.ReadWriteCloser
	opts Options

	writeLock sync.Mutex
	state     atomic.Int32
	version   atomic.Uint32

	lock       sync.Mutex
	nextXid    uint32
	pending    map[uint32]*slot
	tombstones map[uint32]struct{}
	async      *deque.Deque
	wake       chan struct{}
	subs       []*Subscription

	negotiated chan error
	closeOnce  sync.Once
	done       chan struct{}
	readerDone chan struct{}
	started    atomic.Bool
}

func New(conn io.ReadWriteCloser, opts Options) *Session {
	if len(opts.Versions) == 0 {
		opts.Versions = []uint8{ofp4.OFP_VERSION}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.AsyncBuffer <= 0 {
		opts.AsyncBuffer = defaultAsyncBuffer
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Session{
		conn:       conn,
		opts:       opts,
		nextXid:    1,
		pending:    make(map[uint32]*slot),
		tombstones: make(map[uint32]struct{}),
		async:      deque.New(),
		wake:       make(chan struct{}),
		negotiated: make(chan error, 1),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Version is the negotiated protocol version, 0 before the handshake
// completes.
func (s *Session) Version() uint8 {
	return uint8(s.version.Load())
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) maxVersion() uint8 {
	var max uint8
	for _, v := range s.opts.Versions {
		if v > max {
			max = v
		}
	}
	return max
}

func (s *Session) supports(version uint8) bool {
	for _, v := range s.opts.Versions {
		if v == version {
			return true
		}
	}
	return false
}

/*
Handshake starts the read loop, sends hello and waits for the peer's
hello. On success the session is Established. When the versions do not
intersect the peer is told HELLO_FAILED/INCOMPATIBLE, the session closes
and ErrIncompatibleVersion is returned.
*/
func (s *Session) Handshake(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Connecting), int32(AwaitingHello)) {
		return fmt.Errorf("session: handshake in state %s", s.State())
	}
	s.started.Store(true)
	go s.readLoop()

	hello := &ofp4.Message{
		Header: ofp4.Header{Version: s.maxVersion(), Type: ofp4.OFPT_HELLO, Xid: s.allocXid()},
		Body:   ofp4.Array{ofp4.VersionBitmap(s.opts.Versions...)},
	}
	if err := s.write(hello); err != nil {
		s.shutdown()
		select {
		case nerr := <-s.negotiated:
			if nerr != nil {
				return nerr
			}
		default:
		}
		return err
	}
	select {
	case err := <-s.negotiated:
		return err
	case <-s.done:
		select {
		case err := <-s.negotiated:
			return err
		default:
			return ErrConnectionLost
		}
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

// negotiate picks the highest common version. A peer without a version
// bitmap is taken to support everything up to its header version.
func (s *Session) negotiate(hello *ofp4.Message) (uint8, bool) {
	if elements, ok := hello.Body.(ofp4.Array); ok {
		for _, elem := range elements {
			bitmap, ok := elem.(*ofp4.HelloElementVersionbitmap)
			if !ok {
				continue
			}
			var best uint8
			for _, v := range s.opts.Versions {
				if v > best && bitmap.Supports(v) {
					best = v
				}
			}
			return best, best != 0
		}
	}
	version := s.maxVersion()
	if hello.Version < version {
		version = hello.Version
	}
	return version, s.supports(version)
}

func (s *Session) onHello(msg *ofp4.Message) {
	if s.State() != AwaitingHello {
		return
	}
	version, ok := s.negotiate(msg)
	if !ok {
		klog.InfoS("Hello rejected, no common version", "peerVersion", msg.Version)
		failed := &ofp4.Message{
			Header: ofp4.Header{Version: s.maxVersion(), Type: ofp4.OFPT_ERROR, Xid: msg.Xid},
			Body:   &ofp4.Error{Type: ofp4.OFPET_HELLO_FAILED, Code: ofp4.OFPHFC_INCOMPATIBLE},
		}
		s.state.Store(int32(Closing))
		if err := s.write(failed); err != nil {
			klog.V(2).InfoS("Hello failure not sent", "err", err)
		}
		s.negotiated <- ErrIncompatibleVersion
		s.shutdown()
		return
	}
	s.version.Store(uint32(version))
	s.state.Store(int32(Established))
	klog.V(2).InfoS("Session established", "version", version)
	s.negotiated <- nil
}

// Send writes msg without waiting for a reply. A zero version is filled
// with the negotiated one.
func (s *Session) Send(msg *ofp4.Message) error {
	switch s.State() {
	case Established:
	case Closing, Closed:
		return ErrConnectionLost
	default:
		return ErrNotEstablished
	}
	return s.write(msg)
}

func (s *Session) write(msg *ofp4.Message) error {
	if msg.Version == 0 {
		m := *msg
		m.Version = s.Version()
		msg = &m
	}
	data, err := ofp4.Encode(msg)
	if err != nil {
		return err
	}
	s.writeLock.Lock()
	_, err = s.conn.Write(data)
	s.writeLock.Unlock()
	if err != nil {
		s.shutdown()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	s.opts.Observer.MessageOut(msg.Type)
	return nil
}

// readFrame reads one message worth of bytes. A declared length below
// the header size cannot be resynchronized and is fatal.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < 8 {
		return nil, fmt.Errorf("session: declared length %d", length)
	}
	data := make([]byte, length)
	copy(data, header)
	if _, err := io.ReadFull(r, data[8:]); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer s.shutdown()

	r := bufio.NewReader(s.conn)
	for {
		data, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.State() != Closed {
				klog.V(2).InfoS("Session read failed", "err", err)
			}
			return
		}
		msg, err := ofp4.Decode(data)
		if err != nil {
			s.rejectInbound(data, err)
			continue
		}
		s.opts.Observer.MessageIn(msg.Type)
		s.dispatch(msg)
	}
}

// rejectInbound answers an undecodable message with an error carrying
// its xid. Undecodable errors are only logged.
func (s *Session) rejectInbound(data []byte, err error) {
	var derr *ofp4.DecodeError
	if !errors.As(err, &derr) {
		klog.ErrorS(err, "Inbound message dropped")
		return
	}
	klog.V(2).InfoS("Inbound message rejected", "type", derr.Type, "xid", derr.Xid, "kind", derr.Kind)
	if derr.Type == ofp4.OFPT_ERROR {
		return
	}
	body := derr.Reply()
	body.Data = ofp4.ErrorData(data)
	version := s.Version()
	if version == 0 {
		version = s.maxVersion()
	}
	reply := &ofp4.Message{
		Header: ofp4.Header{Version: version, Type: ofp4.OFPT_ERROR, Xid: derr.Xid},
		Body:   &body,
	}
	if err := s.write(reply); err != nil {
		klog.V(2).InfoS("Error reply not sent", "xid", derr.Xid, "err", err)
	}
}

func isReply(mtype uint8) bool {
	switch mtype {
	case ofp4.OFPT_ERROR,
		ofp4.OFPT_ECHO_REPLY,
		ofp4.OFPT_FEATURES_REPLY,
		ofp4.OFPT_GET_CONFIG_REPLY,
		ofp4.OFPT_MULTIPART_REPLY,
		ofp4.OFPT_BARRIER_REPLY:
		return true
	}
	return false
}

func (s *Session) dispatch(msg *ofp4.Message) {
	if msg.Type == ofp4.OFPT_HELLO {
		s.onHello(msg)
		return
	}
	if s.State() != Established {
		klog.V(2).InfoS("Message before hello dropped", "msg", msg)
		return
	}
	if msg.Type == ofp4.OFPT_ECHO_REQUEST {
		echo := &ofp4.Message{
			Header: ofp4.Header{Version: msg.Version, Type: ofp4.OFPT_ECHO_REPLY, Xid: msg.Xid},
			Body:   msg.Body,
		}
		if err := s.write(echo); err != nil {
			klog.V(2).InfoS("Echo reply not sent", "xid", msg.Xid, "err", err)
		}
		return
	}
	if isReply(msg.Type) && s.complete(msg) {
		return
	}
	if s.opts.Handler != nil {
		s.opts.Handler(s, msg)
		return
	}
	s.pushAsync(msg)
}

// complete hands a reply to its pending transaction. It reports whether
// the message was consumed, which includes late replies to abandoned
// transactions.
func (s *Session) complete(msg *ofp4.Message) bool {
	more := false
	if part, ok := msg.Body.(*ofp4.MultipartReply); ok && msg.Type == ofp4.OFPT_MULTIPART_REPLY {
		more = part.Flags&ofp4.OFPMPF_REPLY_MORE != 0
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.tombstones[msg.Xid]; ok {
		if !more {
			delete(s.tombstones, msg.Xid)
		}
		klog.V(4).InfoS("Late reply discarded", "msg", msg)
		return true
	}
	sl, ok := s.pending[msg.Xid]
	if !ok {
		return false
	}
	if msg.Type == ofp4.OFPT_ERROR {
		delete(s.pending, msg.Xid)
		err := errMalformedError
		if body, ok := msg.Body.(*ofp4.Error); ok {
			err = *body
		}
		sl.done <- result{err: err}
		return true
	}
	if msg.Type == ofp4.OFPT_MULTIPART_REPLY {
		part := msg.Body.(*ofp4.MultipartReply)
		if sl.partial == nil {
			sl.partial = msg
		} else if err := sl.partial.Body.(*ofp4.MultipartReply).Append(*part); err != nil {
			delete(s.pending, msg.Xid)
			sl.done <- result{err: err}
			return true
		}
		if more {
			return true
		}
		msg = sl.partial
	}
	delete(s.pending, msg.Xid)
	sl.done <- result{msg: msg}
	return true
}

// Close shuts the connection down and waits for the read loop to exit.
func (s *Session) Close() error {
	s.shutdown()
	if s.started.Load() {
		<-s.readerDone
	}
	return nil
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))
		if err := s.conn.Close(); err != nil {
			klog.V(4).InfoS("Connection close failed", "err", err)
		}

		s.lock.Lock()
		pending := s.pending
		s.pending = make(map[uint32]*slot)
		subs := s.subs
		s.subs = nil
		s.state.Store(int32(Closed))
		close(s.wake)
		s.lock.Unlock()

		for _, sl := range pending {
			sl.done <- result{err: ErrConnectionLost}
		}
		for _, sub := range subs {
			sub.finish(ErrConnectionLost)
		}
		close(s.done)
	})
}
