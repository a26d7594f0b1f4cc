package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackyang74/oftest/ofp4"
	"k8s.io/klog/v2"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
	outcomeLost     = "lost"
	outcomeCanceled = "canceled"
)

// allocXid returns the next xid that is neither zero, pending nor
// tombstoned.
func (s *Session) allocXid() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.allocXidLocked()
}

func (s *Session) allocXidLocked() uint32 {
	for {
		xid := s.nextXid
		s.nextXid++
		if xid == 0 {
			continue
		}
		if _, ok := s.pending[xid]; ok {
			continue
		}
		if _, ok := s.tombstones[xid]; ok {
			continue
		}
		return xid
	}
}

// register reserves xid for a transaction, allocating one when xid is 0.
func (s *Session) register(xid uint32) (uint32, *slot, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.State() != Established {
		if s.State() == Closing || s.State() == Closed {
			return 0, nil, ErrConnectionLost
		}
		return 0, nil, ErrNotEstablished
	}
	if xid == 0 {
		xid = s.allocXidLocked()
	} else {
		if _, ok := s.pending[xid]; ok {
			return 0, nil, ErrXidInUse
		}
		if _, ok := s.tombstones[xid]; ok {
			return 0, nil, ErrXidInUse
		}
	}
	sl := &slot{done: make(chan result, 1)}
	s.pending[xid] = sl
	return xid, sl, nil
}

// abandon releases a slot whose caller gave up. The xid stays reserved
// until the late reply shows up. When the reply won the race it is
// returned instead.
func (s *Session) abandon(xid uint32, sl *slot) (result, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.pending[xid] == sl {
		delete(s.pending, xid)
		s.tombstones[xid] = struct{}{}
		return result{}, false
	}
	select {
	case r := <-sl.done:
		return r, true
	default:
		return result{}, false
	}
}

func (s *Session) release(xid uint32, sl *slot) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.pending[xid] == sl {
		delete(s.pending, xid)
	}
}

/*
Transact sends req and waits for the reply carrying the same xid. A zero
xid is allocated; the caller's message is not modified. Multipart replies
flagged REPLY_MORE are merged into one message. An OFPT_ERROR reply is
returned as an ofp4.Error. A timeout of zero waits on ctx alone.
*/
func (s *Session) Transact(ctx context.Context, req *ofp4.Message, timeout time.Duration) (*ofp4.Message, error) {
	xid, sl, err := s.register(req.Xid)
	if err != nil {
		return nil, err
	}
	msg := *req
	msg.Xid = xid
	if err := s.write(&msg); err != nil {
		s.release(xid, sl)
		s.opts.Observer.Transaction(req.Type, outcomeLost)
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var r result
	select {
	case r = <-sl.done:
	case <-expired:
		var ok bool
		if r, ok = s.abandon(xid, sl); !ok {
			klog.V(2).InfoS("Transaction timed out", "msg", msg, "timeout", timeout)
			s.opts.Observer.Transaction(req.Type, outcomeTimeout)
			return nil, ErrTimeout
		}
	case <-ctx.Done():
		var ok bool
		if r, ok = s.abandon(xid, sl); !ok {
			s.opts.Observer.Transaction(req.Type, outcomeCanceled)
			return nil, ctx.Err()
		}
	}
	switch {
	case r.err == ErrConnectionLost:
		s.opts.Observer.Transaction(req.Type, outcomeLost)
	case r.err != nil:
		s.opts.Observer.Transaction(req.Type, outcomeError)
	default:
		s.opts.Observer.Transaction(req.Type, outcomeOK)
	}
	return r.msg, r.err
}

// Barrier waits until the peer has processed every earlier request.
func (s *Session) Barrier(ctx context.Context, timeout time.Duration) error {
	reply, err := s.Transact(ctx, &ofp4.Message{Header: ofp4.Header{Type: ofp4.OFPT_BARRIER_REQUEST}}, timeout)
	if err != nil {
		return err
	}
	if reply.Type != ofp4.OFPT_BARRIER_REPLY {
		return fmt.Errorf("session: barrier answered with %s", ofp4.TypeName(reply.Type))
	}
	return nil
}
