package session

import (
	"context"
	"sync"
	"time"

	"github.com/jackyang74/oftest/ofp4"
	"k8s.io/klog/v2"
)

func typeMatches(msg *ofp4.Message, types []uint8) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if msg.Type == t {
			return true
		}
	}
	return false
}

func (s *Session) pushAsync(msg *ofp4.Message) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.State() == Closed {
		return
	}
	for s.async.Len() >= s.opts.AsyncBuffer {
		dropped := s.async.PopFront().(*ofp4.Message)
		klog.V(2).InfoS("Async buffer full, dropping oldest", "msg", dropped)
	}
	s.async.PushBack(msg)
	close(s.wake)
	s.wake = make(chan struct{})

	for _, sub := range s.subs {
		sub.deliver(msg)
	}
}

// takeAsync removes and returns the oldest buffered message of one of
// types. The caller holds the lock.
func (s *Session) takeAsync(types []uint8) *ofp4.Message {
	idx := -1
	for i := 0; i < s.async.Len(); i++ {
		if typeMatches(s.async.At(i).(*ofp4.Message), types) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var found *ofp4.Message
	n := s.async.Len()
	for i := 0; i < n; i++ {
		msg := s.async.PopFront().(*ofp4.Message)
		if i == idx {
			found = msg
			continue
		}
		s.async.PushBack(msg)
	}
	return found
}

/*
Poll returns the oldest buffered asynchronous message whose type is one
of types, or any message when types is empty. It returns nil, nil when
nothing arrives within timeout, and ErrConnectionLost once the session
is closed with nothing left to match.
*/
func (s *Session) Poll(ctx context.Context, timeout time.Duration, types ...uint8) (*ofp4.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		s.lock.Lock()
		if msg := s.takeAsync(types); msg != nil {
			s.lock.Unlock()
			return msg, nil
		}
		if s.State() == Closed {
			s.lock.Unlock()
			return nil, ErrConnectionLost
		}
		wake := s.wake
		s.lock.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Subscription receives a copy of every asynchronous message of the
// subscribed types. Messages are dropped when the subscriber falls
// behind.
type Subscription struct {
	types []uint8
	ch    chan *ofp4.Message

	once sync.Once
	lock sync.Mutex
	err  error
}

func (sub *Subscription) C() <-chan *ofp4.Message {
	return sub.ch
}

// Err reports why the channel was closed, nil while it is open or after
// Unsubscribe.
func (sub *Subscription) Err() error {
	sub.lock.Lock()
	defer sub.lock.Unlock()
	return sub.err
}

func (sub *Subscription) deliver(msg *ofp4.Message) {
	if !typeMatches(msg, sub.types) {
		return
	}
	select {
	case sub.ch <- msg:
	default:
		klog.V(2).InfoS("Subscriber behind, message dropped", "msg", msg)
	}
}

func (sub *Subscription) finish(err error) {
	sub.once.Do(func() {
		sub.lock.Lock()
		sub.err = err
		sub.lock.Unlock()
		close(sub.ch)
	})
}

// Subscribe fans asynchronous messages out to a new subscription. On a
// closed session the subscription is returned already finished.
func (s *Session) Subscribe(types ...uint8) *Subscription {
	sub := &Subscription{
		types: append([]uint8(nil), types...),
		ch:    make(chan *ofp4.Message, s.opts.SubscriberBuffer),
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.State() == Closed {
		sub.finish(ErrConnectionLost)
		return sub
	}
	s.subs = append(s.subs, sub)
	return sub
}

func (s *Session) Unsubscribe(sub *Subscription) {
	s.lock.Lock()
	for i, other := range s.subs {
		if other == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	s.lock.Unlock()
	sub.finish(nil)
}
