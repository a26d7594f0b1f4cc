package ofp4sw

import (
	"encoding"
	"errors"
	"sync"

	"github.com/jackyang74/oftest/ofp4"
	"k8s.io/klog/v2"
)

// Sender delivers a message to the controller.
type Sender interface {
	Send(msg *ofp4.Message) error
}

// maxReplyBody bounds the body of one multipart reply part, leaving room
// for the headers under the 16 bit message length.
const maxReplyBody = 0xff00

// Agent answers controller requests on behalf of a Pipeline.
type Agent struct {
	pipe *Pipeline

	lock   sync.Mutex
	sender Sender
}

func NewAgent(pipe *Pipeline) *Agent {
	return &Agent{pipe: pipe}
}

/*
Attach routes the pipeline's packet-in, flow-removed and port-status
events to sender as asynchronous messages with xid 0. Attaching nil
detaches.
*/
func (a *Agent) Attach(sender Sender) {
	a.lock.Lock()
	a.sender = sender
	a.lock.Unlock()
	if sender == nil {
		a.pipe.SetEvents(Events{})
		return
	}
	a.pipe.SetEvents(Events{
		PacketIn: func(pin ofp4.PacketIn) {
			a.async(ofp4.OFPT_PACKET_IN, &pin)
		},
		FlowRemoved: func(rem ofp4.FlowRemoved) {
			a.async(ofp4.OFPT_FLOW_REMOVED, &rem)
		},
		PortStatus: func(status ofp4.PortStatus) {
			a.async(ofp4.OFPT_PORT_STATUS, &status)
		},
	})
}

func (a *Agent) async(mtype uint8, body encoding.BinaryMarshaler) {
	a.lock.Lock()
	sender := a.sender
	a.lock.Unlock()
	if sender == nil {
		return
	}
	msg := &ofp4.Message{
		Header: ofp4.Header{Version: ofp4.OFP_VERSION, Type: mtype},
		Body:   body,
	}
	if err := sender.Send(msg); err != nil {
		klog.V(2).InfoS("Async message not sent", "type", mtype, "err", err)
	}
}

func reply(req *ofp4.Message, mtype uint8, body encoding.BinaryMarshaler) *ofp4.Message {
	return &ofp4.Message{
		Header: ofp4.Header{Version: ofp4.OFP_VERSION, Type: mtype, Xid: req.Xid},
		Body:   body,
	}
}

// errorReply answers req with err, which should wrap an ofp4.Error. The
// data field carries the head of the offending request.
func errorReply(req *ofp4.Message, err error) *ofp4.Message {
	var body ofp4.Error
	if !errors.As(err, &body) {
		body = ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_EPERM}
	}
	if buf, err := ofp4.Encode(req); err == nil {
		body.Data = ofp4.ErrorData(buf)
	}
	return reply(req, ofp4.OFPT_ERROR, &body)
}

// Handle processes one controller message and returns the replies.
func (a *Agent) Handle(msg *ofp4.Message) []*ofp4.Message {
	switch msg.Type {
	case ofp4.OFPT_HELLO, ofp4.OFPT_ERROR, ofp4.OFPT_ECHO_REPLY:
		return nil
	case ofp4.OFPT_ECHO_REQUEST:
		return []*ofp4.Message{reply(msg, ofp4.OFPT_ECHO_REPLY, msg.Body)}
	case ofp4.OFPT_FEATURES_REQUEST:
		features := a.pipe.Features()
		return []*ofp4.Message{reply(msg, ofp4.OFPT_FEATURES_REPLY, &features)}
	case ofp4.OFPT_GET_CONFIG_REQUEST:
		config := a.pipe.Config()
		return []*ofp4.Message{reply(msg, ofp4.OFPT_GET_CONFIG_REPLY, &config)}
	case ofp4.OFPT_SET_CONFIG:
		config, ok := msg.Body.(*ofp4.SwitchConfig)
		if !ok {
			return []*ofp4.Message{errorReply(msg, ErrBadRequestType)}
		}
		if err := a.pipe.SetConfig(*config); err != nil {
			return []*ofp4.Message{errorReply(msg, err)}
		}
		return nil
	case ofp4.OFPT_FLOW_MOD:
		req, ok := msg.Body.(*ofp4.FlowMod)
		if !ok {
			return []*ofp4.Message{errorReply(msg, ErrBadRequestType)}
		}
		if err := a.pipe.FlowMod(req); err != nil {
			klog.V(2).InfoS("Flow-mod rejected", "xid", msg.Xid, "err", err)
			return []*ofp4.Message{errorReply(msg, err)}
		}
		return nil
	case ofp4.OFPT_PACKET_OUT:
		req, ok := msg.Body.(*ofp4.PacketOut)
		if !ok {
			return []*ofp4.Message{errorReply(msg, ErrBadRequestType)}
		}
		if _, err := a.pipe.PacketOut(req); err != nil {
			return []*ofp4.Message{errorReply(msg, err)}
		}
		return nil
	case ofp4.OFPT_BARRIER_REQUEST:
		// requests are handled in order, so everything before is done
		return []*ofp4.Message{reply(msg, ofp4.OFPT_BARRIER_REPLY, nil)}
	case ofp4.OFPT_MULTIPART_REQUEST:
		req, ok := msg.Body.(*ofp4.MultipartRequest)
		if !ok {
			return []*ofp4.Message{errorReply(msg, ErrBadRequestType)}
		}
		replies, err := a.multipart(msg, req)
		if err != nil {
			return []*ofp4.Message{errorReply(msg, err)}
		}
		return replies
	case ofp4.OFPT_EXPERIMENTER:
		return []*ofp4.Message{errorReply(msg, ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BAD_EXPERIMENTER})}
	}
	return []*ofp4.Message{errorReply(msg, ErrBadRequestType)}
}

func (a *Agent) multipart(msg *ofp4.Message, req *ofp4.MultipartRequest) ([]*ofp4.Message, error) {
	single := func(body encoding.BinaryMarshaler) []*ofp4.Message {
		return []*ofp4.Message{reply(msg, ofp4.OFPT_MULTIPART_REPLY, &ofp4.MultipartReply{Type: req.Type, Body: body})}
	}
	switch req.Type {
	case ofp4.OFPMP_DESC:
		desc := a.pipe.Desc()
		return single(&desc), nil
	case ofp4.OFPMP_FLOW:
		freq, ok := req.Body.(*ofp4.FlowStatsRequest)
		if !ok {
			return nil, ErrBadMultipart
		}
		stats, err := a.pipe.FlowStats(freq)
		if err != nil {
			return nil, err
		}
		var elems []encoding.BinaryMarshaler
		for i := range stats {
			elems = append(elems, &stats[i])
		}
		return splitReply(msg, req.Type, elems)
	case ofp4.OFPMP_AGGREGATE:
		freq, ok := req.Body.(*ofp4.FlowStatsRequest)
		if !ok {
			return nil, ErrBadMultipart
		}
		agg, err := a.pipe.AggregateStats(freq)
		if err != nil {
			return nil, err
		}
		return single(&agg), nil
	case ofp4.OFPMP_TABLE:
		var elems ofp4.Array
		for _, s := range a.pipe.TableStats() {
			s := s
			elems = append(elems, &s)
		}
		return single(elems), nil
	case ofp4.OFPMP_PORT_STATS:
		preq, ok := req.Body.(*ofp4.PortStatsRequest)
		if !ok {
			return nil, ErrBadMultipart
		}
		stats, err := a.pipe.PortStats(preq.PortNo)
		if err != nil {
			return nil, err
		}
		var elems []encoding.BinaryMarshaler
		for i := range stats {
			elems = append(elems, &stats[i])
		}
		return splitReply(msg, req.Type, elems)
	case ofp4.OFPMP_PORT_DESC:
		var elems []encoding.BinaryMarshaler
		for _, p := range a.pipe.PortDesc() {
			p := p
			elems = append(elems, &p)
		}
		return splitReply(msg, req.Type, elems)
	}
	return nil, ErrBadMultipart
}

// splitReply packs elements into as many reply parts as needed, all but
// the last flagged REPLY_MORE.
func splitReply(req *ofp4.Message, mtype uint16, elems []encoding.BinaryMarshaler) ([]*ofp4.Message, error) {
	var parts []ofp4.Array
	var cur ofp4.Array
	size := 0
	for _, elem := range elems {
		buf, err := elem.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if size+len(buf) > maxReplyBody && len(cur) > 0 {
			parts = append(parts, cur)
			cur, size = nil, 0
		}
		cur = append(cur, elem)
		size += len(buf)
	}
	parts = append(parts, cur)

	var msgs []*ofp4.Message
	for i, part := range parts {
		var flags uint16
		if i < len(parts)-1 {
			flags = ofp4.OFPMPF_REPLY_MORE
		}
		msgs = append(msgs, reply(req, ofp4.OFPT_MULTIPART_REPLY, &ofp4.MultipartReply{Type: mtype, Flags: flags, Body: part}))
	}
	return msgs, nil
}
