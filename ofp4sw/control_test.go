package ofp4sw

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
)

type senderFunc func(*ofp4.Message) error

func (f senderFunc) Send(msg *ofp4.Message) error { return f(msg) }

func request(xid uint32, mtype uint8, body interface {
	MarshalBinary() ([]byte, error)
}) *ofp4.Message {
	return &ofp4.Message{Header: ofp4.Header{Version: ofp4.OFP_VERSION, Type: mtype, Xid: xid}, Body: body}
}

func singleReply(t *testing.T, replies []*ofp4.Message, xid uint32, mtype uint8) *ofp4.Message {
	t.Helper()
	require.Len(t, replies, 1)
	assert.Equal(t, xid, replies[0].Xid)
	assert.Equal(t, mtype, replies[0].Type)
	return replies[0]
}

func TestAgentBasics(t *testing.T) {
	sw := newTestSwitch(t, Options{DatapathId: 42, NumTables: 2, Desc: ofp4.Desc{MfrDesc: "oftest"}}, 1)
	agent := NewAgent(sw.pipe)

	assert.Nil(t, agent.Handle(request(1, ofp4.OFPT_HELLO, nil)))

	echo := singleReply(t, agent.Handle(request(2, ofp4.OFPT_ECHO_REQUEST, ofp4.Bytes("ping"))), 2, ofp4.OFPT_ECHO_REPLY)
	assert.Equal(t, ofp4.Bytes("ping"), echo.Body)

	features := singleReply(t, agent.Handle(request(3, ofp4.OFPT_FEATURES_REQUEST, nil)), 3, ofp4.OFPT_FEATURES_REPLY)
	assert.Equal(t, uint64(42), features.Body.(*ofp4.SwitchFeatures).DatapathId)

	assert.Nil(t, agent.Handle(request(4, ofp4.OFPT_SET_CONFIG, &ofp4.SwitchConfig{MissSendLen: 200})))
	config := singleReply(t, agent.Handle(request(5, ofp4.OFPT_GET_CONFIG_REQUEST, nil)), 5, ofp4.OFPT_GET_CONFIG_REPLY)
	assert.Equal(t, &ofp4.SwitchConfig{MissSendLen: 200}, config.Body)

	singleReply(t, agent.Handle(request(6, ofp4.OFPT_BARRIER_REQUEST, nil)), 6, ofp4.OFPT_BARRIER_REPLY)

	desc := singleReply(t, agent.Handle(request(7, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: ofp4.OFPMP_DESC})), 7, ofp4.OFPT_MULTIPART_REPLY)
	assert.Equal(t, &ofp4.MultipartReply{Type: ofp4.OFPMP_DESC, Body: &ofp4.Desc{MfrDesc: "oftest"}}, desc.Body)
}

func TestAgentErrors(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1)
	agent := NewAgent(sw.pipe)

	bad := request(9, ofp4.OFPT_FLOW_MOD, flowAdd(1, ofp4.NewMatch(), applyActions(output(7))))
	encoded, err := ofp4.Encode(bad)
	require.NoError(t, err)
	reply := singleReply(t, agent.Handle(bad), 9, ofp4.OFPT_ERROR)
	assert.Equal(t, &ofp4.Error{
		Type: ofp4.OFPET_BAD_ACTION,
		Code: ofp4.OFPBAC_BAD_OUT_PORT,
		Data: encoded[:64],
	}, reply.Body)

	reply = singleReply(t, agent.Handle(request(10, ofp4.OFPT_SET_CONFIG, &ofp4.SwitchConfig{Flags: 0x80})), 10, ofp4.OFPT_ERROR)
	assert.True(t, ErrBadConfigFlags.Is(*reply.Body.(*ofp4.Error)))

	reply = singleReply(t, agent.Handle(request(11, ofp4.OFPT_EXPERIMENTER, &ofp4.Experimenter{Experimenter: 1})), 11, ofp4.OFPT_ERROR)
	assert.Equal(t, uint16(ofp4.OFPBRC_BAD_EXPERIMENTER), reply.Body.(*ofp4.Error).Code)

	reply = singleReply(t, agent.Handle(request(12, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: ofp4.OFPMP_GROUP_DESC})), 12, ofp4.OFPT_ERROR)
	assert.True(t, ErrBadMultipart.Is(*reply.Body.(*ofp4.Error)))

	reply = singleReply(t, agent.Handle(request(13, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{
		Type: ofp4.OFPMP_PORT_STATS,
		Body: &ofp4.PortStatsRequest{PortNo: 77},
	})), 13, ofp4.OFPT_ERROR)
	assert.True(t, ErrBadPort.Is(*reply.Body.(*ofp4.Error)))

	assert.Nil(t, agent.Handle(request(14, ofp4.OFPT_PACKET_OUT, &ofp4.PacketOut{
		BufferId: ofp4.OFP_NO_BUFFER,
		InPort:   ofp4.OFPP_CONTROLLER,
		Actions:  []ofp4.Action{output(1)},
		Data:     tcpPacket(t, 100),
	})))
}

func TestAgentStats(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	agent := NewAgent(sw.pipe)
	assert.Nil(t, agent.Handle(request(1, ofp4.OFPT_FLOW_MOD, flowAdd(3, ofp4.NewMatch(inPort(1)), applyActions(output(2))))))
	sw.pipe.Process(1, tcpPacket(t, 100))

	flowReq := &ofp4.FlowStatsRequest{TableId: ofp4.OFPTT_ALL, OutPort: ofp4.OFPP_ANY, OutGroup: ofp4.OFPG_ANY, Match: ofp4.NewMatch()}
	reply := singleReply(t, agent.Handle(request(2, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: ofp4.OFPMP_FLOW, Body: flowReq})), 2, ofp4.OFPT_MULTIPART_REPLY)
	body := reply.Body.(*ofp4.MultipartReply)
	assert.Equal(t, uint16(0), body.Flags)
	flows := body.Body.(ofp4.Array)
	require.Len(t, flows, 1)
	assert.Equal(t, uint64(1), flows[0].(*ofp4.FlowStats).PacketCount)

	reply = singleReply(t, agent.Handle(request(3, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: ofp4.OFPMP_AGGREGATE, Body: flowReq})), 3, ofp4.OFPT_MULTIPART_REPLY)
	assert.Equal(t, &ofp4.AggregateStatsReply{PacketCount: 1, ByteCount: 100, FlowCount: 1}, reply.Body.(*ofp4.MultipartReply).Body)

	reply = singleReply(t, agent.Handle(request(4, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: ofp4.OFPMP_TABLE})), 4, ofp4.OFPT_MULTIPART_REPLY)
	tables := reply.Body.(*ofp4.MultipartReply).Body.(ofp4.Array)
	require.Len(t, tables, 1)
	assert.Equal(t, uint32(1), tables[0].(*ofp4.TableStats).ActiveCount)

	reply = singleReply(t, agent.Handle(request(5, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{
		Type: ofp4.OFPMP_PORT_STATS,
		Body: &ofp4.PortStatsRequest{PortNo: ofp4.OFPP_ANY},
	})), 5, ofp4.OFPT_MULTIPART_REPLY)
	ports := reply.Body.(*ofp4.MultipartReply).Body.(ofp4.Array)
	require.Len(t, ports, 2)
	assert.Equal(t, uint64(1), ports[0].(*ofp4.PortStats).RxPackets)
	assert.Equal(t, uint64(1), ports[1].(*ofp4.PortStats).TxPackets)

	reply = singleReply(t, agent.Handle(request(6, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: ofp4.OFPMP_PORT_DESC})), 6, ofp4.OFPT_MULTIPART_REPLY)
	descs := reply.Body.(*ofp4.MultipartReply).Body.(ofp4.Array)
	require.Len(t, descs, 2)
	assert.Equal(t, "p2", descs[1].(*ofp4.Port).Name)
}

func TestAgentSplitsLargeReplies(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1)
	for i := 0; i < 1500; i++ {
		sw.flowMod(t, flowAdd(uint16(i), ofp4.NewMatch(inPort(uint32(i+1))), applyActions(output(1))))
	}
	agent := NewAgent(sw.pipe)
	replies := agent.Handle(request(8, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{
		Type: ofp4.OFPMP_FLOW,
		Body: &ofp4.FlowStatsRequest{TableId: ofp4.OFPTT_ALL, OutPort: ofp4.OFPP_ANY, OutGroup: ofp4.OFPG_ANY, Match: ofp4.NewMatch()},
	}))
	require.Greater(t, len(replies), 1)

	var merged *ofp4.MultipartReply
	for i, msg := range replies {
		assert.Equal(t, uint32(8), msg.Xid)
		data, err := ofp4.Encode(msg)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), 0xffff)

		decoded, err := ofp4.Decode(data)
		require.NoError(t, err)
		part := decoded.Body.(*ofp4.MultipartReply)
		more := part.Flags&ofp4.OFPMPF_REPLY_MORE != 0
		assert.Equal(t, i < len(replies)-1, more, "part %d", i)
		if merged == nil {
			merged = part
		} else {
			require.NoError(t, merged.Append(*part))
		}
	}
	flows := merged.Body.(ofp4.Array)
	require.Len(t, flows, 1500)
	assert.Equal(t, uint16(1499), flows[0].(*ofp4.FlowStats).Priority)
	assert.Equal(t, uint16(0), flows[1499].(*ofp4.FlowStats).Priority)
}

func TestAgentAsync(t *testing.T) {
	sw := newTestSwitch(t, Options{MissPolicy: MissController, MissSendLen: 64})
	agent := NewAgent(sw.pipe)

	var lock sync.Mutex
	var sent []*ofp4.Message
	agent.Attach(senderFunc(func(msg *ofp4.Message) error {
		lock.Lock()
		defer lock.Unlock()
		sent = append(sent, msg)
		return nil
	}))

	require.NoError(t, sw.pipe.AddPort(1, PortState{Name: "p1"}))
	req := flowAdd(1, ofp4.NewMatch(inPort(2)))
	req.Flags = ofp4.OFPFF_SEND_FLOW_REM
	req.HardTimeout = 1
	assert.Nil(t, agent.Handle(request(1, ofp4.OFPT_FLOW_MOD, req)))
	sw.pipe.Process(1, tcpPacket(t, 100))
	sw.clock.Advance(time.Second)
	sw.pipe.Expire(sw.clock.Now())

	lock.Lock()
	var types []uint8
	for _, msg := range sent {
		assert.Equal(t, uint32(0), msg.Xid)
		types = append(types, msg.Type)
	}
	lock.Unlock()
	assert.Equal(t, []uint8{ofp4.OFPT_PORT_STATUS, ofp4.OFPT_PACKET_IN, ofp4.OFPT_FLOW_REMOVED}, types)
	pin := sent[1].Body.(*ofp4.PacketIn)
	assert.Len(t, pin.Data, 64)
	assert.Equal(t, uint16(100), pin.TotalLen)

	agent.Attach(nil)
	sw.pipe.Process(1, tcpPacket(t, 100))
	assert.Len(t, sent, 3)
}
