package ofp4sw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/oxm"
)

type recorder struct {
	lock        sync.Mutex
	packetIns   []ofp4.PacketIn
	flowRemoved []ofp4.FlowRemoved
	portStatus  []ofp4.PortStatus
}

func (r *recorder) events() Events {
	return Events{
		PacketIn: func(pin ofp4.PacketIn) {
			r.lock.Lock()
			defer r.lock.Unlock()
			r.packetIns = append(r.packetIns, pin)
		},
		FlowRemoved: func(rem ofp4.FlowRemoved) {
			r.lock.Lock()
			defer r.lock.Unlock()
			r.flowRemoved = append(r.flowRemoved, rem)
		},
		PortStatus: func(status ofp4.PortStatus) {
			r.lock.Lock()
			defer r.lock.Unlock()
			r.portStatus = append(r.portStatus, status)
		},
	}
}

type testSwitch struct {
	pipe  *Pipeline
	dp    *ChannelDataplane
	clock *fakeClock
	rec   *recorder
}

func newTestSwitch(t *testing.T, opts Options, ports ...uint32) *testSwitch {
	t.Helper()
	sw := &testSwitch{
		dp:    NewChannelDataplane(64),
		clock: newFakeClock(),
		rec:   &recorder{},
	}
	opts.Now = sw.clock.Now
	sw.pipe = NewPipeline(opts, sw.dp)
	sw.pipe.SetEvents(sw.rec.events())
	for _, no := range ports {
		require.NoError(t, sw.pipe.AddPort(no, PortState{Name: fmt.Sprintf("p%d", no)}))
	}
	return sw
}

func (sw *testSwitch) flowMod(t *testing.T, req *ofp4.FlowMod) {
	t.Helper()
	require.NoError(t, sw.pipe.FlowMod(req))
}

// sent drains the frames the switch transmitted.
func (sw *testSwitch) sent() []Packet {
	var pkts []Packet
	for {
		select {
		case pkt := <-sw.dp.Out:
			pkts = append(pkts, pkt)
		default:
			return pkts
		}
	}
}

func TestForward(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	sw.flowMod(t, flowAdd(10, ofp4.NewMatch(inPort(1)), applyActions(output(2))))

	data := tcpPacket(t, 100)
	trace := sw.pipe.Process(1, data)
	assert.Equal(t, []uint8{0}, trace.Tables)
	require.Len(t, trace.Outputs, 1)
	assert.Equal(t, uint32(2), trace.Outputs[0].Port)

	sent := sw.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, Packet{Port: 2, Data: data}, sent[0])

	rx, ok := sw.pipe.PortCounters(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rx.RxPackets)
	assert.Equal(t, uint64(100), rx.RxBytes)
	tx, _ := sw.pipe.PortCounters(2)
	assert.Equal(t, uint64(1), tx.TxPackets)
	assert.Equal(t, uint64(100), tx.TxBytes)

	stats, err := sw.pipe.FlowStats(&ofp4.FlowStatsRequest{TableId: ofp4.OFPTT_ALL, OutPort: ofp4.OFPP_ANY, OutGroup: ofp4.OFPG_ANY, Match: ofp4.NewMatch()})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].PacketCount)
	assert.Equal(t, uint64(100), stats[0].ByteCount)

	agg, err := sw.pipe.AggregateStats(&ofp4.FlowStatsRequest{TableId: 0, OutPort: ofp4.OFPP_ANY, OutGroup: ofp4.OFPG_ANY, Match: ofp4.NewMatch()})
	require.NoError(t, err)
	assert.Equal(t, ofp4.AggregateStatsReply{PacketCount: 1, ByteCount: 100, FlowCount: 1}, agg)
}

func TestControllerMaxLen(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	req := flowAdd(10, ofp4.NewMatch(inPort(1)), applyActions(&ofp4.ActionOutput{Port: ofp4.OFPP_CONTROLLER, MaxLen: 100}))
	req.Cookie = 0x55
	sw.flowMod(t, req)

	sw.pipe.Process(1, tcpPacket(t, 700))
	require.Len(t, sw.rec.packetIns, 1)
	pin := sw.rec.packetIns[0]
	assert.Equal(t, uint16(700), pin.TotalLen)
	assert.Len(t, pin.Data, 100)
	assert.Equal(t, uint8(ofp4.OFPR_ACTION), pin.Reason)
	assert.Equal(t, uint64(0x55), pin.Cookie)
	assert.Equal(t, uint8(0), pin.TableId)
	assert.Equal(t, uint32(ofp4.OFP_NO_BUFFER), pin.BufferId)
	assert.Equal(t, ofp4.NewMatch(inPort(1)), pin.Match)
	assert.Empty(t, sw.sent())
}

func TestMissPolicy(t *testing.T) {
	sw := newTestSwitch(t, Options{MissPolicy: MissController, MissSendLen: 128}, 1, 2)
	trace := sw.pipe.Process(1, tcpPacket(t, 300))
	assert.Equal(t, []*FlowEntry{nil}, trace.Entries)
	require.Len(t, sw.rec.packetIns, 1)
	pin := sw.rec.packetIns[0]
	assert.Equal(t, uint8(ofp4.OFPR_NO_MATCH), pin.Reason)
	assert.Len(t, pin.Data, 128)
	assert.Equal(t, uint16(300), pin.TotalLen)
	assert.Equal(t, ^uint64(0), pin.Cookie)

	sw.pipe.SetMissPolicy(0, MissDrop)
	trace = sw.pipe.Process(1, tcpPacket(t, 300))
	assert.Empty(t, trace.PacketIns)
	assert.Empty(t, trace.Outputs)
	assert.Len(t, sw.rec.packetIns, 1)
	assert.Equal(t, "drop", MissDrop.String())
}

func TestTableMissEntry(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1)
	sw.flowMod(t, flowAdd(0, ofp4.NewMatch(), applyActions(output(ofp4.OFPP_CONTROLLER))))
	sw.pipe.Process(1, tcpPacket(t, 100))
	require.Len(t, sw.rec.packetIns, 1)
	assert.Equal(t, uint8(ofp4.OFPR_NO_MATCH), sw.rec.packetIns[0].Reason)
	assert.Len(t, sw.rec.packetIns[0].Data, 100)
}

func TestGotoTable(t *testing.T) {
	sw := newTestSwitch(t, Options{NumTables: 3}, 1, 2, 3)
	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(),
		writeActions(output(3)),
		&ofp4.InstructionWriteMetadata{Metadata: 7, MetadataMask: 0xff},
		&ofp4.InstructionGotoTable{TableId: 2},
	))
	table2 := flowAdd(1, ofp4.NewMatch(oxm.New(oxm.OFPXMT_OFB_METADATA, be64(7), nil)),
		writeActions(output(2)),
	)
	table2.TableId = 2
	sw.flowMod(t, table2)

	trace := sw.pipe.Process(1, tcpPacket(t, 100))
	assert.Equal(t, []uint8{0, 2}, trace.Tables)
	require.Len(t, trace.Outputs, 1)
	assert.Equal(t, uint32(2), trace.Outputs[0].Port)

	stats := sw.pipe.TableStats()
	require.Len(t, stats, 3)
	assert.Equal(t, uint64(1), stats[0].LookupCount)
	assert.Equal(t, uint64(0), stats[1].LookupCount)
	assert.Equal(t, uint64(1), stats[2].MatchedCount)
}

func TestGotoBeyondLastTable(t *testing.T) {
	sw := newTestSwitch(t, Options{NumTables: 2}, 1)
	err := sw.pipe.FlowMod(flowAdd(1, ofp4.NewMatch(), &ofp4.InstructionGotoTable{TableId: 2}))
	assert.True(t, errors.Is(err, ErrBadGotoTable))
}

func TestFlood(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2, 3)
	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(), applyActions(output(ofp4.OFPP_FLOOD))))
	sw.pipe.Process(2, tcpPacket(t, 100))

	var ports []uint32
	for _, pkt := range sw.sent() {
		ports = append(ports, pkt.Port)
	}
	assert.Equal(t, []uint32{1, 3}, ports)
}

func TestInPortOutput(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(), applyActions(output(ofp4.OFPP_IN_PORT))))
	sw.pipe.Process(2, tcpPacket(t, 100))
	sent := sw.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint32(2), sent[0].Port)
}

func TestPortConfig(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(), applyActions(output(2))))

	require.NoError(t, sw.pipe.SetPortConfig(2, ofp4.OFPPC_NO_FWD, ofp4.OFPPC_NO_FWD))
	sw.pipe.Process(1, tcpPacket(t, 100))
	assert.Empty(t, sw.sent())
	tx, _ := sw.pipe.PortCounters(2)
	assert.Equal(t, uint64(1), tx.TxDropped)

	require.NoError(t, sw.pipe.SetPortConfig(1, ofp4.OFPPC_NO_RECV, ofp4.OFPPC_NO_RECV))
	trace := sw.pipe.Process(1, tcpPacket(t, 100))
	assert.True(t, trace.Dropped)
	rx, _ := sw.pipe.PortCounters(1)
	assert.Equal(t, uint64(1), rx.RxDropped)
	assert.Equal(t, uint64(1), rx.RxPackets)

	require.NoError(t, sw.pipe.SetLinkDown(2, true))
	desc := sw.pipe.PortDesc()
	require.Len(t, desc, 2)
	assert.Equal(t, uint32(ofp4.OFPPS_LINK_DOWN), desc[1].State)
	assert.Equal(t, uint32(ofp4.OFPPS_LIVE), desc[0].State&ofp4.OFPPS_LIVE)

	var reasons []uint8
	for _, status := range sw.rec.portStatus {
		reasons = append(reasons, status.Reason)
	}
	assert.Equal(t, []uint8{ofp4.OFPPR_ADD, ofp4.OFPPR_ADD, ofp4.OFPPR_MODIFY, ofp4.OFPPR_MODIFY, ofp4.OFPPR_MODIFY}, reasons)
}

func TestPorts(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1)
	assert.Error(t, sw.pipe.AddPort(1, PortState{}))
	assert.True(t, errors.Is(sw.pipe.AddPort(0, PortState{}), ErrBadPort))
	assert.True(t, errors.Is(sw.pipe.RemovePort(5), ErrBadPort))

	_, err := sw.pipe.PortStats(5)
	assert.True(t, errors.Is(err, ErrBadPort))

	require.NoError(t, sw.pipe.AddPort(3, PortState{Name: "p3"}))
	sw.clock.Advance(2 * time.Second)
	stats, err := sw.pipe.PortStats(ofp4.OFPP_ANY)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, uint32(1), stats[0].PortNo)
	assert.Equal(t, uint32(3), stats[1].PortNo)
	assert.Equal(t, uint32(2), stats[1].DurationSec)

	require.NoError(t, sw.pipe.RemovePort(1))
	assert.Len(t, sw.pipe.PortDesc(), 1)
	last := sw.rec.portStatus[len(sw.rec.portStatus)-1]
	assert.Equal(t, uint8(ofp4.OFPPR_DELETE), last.Reason)
	assert.Equal(t, uint32(1), last.Desc.PortNo)
}

func TestFlowModTables(t *testing.T) {
	sw := newTestSwitch(t, Options{NumTables: 2}, 1, 2)

	bad := flowAdd(1, ofp4.NewMatch())
	bad.TableId = 2
	assert.True(t, errors.Is(sw.pipe.FlowMod(bad), ErrBadTableId))

	bad.TableId = ofp4.OFPTT_ALL
	assert.True(t, errors.Is(sw.pipe.FlowMod(bad), ErrBadTableId))

	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(inPort(1))))
	other := flowAdd(1, ofp4.NewMatch(inPort(2)))
	other.TableId = 1
	other.Flags = ofp4.OFPFF_SEND_FLOW_REM
	sw.flowMod(t, other)
	assert.Equal(t, 1, sw.pipe.Table(1).Len())

	del := &ofp4.FlowMod{
		Command:  ofp4.OFPFC_DELETE,
		TableId:  ofp4.OFPTT_ALL,
		BufferId: ofp4.OFP_NO_BUFFER,
		OutPort:  ofp4.OFPP_ANY,
		OutGroup: ofp4.OFPG_ANY,
		Match:    ofp4.NewMatch(),
	}
	sw.flowMod(t, del)
	assert.Equal(t, 0, sw.pipe.Table(0).Len())
	assert.Equal(t, 0, sw.pipe.Table(1).Len())
	require.Len(t, sw.rec.flowRemoved, 1, "only flows asking for it are reported")
	assert.Equal(t, uint8(ofp4.OFPRR_DELETE), sw.rec.flowRemoved[0].Reason)
	assert.Equal(t, uint8(1), sw.rec.flowRemoved[0].TableId)

	assert.Panics(t, func() { sw.pipe.Table(2) })
}

func TestFlowModBuffer(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1)
	req := flowAdd(1, ofp4.NewMatch())
	req.BufferId = 7
	assert.True(t, errors.Is(sw.pipe.FlowMod(req), ErrBufferUnknown))
	assert.Equal(t, 1, sw.pipe.Table(0).Len(), "the flow is installed regardless")
}

func TestExpire(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1)
	req := flowAdd(15, ofp4.NewMatch(inPort(1)))
	req.HardTimeout = 1
	req.Flags = ofp4.OFPFF_SEND_FLOW_REM
	sw.flowMod(t, req)
	start := sw.clock.Now()

	assert.Empty(t, sw.pipe.Expire(start.Add(500*time.Millisecond)))
	removed := sw.pipe.Expire(start.Add(time.Second))
	require.Len(t, removed, 1)
	require.Len(t, sw.rec.flowRemoved, 1)
	rem := sw.rec.flowRemoved[0]
	assert.Equal(t, uint8(ofp4.OFPRR_HARD_TIMEOUT), rem.Reason)
	assert.Equal(t, uint32(1), rem.DurationSec)
}

func TestInvalidTTL(t *testing.T) {
	dec := flowAdd(1, ofp4.NewMatch(), applyActions(&ofp4.ActionGeneric{Type: ofp4.OFPAT_DEC_NW_TTL}, output(2)))

	sw := newTestSwitch(t, Options{}, 1, 2)
	sw.flowMod(t, dec)
	trace := sw.pipe.Process(1, udpPacket(t, 1))
	assert.True(t, trace.Dropped)
	assert.Empty(t, sw.rec.packetIns)
	assert.Empty(t, sw.sent())

	sw = newTestSwitch(t, Options{InvalidTTLToController: true}, 1, 2)
	sw.flowMod(t, dec)
	data := udpPacket(t, 1)
	sw.pipe.Process(1, data)
	require.Len(t, sw.rec.packetIns, 1)
	assert.Equal(t, uint8(ofp4.OFPR_INVALID_TTL), sw.rec.packetIns[0].Reason)
	assert.Equal(t, data, sw.rec.packetIns[0].Data)
	assert.Empty(t, sw.sent())
}

func TestPacketOut(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	data := tcpPacket(t, 100)

	_, err := sw.pipe.PacketOut(&ofp4.PacketOut{
		BufferId: ofp4.OFP_NO_BUFFER,
		InPort:   ofp4.OFPP_CONTROLLER,
		Actions:  []ofp4.Action{output(2)},
		Data:     data,
	})
	require.NoError(t, err)
	sent := sw.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, Packet{Port: 2, Data: data}, sent[0])

	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(inPort(1)), applyActions(output(2))))
	trace, err := sw.pipe.PacketOut(&ofp4.PacketOut{
		BufferId: ofp4.OFP_NO_BUFFER,
		InPort:   1,
		Actions:  []ofp4.Action{output(ofp4.OFPP_TABLE)},
		Data:     data,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0}, trace.Tables, "output to table runs the pipeline")
	assert.Len(t, sw.sent(), 1)

	_, err = sw.pipe.PacketOut(&ofp4.PacketOut{BufferId: 3, InPort: ofp4.OFPP_CONTROLLER, Data: data})
	assert.True(t, errors.Is(err, ErrBufferUnknown))

	_, err = sw.pipe.PacketOut(&ofp4.PacketOut{BufferId: ofp4.OFP_NO_BUFFER, InPort: 9, Data: data})
	assert.True(t, errors.Is(err, ErrBadPort))

	_, err = sw.pipe.PacketOut(&ofp4.PacketOut{
		BufferId: ofp4.OFP_NO_BUFFER,
		InPort:   ofp4.OFPP_CONTROLLER,
		Actions:  []ofp4.Action{output(9)},
		Data:     data,
	})
	assert.True(t, errors.Is(err, ErrBadOutPort))
}

func TestSwitchConfig(t *testing.T) {
	sw := newTestSwitch(t, Options{MissSendLen: 128, DatapathId: 0xabc, NumTables: 4})
	assert.Equal(t, ofp4.SwitchConfig{MissSendLen: 128}, sw.pipe.Config())

	require.NoError(t, sw.pipe.SetConfig(ofp4.SwitchConfig{Flags: ofp4.OFPC_FRAG_DROP, MissSendLen: 64}))
	assert.Equal(t, ofp4.SwitchConfig{Flags: ofp4.OFPC_FRAG_DROP, MissSendLen: 64}, sw.pipe.Config())

	err := sw.pipe.SetConfig(ofp4.SwitchConfig{Flags: 0x100})
	assert.True(t, errors.Is(err, ErrBadConfigFlags))

	features := sw.pipe.Features()
	assert.Equal(t, uint64(0xabc), features.DatapathId)
	assert.Equal(t, uint8(4), features.NTables)
}

func TestRun(t *testing.T) {
	sw := newTestSwitch(t, Options{}, 1, 2)
	sw.flowMod(t, flowAdd(1, ofp4.NewMatch(inPort(1)), applyActions(output(2))))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sw.pipe.Run(ctx) }()

	peer := sw.dp.Peer()
	data := tcpPacket(t, 100)
	require.NoError(t, peer.SendToPort(1, data))
	port, got, err := peer.ReceiveFromPort(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), port)
	assert.Equal(t, data, got)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}
