package trafgen

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/ofp4sw"
	"github.com/jackyang74/oftest/oxm"
	trafgentesting "github.com/jackyang74/oftest/trafgen/testing"
)

func frame(t *testing.T, size int) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: 0x88b5,
	}
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(make([]byte, size-14))))
	return buf.Bytes()
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestRates(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSoft(ofp4sw.NewChannelDataplane(1), SoftOptions{Ports: 2, Now: c.Now})

	s.record(0, 100)
	c.now = c.now.Add(500 * time.Millisecond)
	s.record(0, 200)
	s.record(7, 200)

	pps, err := s.GetRcvRatePps(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pps)
	bps, err := s.GetRcvRateBps(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(8*300), bps)

	c.now = c.now.Add(600 * time.Millisecond)
	pps, err = s.GetRcvRatePps(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pps, "the first sample left the window")

	pkts, err := s.GetRcvPktsCnt(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pkts)
	octets, err := s.GetRcvBytesCnt(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), octets)

	require.NoError(t, s.ResetStats())
	pkts, _ = s.GetRcvPktsCnt(0)
	assert.Zero(t, pkts)
	pps, _ = s.GetRcvRatePps(0)
	assert.Zero(t, pps)

	_, err = s.GetRcvPktsCnt(2)
	assert.ErrorIs(t, err, ErrBadPort)
}

func TestReplayControls(t *testing.T) {
	s := NewSoft(ofp4sw.NewChannelDataplane(1), SoftOptions{Ports: 1})
	assert.ErrorIs(t, s.SetBeginReplay(0), ErrDisabled)
	require.NoError(t, s.SetEnable(0))
	assert.ErrorIs(t, s.SetBeginReplay(0), ErrNoFrames)
	assert.ErrorIs(t, s.SetReplayCnt(0, -1), ErrBadArgument)
	assert.ErrorIs(t, s.SetReplayRate(0, -5), ErrBadArgument)
	assert.ErrorIs(t, s.SetEnable(3), ErrBadPort)
	assert.Nil(t, s.ReplayDone(0))
	assert.NoError(t, s.SetStopReplay(0), "stopping an idle port is fine")
}

func TestLoadPcap(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, size := range []int{60, 128} {
		data := frame(t, size)
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(0, 0),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}

	dp := ofp4sw.NewChannelDataplane(16)
	s := NewSoft(dp.Peer(), SoftOptions{Ports: 1})
	n, err := s.LoadPcap(0, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.SetEnable(0))
	require.NoError(t, s.SetReplayCnt(0, 2))
	require.NoError(t, s.SetBeginReplay(0))
	select {
	case <-s.ReplayDone(0):
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}

	var sizes []int
	for len(dp.In) > 0 {
		pkt := <-dp.In
		assert.Equal(t, uint32(1), pkt.Port)
		sizes = append(sizes, len(pkt.Data))
	}
	assert.Equal(t, []int{60, 128, 60, 128}, sizes)
}

func TestReplayStop(t *testing.T) {
	dp := ofp4sw.NewChannelDataplane(1024)
	s := NewSoft(dp, SoftOptions{Ports: 1})
	require.NoError(t, s.SetFrames(0, frame(t, 64)))
	require.NoError(t, s.SetEnable(0))
	require.NoError(t, s.SetReplayCnt(0, 0))
	require.NoError(t, s.SetReplayRate(0, 1000))
	require.NoError(t, s.SetBeginReplay(0))
	done := s.ReplayDone(0)

	require.NoError(t, s.SetDisable(0))
	select {
	case <-done:
	default:
		t.Fatal("disable did not stop the replay")
	}
	require.NoError(t, s.ResetReplay(0))
}

type brokenDataplane struct {
	sends atomic.Int64
}

func (d *brokenDataplane) SendToPort(uint32, []byte) error {
	d.sends.Add(1)
	return errors.New("link gone")
}

func (d *brokenDataplane) ReceiveFromPort(ctx context.Context) (uint32, []byte, error) {
	<-ctx.Done()
	return 0, nil, ctx.Err()
}

func TestReplayBacksOffOnSendErrors(t *testing.T) {
	dp := &brokenDataplane{}
	s := NewSoft(dp, SoftOptions{Ports: 1})
	require.NoError(t, s.SetFrames(0, frame(t, 64)))
	require.NoError(t, s.SetEnable(0))
	require.NoError(t, s.SetReplayCnt(0, 0))
	require.NoError(t, s.SetReplayRate(0, 0))
	require.NoError(t, s.SetBeginReplay(0))
	done := s.ReplayDone(0)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.SetStopReplay(0))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replay did not stop")
	}
	sends := dp.sends.Load()
	assert.Positive(t, sends)
	assert.Less(t, sends, int64(50), "failed sends are retried with a growing delay")
}

// TestSwitchCrossCheck replays frames through an emulated switch and
// checks the tester's counters against the switch's port stats.
func TestSwitchCrossCheck(t *testing.T) {
	dp := ofp4sw.NewChannelDataplane(64)
	pipe := ofp4sw.NewPipeline(ofp4sw.Options{}, dp)
	for _, no := range []uint32{1, 2} {
		require.NoError(t, pipe.AddPort(no, ofp4sw.PortState{Name: "p"}))
	}
	require.NoError(t, pipe.FlowMod(&ofp4.FlowMod{
		Command:  ofp4.OFPFC_ADD,
		Priority: 1,
		BufferId: ofp4.OFP_NO_BUFFER,
		OutPort:  ofp4.OFPP_ANY,
		OutGroup: ofp4.OFPG_ANY,
		Match:    ofp4.NewMatch(oxm.New(oxm.OFPXMT_OFB_IN_PORT, []byte{0, 0, 0, 1}, nil)),
		Instructions: []ofp4.Instruction{&ofp4.InstructionActions{
			Type:    ofp4.OFPIT_APPLY_ACTIONS,
			Actions: []ofp4.Action{&ofp4.ActionOutput{Port: 2, MaxLen: ofp4.OFPCML_NO_BUFFER}},
		}},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSoft(dp.Peer(), SoftOptions{Ports: 2})
	go pipe.Run(ctx)
	go s.Run(ctx)

	require.NoError(t, s.SetFrames(0, frame(t, 60), frame(t, 100)))
	require.NoError(t, s.SetEnable(0))
	require.NoError(t, s.SetReplayCnt(0, 3))
	require.NoError(t, s.SetBeginReplay(0))
	<-s.ReplayDone(0)

	var stats []ofp4.PortStats
	require.Eventually(t, func() bool {
		n, _ := s.GetRcvPktsCnt(1)
		var err error
		stats, err = pipe.PortStats(2)
		return n == 6 && err == nil && CrossCheck(s, 1, stats[0]) == nil
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(480), stats[0].TxBytes)

	stats[0].TxBytes++
	var mismatch *MismatchError
	require.True(t, errors.As(CrossCheck(s, 1, stats[0]), &mismatch))
	assert.Equal(t, []Mismatch{{Counter: "bytes", Tester: 480, Switch: 481}}, mismatch.Mismatches)
}

func TestCrossCheckMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	tester := trafgentesting.NewMockTester(ctrl)

	tester.EXPECT().GetRcvPktsCnt(3).Return(uint64(10), nil)
	tester.EXPECT().GetRcvBytesCnt(3).Return(uint64(1000), nil)
	err := CrossCheck(tester, 3, ofp4.PortStats{TxPackets: 9, TxBytes: 1000})
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 3, mismatch.Port)
	assert.Equal(t, []Mismatch{{Counter: "packets", Tester: 10, Switch: 9}}, mismatch.Mismatches)
	assert.Equal(t, "tester port 3: packets tester=10 switch=9", err.Error())

	failure := errors.New("device gone")
	tester.EXPECT().GetRcvPktsCnt(0).Return(uint64(0), failure)
	assert.ErrorIs(t, CrossCheck(tester, 0, ofp4.PortStats{}), failure)
}
