package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/ofp4sw"
	"github.com/jackyang74/oftest/session"
)

// testSwitch serves an emulated switch on a loopback listener, one
// connection at a time, until the test ends.
func testSwitch(t *testing.T) (string, *ofp4sw.Pipeline) {
	t.Helper()
	pipe := ofp4sw.NewPipeline(ofp4sw.Options{
		DatapathId: 0x99,
		NumTables:  2,
		Desc:       ofp4.Desc{MfrDesc: "acme", DpDesc: "under test"},
	}, ofp4sw.NewChannelDataplane(16))
	require.NoError(t, pipe.AddPort(1, ofp4sw.PortState{Name: "eth1"}))
	agent := ofp4sw.NewAgent(pipe)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			sess := session.New(conn, session.Options{
				Handler: func(s *session.Session, msg *ofp4.Message) {
					for _, reply := range agent.Handle(msg) {
						s.Send(reply)
					}
				},
			})
			if err := sess.Handshake(context.Background()); err != nil {
				sess.Close()
				continue
			}
			agent.Attach(sess)
			<-sess.Done()
			agent.Attach(nil)
		}
	}()
	return l.Addr().String(), pipe
}

func testProber(t *testing.T, addr string) (*prober, *bytes.Buffer) {
	t.Helper()
	sess, err := connect(context.Background(), addr, "", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	var out bytes.Buffer
	return &prober{sess: sess, timeout: time.Second, out: &out}, &out
}

func TestProbeQueries(t *testing.T) {
	addr, _ := testSwitch(t)
	p, out := testProber(t, addr)
	ctx := context.Background()

	require.NoError(t, p.desc(ctx))
	assert.Contains(t, out.String(), "manufacturer: acme\n")
	assert.Contains(t, out.String(), "datapath: under test\n")

	out.Reset()
	require.NoError(t, p.printFeatures(ctx))
	assert.True(t, strings.HasPrefix(out.String(), "datapath_id=0x0000000000000099 n_tables=2 "), out.String())

	out.Reset()
	require.NoError(t, p.dumpPorts(ctx))
	assert.True(t, strings.HasPrefix(out.String(), "port=1 name=eth1 rx_packets=0"), out.String())

	out.Reset()
	require.NoError(t, p.dumpTables(ctx))
	assert.Equal(t, "table=0 active=0 lookup=0 matched=0\ntable=1 active=0 lookup=0 matched=0\n", out.String())
}

func TestProbeFlows(t *testing.T) {
	addr, pipe := testSwitch(t)
	p, out := testProber(t, addr)
	ctx := context.Background()

	require.NoError(t, p.addFlow(ctx, "table=1,priority=10,cookie=0x1,in_port=1,@apply,output=controller"))
	require.NoError(t, p.addFlow(ctx, "table=0,priority=5,cookie=0x2,@goto=1"))
	assert.Equal(t, 1, pipe.Table(1).Len())

	require.NoError(t, p.dumpFlows(ctx, "table=1"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "table=1,priority=10,cookie=0x1,"), lines[0])

	flows, err := p.flows(ctx, "")
	require.NoError(t, err)
	assert.Len(t, flows, 2)

	err = p.addFlow(ctx, "table=7,priority=1")
	assert.NoError(t, expectError(err, ofp4.OFPET_FLOW_MOD_FAILED, ofp4.OFPFMFC_BAD_TABLE_ID))
	err = p.addFlow(ctx, "priority=1,@apply,output=9")
	assert.NoError(t, expectError(err, ofp4.OFPET_BAD_ACTION, ofp4.OFPBAC_BAD_OUT_PORT))

	require.NoError(t, p.delFlows(ctx, "cookie=0x2"))
	flows, err = p.flows(ctx, "")
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, uint64(1), flows[0].Cookie)

	require.NoError(t, p.delFlows(ctx, ""))
	flows, err = p.flows(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, flows)

	_, err = flowRequest("priority=nope")
	assert.Error(t, err)
}

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func TestProbeWatch(t *testing.T) {
	addr, pipe := testSwitch(t)
	p, _ := testProber(t, addr)
	out := &syncBuffer{}
	p.out = out

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.watch(ctx) }()

	// toggle the link until a status change lands after the subscription
	down := false
	assert.Eventually(t, func() bool {
		down = !down
		if pipe.SetLinkDown(1, down) != nil {
			return false
		}
		return strings.Contains(out.String(), "port_status port=1 name=eth1")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCheckCommand(t *testing.T) {
	addr, _ := testSwitch(t)
	cmd := newCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--connect", addr, "check"})
	require.NoError(t, cmd.Execute())

	for _, name := range []string{"echo", "features", "barrier", "flow lifecycle", "bad table rejected", "unknown multipart rejected"} {
		assert.Contains(t, out.String(), "PASS "+name+"\n")
	}
	assert.NotContains(t, out.String(), "FAIL")
}
