package ofp4sw

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
)

func newTestTable(t *testing.T, capacity int) (*FlowTable, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewFlowTable(0, capacity, clock.Now), clock
}

func install(t *testing.T, table *FlowTable, req *ofp4.FlowMod) InstallResult {
	t.Helper()
	result, err := table.Install(req)
	require.NoError(t, err)
	return result
}

func TestLookupPriority(t *testing.T) {
	table, _ := newTestTable(t, 0)
	install(t, table, flowAdd(1, ofp4.NewMatch(), applyActions(output(1))))
	install(t, table, flowAdd(10, ofp4.NewMatch(ethType(0x0800), ipProto(6)), applyActions(output(2))))
	install(t, table, flowAdd(5, ofp4.NewMatch(inPort(3)), applyActions(output(3))))

	tcp := ParseFields(tcpPacket(t, 100), 3)
	hit := table.Lookup(&tcp)
	require.NotNil(t, hit)
	assert.Equal(t, uint16(10), hit.Priority)
	assert.Equal(t, uint64(1), hit.PacketCount())
	assert.Equal(t, uint64(100), hit.ByteCount())

	udp := ParseFields(udpPacket(t, 64), 3)
	hit = table.Lookup(&udp)
	require.NotNil(t, hit)
	assert.Equal(t, uint16(5), hit.Priority)

	udp.InPort = 4
	hit = table.Lookup(&udp)
	require.NotNil(t, hit)
	assert.Equal(t, uint16(1), hit.Priority)

	stats := table.TableStats()
	assert.Equal(t, uint32(3), stats.ActiveCount)
	assert.Equal(t, uint64(3), stats.LookupCount)
	assert.Equal(t, uint64(3), stats.MatchedCount)
}

func TestLookupMiss(t *testing.T) {
	table, _ := newTestTable(t, 0)
	install(t, table, flowAdd(10, ofp4.NewMatch(inPort(1))))
	fields := ParseFields(tcpPacket(t, 100), 2)
	assert.Nil(t, table.Lookup(&fields))

	stats := table.TableStats()
	assert.Equal(t, uint64(1), stats.LookupCount)
	assert.Equal(t, uint64(0), stats.MatchedCount)
}

func TestLookupEqualPriorityFirstInstalled(t *testing.T) {
	table, _ := newTestTable(t, 0)
	install(t, table, flowAdd(7, ofp4.NewMatch(inPort(1)), applyActions(output(1))))
	install(t, table, flowAdd(7, ofp4.NewMatch(ethType(0x0800)), applyActions(output(2))))

	fields := ParseFields(tcpPacket(t, 100), 1)
	hit := table.Lookup(&fields)
	require.NotNil(t, hit)
	assert.True(t, hit.Match.Equal(mustMatch(t, inPort(1))))
}

func TestNoCountsFlags(t *testing.T) {
	table, _ := newTestTable(t, 0)
	req := flowAdd(1, ofp4.NewMatch())
	req.Flags = ofp4.OFPFF_NO_PKT_COUNTS
	install(t, table, req)

	fields := ParseFields(tcpPacket(t, 100), 1)
	hit := table.Lookup(&fields)
	require.NotNil(t, hit)
	assert.Equal(t, uint64(0), hit.PacketCount())
	assert.Equal(t, uint64(100), hit.ByteCount())
}

func TestAddOverlap(t *testing.T) {
	table, _ := newTestTable(t, 0)
	wide := flowAdd(5, ofp4.NewMatch(ethType(0x0800), ipv4Dst(net.IP{10, 0, 0, 0}, net.IP{255, 0, 0, 0})))
	wide.Flags = ofp4.OFPFF_CHECK_OVERLAP
	install(t, table, wide)

	narrow := flowAdd(5, ofp4.NewMatch(ethType(0x0800), ipv4Dst(net.IP{10, 1, 2, 3}, nil)))
	narrow.Flags = ofp4.OFPFF_CHECK_OVERLAP
	_, err := table.Install(narrow)
	assert.True(t, errors.Is(err, ErrOverlap))
	assert.Equal(t, 1, table.Len())

	disjoint := flowAdd(5, ofp4.NewMatch(ethType(0x0800), ipv4Dst(net.IP{11, 1, 2, 3}, nil)))
	disjoint.Flags = ofp4.OFPFF_CHECK_OVERLAP
	install(t, table, disjoint)

	narrow.Priority = 6
	install(t, table, narrow)

	narrow.Priority = 5
	narrow.Flags = 0
	install(t, table, narrow)
	assert.Equal(t, 4, table.Len())
}

func TestAddReplacesIdentical(t *testing.T) {
	table, clock := newTestTable(t, 0)
	req := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))
	install(t, table, req)
	created := table.Entries(FlowFilter{})[0].Created

	fields := ParseFields(tcpPacket(t, 100), 1)
	require.NotNil(t, table.Lookup(&fields))

	clock.Advance(time.Second)
	install(t, table, req)
	entries := table.Entries(FlowFilter{})
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(0), entries[0].PacketCount(), "add resets the counters")
	assert.Equal(t, created, entries[0].Created, "unchanged content keeps its age")

	clock.Advance(time.Second)
	changed := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(3)))
	install(t, table, changed)
	entries = table.Entries(FlowFilter{})
	require.Len(t, entries, 1)
	assert.Equal(t, clock.Now(), entries[0].Created)
	assert.Equal(t, []ofp4.Instruction{applyActions(output(3))}, entries[0].Instructions())
}

func TestTableFull(t *testing.T) {
	table, _ := newTestTable(t, 1)
	install(t, table, flowAdd(5, ofp4.NewMatch(inPort(1))))
	_, err := table.Install(flowAdd(5, ofp4.NewMatch(inPort(2))))
	assert.True(t, errors.Is(err, ErrTableFull))

	install(t, table, flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2))))
	assert.Equal(t, 1, table.Len())
}

func TestModifyFullTable(t *testing.T) {
	table, _ := newTestTable(t, 1)
	install(t, table, flowAdd(5, ofp4.NewMatch(inPort(1))))

	mod := flowAdd(5, ofp4.NewMatch(inPort(2)), applyActions(output(2)))
	mod.Command = ofp4.OFPFC_MODIFY
	result, err := table.Install(mod)
	assert.True(t, errors.Is(err, ErrTableFull), "got %v", err)
	assert.Equal(t, InstallResult{}, result)
	assert.Equal(t, 1, table.Len())
}

func TestModifyInsertRacesAdd(t *testing.T) {
	for i := 0; i < 100; i++ {
		table, _ := newTestTable(t, 0)
		mod := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))
		mod.Command = ofp4.OFPFC_MODIFY
		add := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))

		var wg sync.WaitGroup
		for _, req := range []*ofp4.FlowMod{mod, add} {
			req := req
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := table.Install(req)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		require.Equal(t, 1, table.Len())
	}
}

func TestModify(t *testing.T) {
	table, clock := newTestTable(t, 0)
	add := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))
	add.Cookie = 7
	add.IdleTimeout = 30
	add.HardTimeout = 100
	install(t, table, add)
	fields := ParseFields(tcpPacket(t, 100), 1)
	require.NotNil(t, table.Lookup(&fields))

	mod := flowAdd(0, ofp4.NewMatch(), applyActions(output(3)))
	mod.Command = ofp4.OFPFC_MODIFY
	mod.Cookie = 7
	mod.CookieMask = ^uint64(0)
	mod.HardTimeout = 1
	result := install(t, table, mod)
	assert.Equal(t, 1, result.Modified)

	entries := table.Entries(FlowFilter{})
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, uint16(5), e.Priority)
	assert.Equal(t, uint16(0), e.IdleTimeout, "timeouts are replaced")
	assert.Equal(t, uint16(1), e.HardTimeout, "timeouts are replaced")
	assert.Equal(t, uint64(1), e.PacketCount(), "counters are kept")
	assert.Equal(t, []ofp4.Instruction{applyActions(output(3))}, e.Instructions())

	mod.Flags = ofp4.OFPFF_RESET_COUNTS
	install(t, table, mod)
	assert.Equal(t, uint64(0), table.Entries(FlowFilter{})[0].PacketCount())

	// the new hard timeout counts from the original insertion
	clock.Advance(2 * time.Second)
	removed := table.ExpireDue(clock.Now())
	require.Len(t, removed, 1)
	assert.Equal(t, uint8(ofp4.OFPRR_HARD_TIMEOUT), removed[0].Reason)
	assert.Equal(t, 0, table.Len())
}

func TestModifyCookieFilter(t *testing.T) {
	table, _ := newTestTable(t, 0)
	a := flowAdd(5, ofp4.NewMatch(inPort(1)))
	a.Cookie = 0x10
	b := flowAdd(5, ofp4.NewMatch(inPort(2)))
	b.Cookie = 0x20
	install(t, table, a)
	install(t, table, b)

	mod := flowAdd(0, ofp4.NewMatch(), applyActions(output(9)))
	mod.Command = ofp4.OFPFC_MODIFY
	mod.Cookie = 0x20
	mod.CookieMask = 0xf0
	result := install(t, table, mod)
	assert.Equal(t, 1, result.Modified)

	for _, e := range table.Entries(FlowFilter{}) {
		if e.Cookie == 0x20 {
			assert.NotEmpty(t, e.Instructions())
		} else {
			assert.Empty(t, e.Instructions())
		}
	}
}

func TestModifyMissingFlow(t *testing.T) {
	table, _ := newTestTable(t, 0)

	strict := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))
	strict.Command = ofp4.OFPFC_MODIFY_STRICT
	result := install(t, table, strict)
	assert.Equal(t, 0, result.Modified)
	assert.Equal(t, 0, table.Len())

	loose := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))
	loose.Command = ofp4.OFPFC_MODIFY
	result = install(t, table, loose)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, table.Len())
}

func TestDelete(t *testing.T) {
	table, _ := newTestTable(t, 0)
	install(t, table, flowAdd(10, ofp4.NewMatch(inPort(1), ethType(0x0800)), applyActions(output(2))))
	install(t, table, flowAdd(20, ofp4.NewMatch(inPort(1)), applyActions(output(3))))
	install(t, table, flowAdd(20, ofp4.NewMatch(inPort(2)), applyActions(output(3))))

	del := &ofp4.FlowMod{
		Command:  ofp4.OFPFC_DELETE_STRICT,
		Priority: 10,
		OutPort:  ofp4.OFPP_ANY,
		OutGroup: ofp4.OFPG_ANY,
		Match:    ofp4.NewMatch(inPort(1)),
	}
	result := install(t, table, del)
	assert.Empty(t, result.Removed, "strict delete needs the exact priority and match")

	del.Priority = 20
	result = install(t, table, del)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, uint8(ofp4.OFPRR_DELETE), result.Removed[0].Reason)
	assert.Equal(t, 2, table.Len())

	del.Command = ofp4.OFPFC_DELETE
	del.OutPort = 3
	result = install(t, table, del)
	assert.Empty(t, result.Removed, "the in_port=1 entry left outputs to port 2")

	del.OutPort = ofp4.OFPP_ANY
	result = install(t, table, del)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, uint16(10), result.Removed[0].Entry.Priority)

	del.Match = ofp4.NewMatch()
	result = install(t, table, del)
	assert.Len(t, result.Removed, 1)
	assert.Equal(t, 0, table.Len())
}

func TestHardTimeout(t *testing.T) {
	table, clock := newTestTable(t, 0)
	start := clock.Now()
	req := flowAdd(15, ofp4.NewMatch(inPort(1)))
	req.HardTimeout = 1
	req.Flags = ofp4.OFPFF_SEND_FLOW_REM
	install(t, table, req)

	assert.Empty(t, table.ExpireDue(start.Add(999*time.Millisecond)))

	removed := table.ExpireDue(start.Add(time.Second))
	require.Len(t, removed, 1)
	assert.True(t, removed[0].Notify())
	rem := removed[0].FlowRemoved()
	assert.Equal(t, uint8(ofp4.OFPRR_HARD_TIMEOUT), rem.Reason)
	assert.Equal(t, uint32(1), rem.DurationSec)
	assert.Equal(t, uint32(0), rem.DurationNsec)
	assert.Equal(t, uint16(15), rem.Priority)
	assert.Equal(t, uint16(1), rem.HardTimeout)
	assert.Equal(t, ofp4.NewMatch(inPort(1)), rem.Match)
	assert.Equal(t, 0, table.Len())
}

func TestIdleTimeout(t *testing.T) {
	table, clock := newTestTable(t, 0)
	start := clock.Now()
	req := flowAdd(1, ofp4.NewMatch())
	req.IdleTimeout = 2
	install(t, table, req)

	clock.Advance(1500 * time.Millisecond)
	fields := ParseFields(tcpPacket(t, 100), 1)
	require.NotNil(t, table.Lookup(&fields))

	assert.Empty(t, table.ExpireDue(start.Add(3*time.Second)))

	removed := table.ExpireDue(start.Add(3500 * time.Millisecond))
	require.Len(t, removed, 1)
	assert.Equal(t, uint8(ofp4.OFPRR_IDLE_TIMEOUT), removed[0].Reason)
	assert.False(t, removed[0].Notify())
	assert.Equal(t, uint64(1), removed[0].FlowRemoved().PacketCount)
}

func TestInstallErrors(t *testing.T) {
	table, _ := newTestTable(t, 0)
	cases := map[string]struct {
		req  *ofp4.FlowMod
		want error
	}{
		"bad command": {
			req:  &ofp4.FlowMod{Command: 9, Match: ofp4.NewMatch()},
			want: ErrBadCommand,
		},
		"goto backwards": {
			req:  flowAdd(1, ofp4.NewMatch(), &ofp4.InstructionGotoTable{TableId: 0}),
			want: ErrBadGotoTable,
		},
		"meter": {
			req:  flowAdd(1, ofp4.NewMatch(), &ofp4.InstructionMeter{MeterId: 1}),
			want: ErrUnsupInst,
		},
		"output to port zero": {
			req:  flowAdd(1, ofp4.NewMatch(), applyActions(output(0))),
			want: ErrBadOutPort,
		},
		"output to table": {
			req:  flowAdd(1, ofp4.NewMatch(), applyActions(output(ofp4.OFPP_TABLE))),
			want: ErrBadOutPort,
		},
		"group": {
			req:  flowAdd(1, ofp4.NewMatch(), applyActions(&ofp4.ActionGroup{GroupId: 1})),
			want: ErrBadOutGroup,
		},
		"push vlan ethertype": {
			req:  flowAdd(1, ofp4.NewMatch(), applyActions(&ofp4.ActionPush{Type: ofp4.OFPAT_PUSH_VLAN, Ethertype: 0x0800})),
			want: ErrBadArgument,
		},
		"bad prerequisite": {
			req:  flowAdd(1, ofp4.NewMatch(ipProto(6))),
			want: ofp4.Error{Type: ofp4.OFPET_BAD_MATCH, Code: ofp4.OFPBMC_BAD_PREREQ},
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := table.Install(c.req)
			assert.True(t, errors.Is(err, c.want), "got %v", err)
			assert.Equal(t, 0, table.Len())
		})
	}
}

func TestStatsFilter(t *testing.T) {
	table, clock := newTestTable(t, 0)
	a := flowAdd(5, ofp4.NewMatch(inPort(1)), applyActions(output(2)))
	a.Cookie = 1
	b := flowAdd(5, ofp4.NewMatch(inPort(2)), applyActions(output(1)))
	b.Cookie = 2
	install(t, table, a)
	install(t, table, b)
	clock.Advance(2500 * time.Millisecond)

	stats := table.Stats(FlowFilter{Cookie: 2, CookieMask: ^uint64(0)})
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(2), stats[0].Cookie)
	assert.Equal(t, uint32(2), stats[0].DurationSec)
	assert.Equal(t, uint32(500000000), stats[0].DurationNsec)

	stats = table.Stats(FlowFilter{OutPort: 2})
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Cookie)

	assert.Len(t, table.Stats(FlowFilter{}), 2)

	table.Clear()
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Stats(FlowFilter{}))
}
