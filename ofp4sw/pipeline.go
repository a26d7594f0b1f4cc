/*
Package ofp4sw implements an openflow 1.3 switch: flow tables with
match, counters and timeouts, instruction and action execution over
gopacket decoded frames, and the agent answering controller requests.
*/
package ofp4sw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackyang74/oftest"
	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/oxm"
	"k8s.io/klog/v2"
)

// MissPolicy decides the fate of a packet that matches no entry, table-miss
// entry included.
type MissPolicy int

const (
	MissDrop MissPolicy = iota
	MissController
)

func (m MissPolicy) String() string {
	if m == MissController {
		return "controller"
	}
	return "drop"
}

type Options struct {
	DatapathId uint64
	NumTables  int // defaults to 1
	TableSize  int // 0 for unlimited
	MissPolicy MissPolicy
	// MissSendLen is the initial miss_send_len of the switch config.
	MissSendLen            uint16
	InvalidTTLToController bool
	Desc                   ofp4.Desc
	Now                    func() time.Time
}

// Events receives asynchronous notifications. Nil members are skipped.
type Events struct {
	PacketIn    func(ofp4.PacketIn)
	FlowRemoved func(ofp4.FlowRemoved)
	PortStatus  func(ofp4.PortStatus)
}

type Pipeline struct {
	opts      Options
	now       func() time.Time
	tables    []*FlowTable
	dataplane oftest.Dataplane

	lock        sync.RWMutex
	ports       map[uint32]*port
	flags       uint16
	missSendLen uint16
	missPolicy  []MissPolicy
	ev          Events
}

func NewPipeline(opts Options, dataplane oftest.Dataplane) *Pipeline {
	if opts.NumTables <= 0 {
		opts.NumTables = 1
	}
	if opts.NumTables > ofp4.OFPTT_MAX+1 {
		opts.NumTables = ofp4.OFPTT_MAX + 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	pipe := &Pipeline{
		opts:        opts,
		now:         opts.Now,
		dataplane:   dataplane,
		ports:       make(map[uint32]*port),
		missSendLen: opts.MissSendLen,
		missPolicy:  make([]MissPolicy, opts.NumTables),
	}
	for i := range pipe.missPolicy {
		pipe.missPolicy[i] = opts.MissPolicy
	}
	for i := 0; i < opts.NumTables; i++ {
		table := NewFlowTable(uint8(i), opts.TableSize, opts.Now)
		table.env = tableEnv{
			tableId:   uint8(i),
			lastTable: uint8(opts.NumTables - 1),
			knownPort: pipe.knownPort,
		}
		pipe.tables = append(pipe.tables, table)
	}
	return pipe
}

// Table returns a flow table. It panics when id is beyond the configured
// tables.
func (pipe *Pipeline) Table(id uint8) *FlowTable {
	if int(id) >= len(pipe.tables) {
		panic(fmt.Sprintf("table %d out of range, %d tables", id, len(pipe.tables)))
	}
	return pipe.tables[id]
}

func (pipe *Pipeline) NumTables() int { return len(pipe.tables) }

func (pipe *Pipeline) SetEvents(ev Events) {
	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	pipe.ev = ev
}

func (pipe *Pipeline) events() Events {
	pipe.lock.RLock()
	defer pipe.lock.RUnlock()
	return pipe.ev
}

func (pipe *Pipeline) SetMissPolicy(tableId uint8, policy MissPolicy) {
	pipe.Table(tableId)
	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	pipe.missPolicy[tableId] = policy
}

func (pipe *Pipeline) Features() ofp4.SwitchFeatures {
	return ofp4.SwitchFeatures{
		DatapathId:   pipe.opts.DatapathId,
		NTables:      uint8(len(pipe.tables)),
		Capabilities: ofp4.OFPC_FLOW_STATS | ofp4.OFPC_TABLE_STATS | ofp4.OFPC_PORT_STATS,
	}
}

func (pipe *Pipeline) Desc() ofp4.Desc { return pipe.opts.Desc }

func (pipe *Pipeline) Config() ofp4.SwitchConfig {
	pipe.lock.RLock()
	defer pipe.lock.RUnlock()
	return ofp4.SwitchConfig{Flags: pipe.flags, MissSendLen: pipe.missSendLen}
}

func (pipe *Pipeline) SetConfig(config ofp4.SwitchConfig) error {
	if config.Flags&^ofp4.OFPC_FRAG_MASK != 0 {
		return ErrBadConfigFlags
	}
	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	pipe.flags = config.Flags
	pipe.missSendLen = config.MissSendLen
	return nil
}

// FlowMod installs a flow-mod. Delete commands accept OFPTT_ALL.
func (pipe *Pipeline) FlowMod(req *ofp4.FlowMod) error {
	var tables []*FlowTable
	switch {
	case req.Command > ofp4.OFPFC_DELETE_STRICT:
		return ErrBadCommand
	case req.TableId == ofp4.OFPTT_ALL:
		if req.Command != ofp4.OFPFC_DELETE && req.Command != ofp4.OFPFC_DELETE_STRICT {
			return ErrBadTableId
		}
		tables = pipe.tables
	case int(req.TableId) >= len(pipe.tables):
		return ErrBadTableId
	default:
		tables = []*FlowTable{pipe.tables[req.TableId]}
	}
	for _, table := range tables {
		result, err := table.Install(req)
		if err != nil {
			return err
		}
		pipe.notifyRemoved(result.Removed)
	}
	if req.BufferId != ofp4.OFP_NO_BUFFER && req.Command != ofp4.OFPFC_DELETE && req.Command != ofp4.OFPFC_DELETE_STRICT {
		return ErrBufferUnknown
	}
	return nil
}

func (pipe *Pipeline) notifyRemoved(removed []Removal) {
	fn := pipe.events().FlowRemoved
	for _, r := range removed {
		klog.V(3).InfoS("Flow removed", "table", r.Entry.TableId, "priority", r.Entry.Priority, "match", r.Entry.Match, "reason", r.Reason)
		if fn != nil && r.Notify() {
			fn(r.FlowRemoved())
		}
	}
}

// Expire removes every timed out entry and reports the removals.
func (pipe *Pipeline) Expire(now time.Time) []Removal {
	var removed []Removal
	for _, table := range pipe.tables {
		removed = append(removed, table.ExpireDue(now)...)
	}
	pipe.notifyRemoved(removed)
	return removed
}

// RunExpiry checks timeouts every interval until ctx is done.
func (pipe *Pipeline) RunExpiry(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pipe.Expire(pipe.now())
		}
	}
}

// Run feeds frames from the dataplane into the pipeline until ctx is done
// or the dataplane fails.
func (pipe *Pipeline) Run(ctx context.Context) error {
	for {
		port, data, err := pipe.dataplane.ReceiveFromPort(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("dataplane receive: %w", err)
		}
		pipe.Process(port, data)
	}
}

func (pipe *Pipeline) flowFilter(req *ofp4.FlowStatsRequest) ([]*FlowTable, FlowFilter, error) {
	var tables []*FlowTable
	switch {
	case req.TableId == ofp4.OFPTT_ALL:
		tables = pipe.tables
	case int(req.TableId) < len(pipe.tables):
		tables = []*FlowTable{pipe.tables[req.TableId]}
	default:
		return nil, FlowFilter{}, ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BAD_TABLE_ID}
	}
	match, err := NewMatch(req.Match)
	if err != nil {
		return nil, FlowFilter{}, err
	}
	return tables, FlowFilter{
		Match:      match,
		OutPort:    req.OutPort,
		OutGroup:   req.OutGroup,
		Cookie:     req.Cookie,
		CookieMask: req.CookieMask,
	}, nil
}

func (pipe *Pipeline) FlowStats(req *ofp4.FlowStatsRequest) ([]ofp4.FlowStats, error) {
	tables, filter, err := pipe.flowFilter(req)
	if err != nil {
		return nil, err
	}
	var stats []ofp4.FlowStats
	for _, table := range tables {
		stats = append(stats, table.Stats(filter)...)
	}
	return stats, nil
}

func (pipe *Pipeline) AggregateStats(req *ofp4.FlowStatsRequest) (ofp4.AggregateStatsReply, error) {
	tables, filter, err := pipe.flowFilter(req)
	if err != nil {
		return ofp4.AggregateStatsReply{}, err
	}
	var reply ofp4.AggregateStatsReply
	for _, table := range tables {
		for _, e := range table.Entries(filter) {
			reply.PacketCount += e.PacketCount()
			reply.ByteCount += e.ByteCount()
			reply.FlowCount++
		}
	}
	return reply, nil
}

func (pipe *Pipeline) TableStats() []ofp4.TableStats {
	var stats []ofp4.TableStats
	for _, table := range pipe.tables {
		stats = append(stats, table.TableStats())
	}
	return stats
}

// Trace reports what the pipeline did with one packet.
type Trace struct {
	Tables    []uint8
	Entries   []*FlowEntry // nil where the table missed
	Outputs   []Output     // frames handed to the dataplane
	PacketIns []ofp4.PacketIn
	Dropped   bool
}

func (t *Trace) merge(other Trace) {
	t.Tables = append(t.Tables, other.Tables...)
	t.Entries = append(t.Entries, other.Entries...)
	t.Outputs = append(t.Outputs, other.Outputs...)
	t.PacketIns = append(t.PacketIns, other.PacketIns...)
}

// pendingOutput is an Output with what a packet-in needs to know about
// its origin.
type pendingOutput struct {
	Output
	tableId  uint8
	cookie   uint64
	metadata uint64
}

// Process runs a frame received on inPort through the tables.
func (pipe *Pipeline) Process(inPort uint32, data []byte) Trace {
	pipe.lock.Lock()
	if p, ok := pipe.ports[inPort]; ok {
		if !p.canReceive() {
			p.stats.RxDropped++
			pipe.lock.Unlock()
			return Trace{Dropped: true}
		}
		p.stats.RxPackets++
		p.stats.RxBytes += uint64(len(data))
	}
	pipe.lock.Unlock()
	return pipe.run(NewFrame(data, inPort))
}

func (pipe *Pipeline) run(frame *Frame) Trace {
	var trace Trace
	var set ActionSet
	var outs []pendingOutput
	tableId := uint8(0)
	for {
		fields := frame.Fields()
		entry := pipe.tables[tableId].Lookup(&fields)
		trace.Tables = append(trace.Tables, tableId)
		trace.Entries = append(trace.Entries, entry)
		if entry == nil {
			pipe.lock.RLock()
			policy, missLen := pipe.missPolicy[tableId], pipe.missSendLen
			pipe.lock.RUnlock()
			if policy == MissController {
				data, err := frame.Serialized()
				if err == nil {
					outs = append(outs, pendingOutput{
						Output: Output{
							Port:   ofp4.OFPP_CONTROLLER,
							MaxLen: missLen,
							Reason: ofp4.OFPR_NO_MATCH,
							Data:   append([]byte(nil), data...),
						},
						tableId:  tableId,
						cookie:   ^uint64(0),
						metadata: frame.metadata,
					})
				}
			}
			break
		}
		d := Execute(entry, frame, &set)
		for _, o := range d.Outputs {
			outs = append(outs, pendingOutput{Output: o, tableId: tableId, cookie: entry.Cookie, metadata: frame.metadata})
		}
		if d.Dropped {
			trace.Dropped = true
			break
		}
		if !d.Goto {
			break
		}
		tableId = d.NextTable
	}
	pipe.deliver(frame.inPort, outs, &trace)
	return trace
}

// PacketOut applies the actions of a packet-out to its data.
func (pipe *Pipeline) PacketOut(req *ofp4.PacketOut) (Trace, error) {
	if req.BufferId != ofp4.OFP_NO_BUFFER {
		return Trace{}, ErrBufferUnknown
	}
	if req.InPort != ofp4.OFPP_CONTROLLER && !pipe.knownPort(req.InPort) {
		return Trace{}, ErrBadPort
	}
	env := actionEnv{knownPort: pipe.knownPort, inPacketOut: true}
	list, err := env.compile(req.Actions)
	if err != nil {
		return Trace{}, err
	}
	frame := NewFrame(req.Data, req.InPort)
	var outs []pendingOutput
	for _, o := range list.process(frame) {
		outs = append(outs, pendingOutput{Output: o, tableId: ofp4.OFPTT_MAX, cookie: ^uint64(0)})
	}
	var trace Trace
	trace.Dropped = frame.isInvalid()
	pipe.deliver(req.InPort, outs, &trace)
	return trace, nil
}

func (pipe *Pipeline) deliver(inPort uint32, outs []pendingOutput, trace *Trace) {
	for _, o := range outs {
		switch o.Port {
		case ofp4.OFPP_CONTROLLER:
			pipe.packetIn(inPort, o, trace)
		case ofp4.OFPP_TABLE:
			trace.merge(pipe.run(NewFrame(o.Data, inPort)))
		case ofp4.OFPP_IN_PORT:
			pipe.transmit(inPort, o.Output, trace)
		case ofp4.OFPP_ALL, ofp4.OFPP_FLOOD:
			pipe.lock.RLock()
			nos := pipe.portNumbers()
			pipe.lock.RUnlock()
			for _, no := range nos {
				if no != inPort {
					pipe.transmit(no, o.Output, trace)
				}
			}
		default:
			pipe.transmit(o.Port, o.Output, trace)
		}
	}
}

func (pipe *Pipeline) transmit(no uint32, out Output, trace *Trace) {
	pipe.lock.Lock()
	p, ok := pipe.ports[no]
	if !ok {
		pipe.lock.Unlock()
		klog.V(4).InfoS("Output to unknown port dropped", "port", no)
		return
	}
	if !p.canForward() {
		p.stats.TxDropped++
		pipe.lock.Unlock()
		return
	}
	pipe.lock.Unlock()

	var err error
	if pipe.dataplane != nil {
		err = pipe.dataplane.SendToPort(no, out.Data)
	}

	pipe.lock.Lock()
	defer pipe.lock.Unlock()
	if err != nil {
		klog.V(2).InfoS("Dataplane send failed", "port", no, "err", err)
		p.stats.TxDropped++
		return
	}
	p.stats.TxPackets++
	p.stats.TxBytes += uint64(len(out.Data))
	out.Port = no
	trace.Outputs = append(trace.Outputs, out)
}

func (pipe *Pipeline) packetIn(inPort uint32, o pendingOutput, trace *Trace) {
	if o.Reason == ofp4.OFPR_INVALID_TTL && !pipe.opts.InvalidTTLToController {
		return
	}
	pipe.lock.RLock()
	if p, ok := pipe.ports[inPort]; ok && p.config&ofp4.OFPPC_NO_PACKET_IN != 0 {
		pipe.lock.RUnlock()
		return
	}
	pipe.lock.RUnlock()

	data := o.Data
	if o.MaxLen != ofp4.OFPCML_NO_BUFFER && int(o.MaxLen) < len(data) {
		data = data[:o.MaxLen]
	}
	fields := []oxm.Oxm{oxm.New(oxm.OFPXMT_OFB_IN_PORT, be32(inPort), nil)}
	if o.metadata != 0 {
		fields = append(fields, oxm.New(oxm.OFPXMT_OFB_METADATA, be64(o.metadata), nil))
	}
	pin := ofp4.PacketIn{
		BufferId: ofp4.OFP_NO_BUFFER,
		TotalLen: uint16(len(o.Data)),
		Reason:   o.Reason,
		TableId:  o.tableId,
		Cookie:   o.cookie,
		Match:    ofp4.NewMatch(fields...),
		Data:     data,
	}
	trace.PacketIns = append(trace.PacketIns, pin)
	if fn := pipe.events().PacketIn; fn != nil {
		fn(pin)
	}
}
