package ofp4sw

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/oxm"
)

// FlowEntry is an installed flow. Entries are replaced rather than
// changed, except for their counters.
type FlowEntry struct {
	TableId     uint8
	Priority    uint16
	Match       Match
	Cookie      uint64
	Flags       uint16
	IdleTimeout uint16
	HardTimeout uint16
	Created     time.Time

	wireMatch    ofp4.Match
	instructions []ofp4.Instruction
	inst         *instructionSet

	packetCount atomic.Uint64
	byteCount   atomic.Uint64
	lastHit     atomic.Int64
}

func newFlowEntry(tableId uint8, req *ofp4.FlowMod, match Match, inst *instructionSet, now time.Time) *FlowEntry {
	entry := &FlowEntry{
		TableId:      tableId,
		Priority:     req.Priority,
		Match:        match,
		Cookie:       req.Cookie,
		Flags:        req.Flags,
		IdleTimeout:  req.IdleTimeout,
		HardTimeout:  req.HardTimeout,
		Created:      now,
		wireMatch:    ofp4.Match{Type: req.Match.Type, OxmFields: append(oxm.Oxm(nil), req.Match.OxmFields...)},
		instructions: req.Instructions,
		inst:         inst,
	}
	entry.lastHit.Store(now.UnixNano())
	return entry
}

func (e *FlowEntry) PacketCount() uint64 { return e.packetCount.Load() }

func (e *FlowEntry) ByteCount() uint64 { return e.byteCount.Load() }

func (e *FlowEntry) LastHit() time.Time { return time.Unix(0, e.lastHit.Load()) }

func (e *FlowEntry) Instructions() []ofp4.Instruction { return e.instructions }

// IsTableMiss reports whether the entry is the table-miss entry, the one
// with priority 0 and an empty match.
func (e *FlowEntry) IsTableMiss() bool {
	return e.Priority == 0 && len(e.Match) == 0
}

func (e *FlowEntry) hit(length int, now time.Time) {
	if e.Flags&ofp4.OFPFF_NO_PKT_COUNTS == 0 {
		e.packetCount.Add(1)
	}
	if e.Flags&ofp4.OFPFF_NO_BYT_COUNTS == 0 {
		e.byteCount.Add(uint64(length))
	}
	e.lastHit.Store(now.UnixNano())
}

func (e *FlowEntry) copyCounters(from *FlowEntry) {
	e.packetCount.Store(from.packetCount.Load())
	e.byteCount.Store(from.byteCount.Load())
	e.lastHit.Store(from.lastHit.Load())
}

func instructionsBytes(insts []ofp4.Instruction) []byte {
	var buf []byte
	for _, inst := range insts {
		b, err := inst.MarshalBinary()
		if err != nil {
			return nil
		}
		buf = append(buf, b...)
	}
	return buf
}

// sameContent compares everything a re-add may change.
func (e *FlowEntry) sameContent(other *FlowEntry) bool {
	return e.Cookie == other.Cookie &&
		e.Flags == other.Flags &&
		e.IdleTimeout == other.IdleTimeout &&
		e.HardTimeout == other.HardTimeout &&
		bytes.Equal(instructionsBytes(e.instructions), instructionsBytes(other.instructions))
}

func (e *FlowEntry) outputsTo(port uint32) bool {
	for _, list := range []actionList{e.inst.apply, e.inst.write} {
		for _, act := range list {
			if out, ok := act.(*actionOutput); ok && out.Port == port {
				return true
			}
		}
	}
	return false
}

// expired returns the removal reason when a timeout has elapsed.
func (e *FlowEntry) expired(now time.Time) (uint8, bool) {
	if e.HardTimeout > 0 && now.Sub(e.Created) >= time.Duration(e.HardTimeout)*time.Second {
		return ofp4.OFPRR_HARD_TIMEOUT, true
	}
	if e.IdleTimeout > 0 && now.Sub(e.LastHit()) >= time.Duration(e.IdleTimeout)*time.Second {
		return ofp4.OFPRR_IDLE_TIMEOUT, true
	}
	return 0, false
}

func splitDuration(d time.Duration) (sec, nsec uint32) {
	if d < 0 {
		d = 0
	}
	return uint32(d / time.Second), uint32(d % time.Second)
}

func (e *FlowEntry) stats(now time.Time) ofp4.FlowStats {
	sec, nsec := splitDuration(now.Sub(e.Created))
	return ofp4.FlowStats{
		TableId:      e.TableId,
		DurationSec:  sec,
		DurationNsec: nsec,
		Priority:     e.Priority,
		IdleTimeout:  e.IdleTimeout,
		HardTimeout:  e.HardTimeout,
		Flags:        e.Flags,
		Cookie:       e.Cookie,
		PacketCount:  e.PacketCount(),
		ByteCount:    e.ByteCount(),
		Match:        e.wireMatch,
		Instructions: e.instructions,
	}
}

// Removal records an entry leaving a table.
type Removal struct {
	Entry  *FlowEntry
	Reason uint8
	At     time.Time
}

// Notify reports whether the controller asked to hear about the removal.
func (r Removal) Notify() bool {
	return r.Entry.Flags&ofp4.OFPFF_SEND_FLOW_REM != 0
}

func (r Removal) FlowRemoved() ofp4.FlowRemoved {
	sec, nsec := splitDuration(r.At.Sub(r.Entry.Created))
	return ofp4.FlowRemoved{
		Cookie:       r.Entry.Cookie,
		Priority:     r.Entry.Priority,
		Reason:       r.Reason,
		TableId:      r.Entry.TableId,
		DurationSec:  sec,
		DurationNsec: nsec,
		IdleTimeout:  r.Entry.IdleTimeout,
		HardTimeout:  r.Entry.HardTimeout,
		PacketCount:  r.Entry.PacketCount(),
		ByteCount:    r.Entry.ByteCount(),
		Match:        r.Entry.wireMatch,
	}
}

// FlowFilter selects entries for modify, delete and statistics. Zero
// OutPort and OutGroup, like OFPP_ANY and OFPG_ANY, do not filter.
type FlowFilter struct {
	Match      Match
	Strict     bool
	Priority   uint16
	OutPort    uint32
	OutGroup   uint32
	Cookie     uint64
	CookieMask uint64
}

func (f FlowFilter) selects(e *FlowEntry) bool {
	if f.Strict {
		if e.Priority != f.Priority || !e.Match.Equal(f.Match) {
			return false
		}
	} else if !e.Match.Fit(f.Match) {
		return false
	}
	if e.Cookie&f.CookieMask != f.Cookie&f.CookieMask {
		return false
	}
	if f.OutPort != 0 && f.OutPort != ofp4.OFPP_ANY && !e.outputsTo(f.OutPort) {
		return false
	}
	if f.OutGroup != 0 && f.OutGroup != ofp4.OFPG_ANY {
		// group actions never get installed
		return false
	}
	return true
}

type flowPriority struct {
	priority uint16
	flows    []*FlowEntry // insertion order
}

// FlowTable is one table of the pipeline.
type FlowTable struct {
	id       uint8
	capacity int
	env      tableEnv
	now      func() time.Time

	lock       sync.RWMutex
	priorities *btree.BTreeG[*flowPriority]
	count      int

	lookupCount  atomic.Uint64
	matchedCount atomic.Uint64
}

/*
NewFlowTable creates an empty table. A capacity of 0 is unlimited; now
may be nil for the wall clock. Goto targets up to OFPTT_MAX and any output
port are accepted until the table joins a Pipeline.
*/
func NewFlowTable(id uint8, capacity int, now func() time.Time) *FlowTable {
	if now == nil {
		now = time.Now
	}
	return &FlowTable{
		id:       id,
		capacity: capacity,
		env:      tableEnv{tableId: id, lastTable: ofp4.OFPTT_MAX},
		now:      now,
		priorities: btree.NewG(4, func(a, b *flowPriority) bool {
			return a.priority > b.priority
		}),
	}
}

func (t *FlowTable) Id() uint8 { return t.id }

// InstallResult describes what a flow-mod changed.
type InstallResult struct {
	Added    int
	Modified int
	Removed  []Removal
}

// Install applies a flow-mod. Errors are ofp4.Error values, and the table
// is left unchanged when one is returned.
func (t *FlowTable) Install(req *ofp4.FlowMod) (InstallResult, error) {
	switch req.Command {
	case ofp4.OFPFC_ADD, ofp4.OFPFC_MODIFY, ofp4.OFPFC_MODIFY_STRICT,
		ofp4.OFPFC_DELETE, ofp4.OFPFC_DELETE_STRICT:
	default:
		return InstallResult{}, ErrBadCommand
	}
	match, err := NewMatch(req.Match)
	if err != nil {
		return InstallResult{}, err
	}
	if req.Command == ofp4.OFPFC_DELETE || req.Command == ofp4.OFPFC_DELETE_STRICT {
		return t.remove(req, match), nil
	}
	inst, err := t.env.compile(req.Instructions)
	if err != nil {
		return InstallResult{}, err
	}
	if req.Command == ofp4.OFPFC_ADD {
		return t.add(req, match, inst)
	}
	return t.modify(req, match, inst)
}

func (t *FlowTable) add(req *ofp4.FlowMod, match Match, inst *instructionSet) (InstallResult, error) {
	now := t.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.addLocked(req, match, inst, now)
}

func (t *FlowTable) addLocked(req *ofp4.FlowMod, match Match, inst *instructionSet, now time.Time) (InstallResult, error) {
	entry := newFlowEntry(t.id, req, match, inst, now)
	prio, _ := t.priorities.Get(&flowPriority{priority: req.Priority})
	if prio != nil {
		if req.Flags&ofp4.OFPFF_CHECK_OVERLAP != 0 {
			for _, e := range prio.flows {
				if e.Match.Intersects(match) {
					return InstallResult{}, ErrOverlap
				}
			}
		}
		for i, e := range prio.flows {
			if e.Match.Equal(match) {
				if e.sameContent(entry) {
					entry.Created = e.Created
				}
				prio.flows[i] = entry
				return InstallResult{Added: 1}, nil
			}
		}
	}
	if t.capacity > 0 && t.count >= t.capacity {
		return InstallResult{}, ErrTableFull
	}
	if prio == nil {
		prio = &flowPriority{priority: req.Priority}
		t.priorities.ReplaceOrInsert(prio)
	}
	prio.flows = append(prio.flows, entry)
	t.count++
	return InstallResult{Added: 1}, nil
}

func (t *FlowTable) modify(req *ofp4.FlowMod, match Match, inst *instructionSet) (InstallResult, error) {
	filter := FlowFilter{
		Match:      match,
		Strict:     req.Command == ofp4.OFPFC_MODIFY_STRICT,
		Priority:   req.Priority,
		Cookie:     req.Cookie,
		CookieMask: req.CookieMask,
	}
	now := t.now()

	t.lock.Lock()
	defer t.lock.Unlock()
	var result InstallResult
	t.priorities.Ascend(func(prio *flowPriority) bool {
		for i, e := range prio.flows {
			if !filter.selects(e) {
				continue
			}
			n := &FlowEntry{
				TableId:      e.TableId,
				Priority:     e.Priority,
				Match:        e.Match,
				Cookie:       e.Cookie,
				Flags:        req.Flags,
				IdleTimeout:  req.IdleTimeout,
				HardTimeout:  req.HardTimeout,
				Created:      e.Created,
				wireMatch:    e.wireMatch,
				instructions: req.Instructions,
				inst:         inst,
			}
			if req.CookieMask == 0 {
				n.Cookie = req.Cookie
			}
			if req.Flags&ofp4.OFPFF_RESET_COUNTS == 0 {
				n.copyCounters(e)
			} else {
				n.lastHit.Store(now.UnixNano())
			}
			prio.flows[i] = n
			result.Modified++
		}
		return true
	})

	if result.Modified == 0 && !filter.Strict {
		// A modify that selects nothing installs the flow.
		add := *req
		add.Command = ofp4.OFPFC_ADD
		add.Flags &^= ofp4.OFPFF_CHECK_OVERLAP
		return t.addLocked(&add, match, inst, now)
	}
	return result, nil
}

func (t *FlowTable) remove(req *ofp4.FlowMod, match Match) InstallResult {
	filter := FlowFilter{
		Match:      match,
		Strict:     req.Command == ofp4.OFPFC_DELETE_STRICT,
		Priority:   req.Priority,
		OutPort:    req.OutPort,
		OutGroup:   req.OutGroup,
		Cookie:     req.Cookie,
		CookieMask: req.CookieMask,
	}
	now := t.now()
	t.lock.Lock()
	defer t.lock.Unlock()
	return InstallResult{Removed: t.removeLocked(now, func(e *FlowEntry) (uint8, bool) {
		return ofp4.OFPRR_DELETE, filter.selects(e)
	})}
}

// removeLocked drops every entry for which pick returns true, keeping the
// order of the rest.
func (t *FlowTable) removeLocked(now time.Time, pick func(*FlowEntry) (uint8, bool)) []Removal {
	var removed []Removal
	var empty []*flowPriority
	t.priorities.Ascend(func(prio *flowPriority) bool {
		kept := prio.flows[:0]
		for _, e := range prio.flows {
			if reason, ok := pick(e); ok {
				removed = append(removed, Removal{Entry: e, Reason: reason, At: now})
			} else {
				kept = append(kept, e)
			}
		}
		for i := len(kept); i < len(prio.flows); i++ {
			prio.flows[i] = nil
		}
		prio.flows = kept
		if len(kept) == 0 {
			empty = append(empty, prio)
		}
		return true
	})
	for _, prio := range empty {
		t.priorities.Delete(prio)
	}
	t.count -= len(removed)
	return removed
}

// Lookup finds the highest priority entry matching the packet and
// updates the table and entry counters.
func (t *FlowTable) Lookup(fields *PacketFields) *FlowEntry {
	t.lookupCount.Add(1)
	t.lock.RLock()
	defer t.lock.RUnlock()

	var hit *FlowEntry
	t.priorities.Ascend(func(prio *flowPriority) bool {
		for _, e := range prio.flows {
			if e.Match.Matches(fields) {
				hit = e
				return false
			}
		}
		return true
	})
	if hit != nil {
		t.matchedCount.Add(1)
		hit.hit(fields.Length, t.now())
	}
	return hit
}

// ExpireDue removes the entries whose idle or hard timeout has elapsed
// at now.
func (t *FlowTable) ExpireDue(now time.Time) []Removal {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.removeLocked(now, func(e *FlowEntry) (uint8, bool) {
		return e.expired(now)
	})
}

// Entries returns the selected entries by descending priority.
func (t *FlowTable) Entries(filter FlowFilter) []*FlowEntry {
	t.lock.RLock()
	defer t.lock.RUnlock()
	var entries []*FlowEntry
	t.priorities.Ascend(func(prio *flowPriority) bool {
		for _, e := range prio.flows {
			if filter.selects(e) {
				entries = append(entries, e)
			}
		}
		return true
	})
	return entries
}

func (t *FlowTable) Stats(filter FlowFilter) []ofp4.FlowStats {
	now := t.now()
	var stats []ofp4.FlowStats
	for _, e := range t.Entries(filter) {
		stats = append(stats, e.stats(now))
	}
	return stats
}

func (t *FlowTable) TableStats() ofp4.TableStats {
	t.lock.RLock()
	count := t.count
	t.lock.RUnlock()
	return ofp4.TableStats{
		TableId:      t.id,
		ActiveCount:  uint32(count),
		LookupCount:  t.lookupCount.Load(),
		MatchedCount: t.matchedCount.Load(),
	}
}

// Len is the number of installed entries.
func (t *FlowTable) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.count
}

// Clear drops every entry without reporting removals. Table counters
// are kept.
func (t *FlowTable) Clear() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.priorities.Clear(false)
	t.count = 0
}
