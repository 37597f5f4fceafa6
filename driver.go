package regalloc

import (
	"fmt"
	"sort"

	"github.com/carbide-cc/regalloc/internal/allocapi"
)

// phase is the coarse state of a run. Transitions only ever move forward:
// seeding -> assigning -> done.
type phase uint8

const (
	phaseSeeding phase = iota
	phaseAssigning
	phaseDone
)

// String implements fmt.Stringer.
func (p phase) String() string {
	switch p {
	case phaseSeeding:
		return "seeding"
	case phaseAssigning:
		return "assigning"
	case phaseDone:
		return "done"
	default:
		return "invalid"
	}
}

// Stats summarizes the work a run performed.
type Stats struct {
	// Steps is the number of decisions taken.
	Steps int
	// Assigned and Spilled count the registers in each final state.
	Assigned, Spilled int
	// Evictions counts how many times an assigned register was kicked back
	// to the queue.
	Evictions int
}

// Assignment is the result of a completed run: the final, exclusive fate of
// every virtual register that was seeded or minted by the spiller. Registers
// replaced by a split report neither a register nor a slot; their pieces do.
type Assignment struct {
	regs      map[VRegID]RealReg
	slots     map[VRegID]SpillSlot
	clobbered []RealReg

	// Stats describes how much work the run took.
	Stats Stats
}

// RealRegOf returns the physical register assigned to v.
func (a *Assignment) RealRegOf(v VReg) (RealReg, bool) {
	r, ok := a.regs[v.ID()]
	return r, ok
}

// SpillSlotOf returns the stack slot holding the value of v.
func (a *Assignment) SpillSlotOf(v VReg) (SpillSlot, bool) {
	s, ok := a.slots[v.ID()]
	return s, ok
}

// Clobbered returns the callee-saved registers the run allocated, in
// increasing order. The function must save and restore them.
func (a *Assignment) Clobbered() []RealReg {
	return a.clobbered
}

// Allocate performs register allocation on f, driven by the liveness
// information of live, and returns the resulting assignment. The function is
// rewritten in place: spill code is inserted and every surviving operand is
// renamed to a RealReg-backed register. There is no partial success: on error
// the assignment is nil and the function must be discarded.
//
// A nil cfg means NewRunConfig defaults.
func (a *Allocator) Allocate(f Function, live Liveness, cfg *RunConfig) (result *Assignment, err error) {
	defer func() {
		if v := recover(); v != nil {
			be, ok := v.(bugError)
			if !ok {
				panic(v)
			}
			result, err = nil, be.err
		}
	}()

	if cfg == nil {
		cfg = NewRunConfig()
	}
	strat, err := newStrategy(cfg.strategy)
	if err != nil {
		return nil, err
	}
	if a.topo == nil {
		a.topo = newTopology(a.regInfo)
	}

	a.phase = phaseSeeding
	a.store.onRetire = cfg.onRetire
	a.queue = newAllocQueue(cfg.ordering)
	a.orders = newOrderProvider(a.topo, &a.store)
	a.seed(f, live)

	// The topology freezes between seeding and the first interference query;
	// the matrix construction below is the first consumer.
	a.topo.freeze()
	a.m = newMatrix(a.topo, &a.store)
	a.seedFixed()
	a.spiller = cfg.newSpiller(f, live)

	a.phase = phaseAssigning
	if err := a.run(f, strat, live, cfg); err != nil {
		return nil, err
	}

	a.phase = phaseDone
	return a.finish(f, cfg), nil
}

// seed walks the program once to harvest copy hints and call sites, then
// registers every live virtual register with the store and the queue.
func (a *Allocator) seed(f Function, live Liveness) {
	a.harvestCallPoints(f, live)
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			if instr.IsDebug() || !instr.IsCopy() {
				continue
			}
			var src, dst VReg
			if uses := instr.Uses(); len(uses) > 0 {
				src = uses[0]
			}
			if defs := instr.Defs(); len(defs) > 0 {
				dst = defs[0]
			}
			if !src.Valid() || !dst.Valid() {
				continue
			}
			switch sr, dr := src.IsRealReg(), dst.IsRealReg(); {
			case sr && dr:
			case sr && !dr:
				a.orders.addRealHint(dst, src.RealReg())
			case !sr && dr:
				a.orders.addRealHint(src, dst.RealReg())
			default:
				a.orders.addPeerHint(src, dst)
			}
		}
	}

	a.vs = live.VRegs(a.vs[:0])
	// Seeding order defines the tie-break sequence, so sort for determinism
	// regardless of how the liveness implementation orders its answer.
	sort.Slice(a.vs, func(i, j int) bool { return a.vs[i].ID() < a.vs[j].ID() })
	for _, v := range a.vs {
		if v.IsRealReg() {
			continue
		}
		lr := live.RangeOf(v)
		if lr == nil || len(lr.Intervals()) == 0 {
			continue
		}
		rs := a.store.insert(v, lr, live.WeightOf(v), StageNew)
		if err := a.queue.enqueue(QueueItem{VReg: v, Weight: rs.weight, Seq: rs.seq}); err != nil {
			bugWrap(fmt.Errorf("seeding %s: %w", v, err))
		}
	}
	if allocapi.AllocLoggingEnabled {
		fmt.Printf("seeded %d virtual registers, %d call sites\n", a.queue.len(), len(a.callPoints))
	}
}

func (a *Allocator) harvestCallPoints(f Function, live Liveness) {
	a.callPoints = a.callPoints[:0]
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			if !instr.IsDebug() && instr.IsCall() {
				a.callPoints = append(a.callPoints, live.PointOf(instr))
			}
		}
	}
}

// refreshAfterRewrite re-fetches the live range of every register that still
// owns one and rebuilds the fixed call-clobber ranges. A spill rewrite
// renumbers the whole program, so ranges captured before it compare garbage
// against ranges captured after it. Spill weights are deliberately not
// refreshed: the weights captured at registration stay authoritative for the
// rest of the run, keeping queue order and eviction decisions stable.
func (a *Allocator) refreshAfterRewrite(f Function, live Liveness, spilled *regState) {
	for _, rs := range a.store.all {
		if rs == spilled || (rs.state != statePending && rs.state != stateAssigned) {
			continue
		}
		lr := live.RangeOf(rs.v)
		if lr == nil {
			bugf("%s lost its live range after the rewrite of %s", rs.v, spilled.v)
		}
		rs.lr = lr
	}
	a.harvestCallPoints(f, live)
	for i := range a.m.fixed {
		a.m.fixed[i] = nil
	}
	a.seedFixed()
}

// seedFixed marks every caller-saved register unit busy across the call
// sites, so values live over a call never sit in a register the callee may
// clobber and gravitate to callee-saved registers instead.
func (a *Allocator) seedFixed() {
	if len(a.callPoints) == 0 {
		return
	}
	ivs := make([]Interval, len(a.callPoints))
	for i, p := range a.callPoints {
		ivs[i] = Interval{Begin: p + PointUse, End: p + PointDef}
	}
	lr := NewLiveRange(ivs...)
	done := make(map[RegUnit]struct{})
	for _, regs := range a.regInfo.AllocatableRegisters {
		for _, r := range regs {
			if !a.regInfo.isCallerSaved(r) {
				continue
			}
			for _, u := range a.topo.unitsOf(r) {
				if _, ok := done[u]; ok {
					continue
				}
				done[u] = struct{}{}
				a.m.setFixed(u, lr)
			}
		}
	}
}

// run drains the queue. Every iteration must make progress: either the
// candidate gets a register, or it is replaced by registers strictly higher
// on the stage ladder. Anything else aborts the run.
func (a *Allocator) run(f Function, strat Strategy, live Liveness, cfg *RunConfig) error {
	sel := Selection{m: a.m, st: &a.store, live: live, spiller: a.spiller}
	sel.refresh = func(spilled *regState) { a.refreshAfterRewrite(f, live, spilled) }
	for {
		v, ok := a.queue.dequeue()
		if !ok {
			return nil
		}
		a.steps++
		if cfg.iterLimit > 0 && a.steps > cfg.iterLimit {
			return fmt.Errorf("%w: %d registers still pending after %d steps", ErrNoProgress, a.queue.len()+1, cfg.iterLimit)
		}
		rs, err := a.store.live(v)
		if err != nil {
			bugf("dequeued %s is not tracked", v)
		}
		parentStage := rs.stage

		sel.v, sel.rs = v, rs
		sel.order = a.orders.build(v)
		sel.evicted = sel.evicted[:0]
		if allocapi.AllocLoggingEnabled {
			fmt.Printf("step %d: %s weight=%.2f stage=%s candidates=%d\n", a.steps, v, rs.weight, rs.stage, sel.order.Len())
		}

		dec, err := strat.SelectOrSplit(&sel)
		if err != nil {
			return err
		}

		// Evicted registers are pending again regardless of the decision.
		for _, ev := range sel.evicted {
			evs := a.store.lookup(ev)
			if evs == nil || evs.state != statePending {
				bugf("evicted %s is not pending", ev)
			}
			if err := a.queue.enqueue(QueueItem{VReg: ev, Weight: evs.weight, Seq: evs.seq}); err != nil {
				return fmt.Errorf("re-enqueue evicted %s: %w", ev, err)
			}
			a.evictions++
		}

		switch {
		case len(dec.Replacements) > 0:
			for _, c := range dec.Replacements {
				cs := a.store.lookup(c)
				if cs == nil {
					bugf("replacement %s was never registered; strategies must replace through Selection.Spill", c)
				}
				if cs.stage <= parentStage {
					return fmt.Errorf("%w: replacement %s stage %q does not advance past %q", ErrNoProgress, c, cs.stage, parentStage)
				}
				if err := a.queue.enqueue(QueueItem{VReg: c, Weight: cs.weight, Seq: cs.seq}); err != nil {
					return fmt.Errorf("enqueue replacement %s: %w", c, err)
				}
			}
		case dec.Assign != RealRegInvalid:
			if err := a.m.assign(v, dec.Assign); err != nil {
				return fmt.Errorf("apply decision for %s: %w", v, err)
			}
		default:
			return fmt.Errorf("%w: strategy %q deferred %s", ErrNoProgress, strat.Name(), v)
		}
	}
}

// finish builds the assignment, applies it to the program, reports the
// clobbered callee-saved registers, and finalizes the function.
func (a *Allocator) finish(f Function, cfg *RunConfig) *Assignment {
	res := &Assignment{
		regs:  make(map[VRegID]RealReg),
		slots: make(map[VRegID]SpillSlot),
	}
	res.Stats.Steps = a.steps
	res.Stats.Evictions = a.evictions
	for _, rs := range a.store.all {
		switch rs.state {
		case stateAssigned:
			res.regs[rs.v.ID()] = rs.assigned
			res.Stats.Assigned++
		case stateSpilled:
			res.slots[rs.v.ID()] = rs.slot
			res.Stats.Spilled++
		case stateRetired:
			// Replaced by split pieces which report for themselves.
		case statePending:
			bugf("%s still pending after the queue drained", rs.v)
		}
	}
	if allocapi.AllocValidationEnabled {
		a.validate()
	}

	a.apply(f, res)

	var seen RegSet
	for _, rs := range a.store.all {
		if rs.state == stateAssigned && a.regInfo.isCalleeSaved(rs.assigned) && !seen.has(rs.assigned) {
			seen = seen.add(rs.assigned)
			res.clobbered = append(res.clobbered, rs.assigned)
		}
	}
	// In order to make the output deterministic, sort it now.
	sort.Slice(res.clobbered, func(i, j int) bool { return res.clobbered[i] < res.clobbered[j] })
	f.ClobberedRegisters(res.clobbered)

	if cfg.onSnapshot != nil {
		cfg.onSnapshot(a.snapshot())
	}
	f.Done()
	return res
}

// apply renames every surviving operand to its RealReg-backed register.
func (a *Allocator) apply(f Function, res *Assignment) {
	for blk := f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			if instr.IsDebug() {
				continue
			}
			for i, u := range instr.Uses() {
				if u.IsRealReg() {
					continue
				}
				if r, ok := res.regs[u.ID()]; ok {
					instr.AssignUse(i, u.SetRealReg(r))
				}
			}
			for _, d := range instr.Defs() {
				if d.IsRealReg() {
					continue
				}
				if r, ok := res.regs[d.ID()]; ok {
					instr.AssignDef(d.SetRealReg(r))
				}
			}
		}
	}
}

// validate double-checks the exclusivity of every register unit. The matrix
// maintains this by construction; a hit here means a bookkeeping bug.
func (a *Allocator) validate() {
	for u, occs := range a.m.units {
		for i := 0; i < len(occs); i++ {
			for j := i + 1; j < len(occs); j++ {
				if occs[i].lr.Overlaps(occs[j].lr) {
					bugf("%s and %s overlap on %s", occs[i].v, occs[j].v, RegUnit(u))
				}
			}
		}
	}
}

func (a *Allocator) snapshot() *Snapshot {
	snap := &Snapshot{}
	final := make([]*regState, 0, len(a.store.all))
	for _, rs := range a.store.all {
		if rs.state != stateAssigned && rs.state != stateSpilled {
			continue
		}
		node := SnapshotNode{
			VReg:     rs.v,
			Weight:   rs.weight,
			Stage:    rs.stage,
			Assigned: rs.assigned,
			Slot:     rs.slot,
		}
		if rs.assigned != RealRegInvalid && a.regInfo.RealRegName != nil {
			node.RegName = a.regInfo.RealRegName(rs.assigned)
		}
		snap.Nodes = append(snap.Nodes, node)
		final = append(final, rs)
	}
	for i := 0; i < len(final); i++ {
		for j := i + 1; j < len(final); j++ {
			ri, rj := final[i], final[j]
			if ri.state != stateAssigned || rj.state != stateAssigned {
				continue
			}
			if ri.v.RegType() != rj.v.RegType() {
				continue
			}
			if ri.lr.Overlaps(rj.lr) {
				snap.Edges = append(snap.Edges, SnapshotEdge{A: i, B: j})
			}
		}
	}
	return snap
}
