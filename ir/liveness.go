package ir

import (
	"fmt"
	"math"
	"sort"

	"github.com/carbide-cc/regalloc"
	"github.com/carbide-cc/regalloc/internal/allocapi"
)

var _ regalloc.Liveness = (*Liveness)(nil)

// Liveness computes and serves the live ranges, spill weights and program
// points of a Function. It implements regalloc.Liveness.
//
// The analysis is the classic non-iterative scheme: one pass collects per
// block defs and upward-exposed uses, each upward-exposed use then climbs the
// predecessor chain marking live-outs and live-ins (Algorithm 9.10 in the SSA
// book referenced from package regalloc), and a final pass assembles the per
// block intervals into global ranges.
type Liveness struct {
	f *Function

	infos   map[*Block]*blockInfo
	ranges  map[regalloc.VRegID]*regalloc.LiveRange
	weights map[regalloc.VRegID]float64
	regs    map[regalloc.VRegID]regalloc.VReg
	ids     []regalloc.VRegID
}

// blockInfo is the per-block state of one analysis run.
type blockInfo struct {
	begin, end regalloc.ProgramPoint

	liveIns  map[regalloc.VRegID]struct{}
	liveOuts map[regalloc.VRegID]struct{}
	// defs holds the earliest def point per register, lastDefs and lastUses
	// the latest ones. All three matter: upward exposure compares against the
	// earliest def, interval ends against the latest occurrence.
	defs     map[regalloc.VRegID]regalloc.ProgramPoint
	lastDefs map[regalloc.VRegID]regalloc.ProgramPoint
	lastUses map[regalloc.VRegID]regalloc.ProgramPoint
}

func newBlockInfo() *blockInfo {
	return &blockInfo{
		liveIns:  make(map[regalloc.VRegID]struct{}),
		liveOuts: make(map[regalloc.VRegID]struct{}),
		defs:     make(map[regalloc.VRegID]regalloc.ProgramPoint),
		lastDefs: make(map[regalloc.VRegID]regalloc.ProgramPoint),
		lastUses: make(map[regalloc.VRegID]regalloc.ProgramPoint),
	}
}

// NewLiveness runs the analysis over f and returns the result. Call Recompute
// after mutating the function.
func NewLiveness(f *Function) *Liveness {
	l := &Liveness{f: f}
	l.Recompute()
	return l
}

// Recompute implements regalloc.Liveness. It renumbers the whole program,
// folding in any spill code inserted since the last run, and rebuilds every
// range and weight from scratch.
func (l *Liveness) Recompute() {
	l.infos = make(map[*Block]*blockInfo, len(l.f.blocks))
	l.ranges = make(map[regalloc.VRegID]*regalloc.LiveRange)
	l.weights = make(map[regalloc.VRegID]float64)
	l.regs = make(map[regalloc.VRegID]regalloc.VReg)
	l.ids = l.ids[:0]

	l.number()
	l.collect()
	l.propagate()
	l.assemble()

	if allocapi.LivenessLoggingEnabled {
		l.dump()
	}
}

// number assigns program points in layout order.
func (l *Liveness) number() {
	pc := regalloc.ProgramPoint(0)
	for _, b := range l.f.blocks {
		info := newBlockInfo()
		info.begin = pc
		for _, instr := range b.instrs {
			instr.point = pc
			instr.inserted = false
			pc += regalloc.PointStride
		}
		info.end = pc - regalloc.PointStride
		l.infos[b] = info
	}
}

// collect gathers the per-block local facts: def and use points, and the uses
// not preceded by a local def, which seed the live-in sets.
func (l *Liveness) collect() {
	for _, b := range l.f.blocks {
		info := l.infos[b]
		for _, instr := range b.instrs {
			if instr.op == OpDebug {
				// Debug observations must not extend any range.
				continue
			}
			for _, u := range instr.uses {
				if u.IsRealReg() {
					continue
				}
				id := u.ID()
				l.observe(u, b.loopDepth)
				if _, ok := info.defs[id]; !ok {
					info.liveIns[id] = struct{}{}
				}
				info.lastUses[id] = instr.point + regalloc.PointUse
			}
			for _, d := range instr.defs {
				if d.IsRealReg() {
					continue
				}
				id := d.ID()
				l.observe(d, b.loopDepth)
				if _, ok := info.defs[id]; !ok {
					info.defs[id] = instr.point + regalloc.PointDef
				}
				info.lastDefs[id] = instr.point + regalloc.PointDef
			}
		}
	}
}

func (l *Liveness) observe(v regalloc.VReg, depth int) {
	id := v.ID()
	if _, ok := l.regs[id]; !ok {
		l.regs[id] = v
		l.ids = append(l.ids, id)
	}
	l.weights[id] += math.Pow(10, float64(depth))
}

// propagate pushes every upward-exposed use into the predecessors.
func (l *Liveness) propagate() {
	for _, b := range l.f.blocks {
		info := l.infos[b]
		for id := range info.liveIns {
			for _, pred := range b.preds {
				l.upAndMark(pred, id)
			}
		}
	}
}

// upAndMark marks v live-out of b and climbs further up while b does not
// define it, following Up_and_Mark_Stack(B, v) of the SSA book.
func (l *Liveness) upAndMark(b *Block, v regalloc.VRegID) {
	info := l.infos[b]
	info.liveOuts[v] = struct{}{}
	if _, ok := info.defs[v]; ok {
		return
	}
	if _, ok := info.liveIns[v]; ok {
		return
	}
	info.liveIns[v] = struct{}{}
	if len(b.preds) == 0 {
		panic(fmt.Sprintf("BUG: b%d has no predecessors while requiring live-in: v%d", b.id, v))
	}
	for _, pred := range b.preds {
		l.upAndMark(pred, v)
	}
}

// assemble turns the per-block facts into one interval per block and register,
// merges them into canonical ranges, and settles the weights.
func (l *Liveness) assemble() {
	ivs := make(map[regalloc.VRegID][]regalloc.Interval)
	for _, b := range l.f.blocks {
		info := l.infos[b]
		contrib := make(map[regalloc.VRegID]struct{}, len(info.liveIns)+len(info.defs))
		for id := range info.liveIns {
			contrib[id] = struct{}{}
		}
		for id := range info.defs {
			contrib[id] = struct{}{}
		}
		for id := range info.liveOuts {
			contrib[id] = struct{}{}
		}
		for id := range contrib {
			var iv regalloc.Interval
			if _, in := info.liveIns[id]; in {
				iv.Begin = info.begin + regalloc.PointUse
			} else {
				iv.Begin = info.defs[id]
			}
			if _, out := info.liveOuts[id]; out {
				iv.End = info.end + regalloc.PointDef
			} else {
				iv.End = info.lastUses[id]
				if d, ok := info.lastDefs[id]; ok && d > iv.End {
					// A trailing dead def still occupies its def point.
					iv.End = d
				}
			}
			ivs[id] = append(ivs[id], iv)
		}
	}

	sort.Slice(l.ids, func(i, j int) bool { return l.ids[i] < l.ids[j] })
	for id, list := range ivs {
		lr := regalloc.NewLiveRange(list...)
		l.ranges[id] = lr
		// A range too short to put spill code inside cannot be shrunk by
		// spilling, so it must stay in a register.
		if n := lr.NumPoints(); n <= int64(regalloc.PointStride) {
			l.weights[id] = math.Inf(1)
		} else {
			l.weights[id] /= float64(n)
		}
	}
}

// VRegs implements regalloc.Liveness. Registers are reported in increasing id
// order.
func (l *Liveness) VRegs(dst []regalloc.VReg) []regalloc.VReg {
	for _, id := range l.ids {
		dst = append(dst, l.regs[id])
	}
	return dst
}

// RangeOf implements regalloc.Liveness.
func (l *Liveness) RangeOf(v regalloc.VReg) *regalloc.LiveRange {
	lr, ok := l.ranges[v.ID()]
	if !ok {
		return nil
	}
	return lr
}

// WeightOf implements regalloc.Liveness.
func (l *Liveness) WeightOf(v regalloc.VReg) float64 {
	return l.weights[v.ID()]
}

// PointOf implements regalloc.Liveness.
func (l *Liveness) PointOf(instr regalloc.Instr) regalloc.ProgramPoint {
	i, ok := instr.(*Instr)
	if !ok {
		panic(fmt.Sprintf("BUG: foreign instruction %s", instr))
	}
	if i.point < 0 {
		panic(fmt.Sprintf("BUG: instruction was not numbered: %s", i))
	}
	return i.point
}

func (l *Liveness) dump() {
	for _, b := range l.f.blocks {
		info := l.infos[b]
		fmt.Printf("b%d [%d,%d] depth=%d: live-ins=%v live-outs=%v\n",
			b.id, info.begin, info.end, b.loopDepth, sortedIDs(info.liveIns), sortedIDs(info.liveOuts))
	}
	for _, id := range l.ids {
		fmt.Printf("v%d: range=%s weight=%.3f\n", id, l.ranges[id], l.weights[id])
	}
}

func sortedIDs(set map[regalloc.VRegID]struct{}) []regalloc.VRegID {
	ids := make([]regalloc.VRegID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
