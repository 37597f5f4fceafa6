package regalloc

import (
	"fmt"
	"sort"
	"strings"
)

// Following mock types are used for testing.
type (
	// mockFunction implements Function.
	mockFunction struct {
		iter      int
		blocks    []*mockBlock
		nextVReg  VRegID
		nextSlot  SpillSlot
		stores    []spillInfo
		reloads   []spillInfo
		clobbered []RealReg
		done      bool
	}

	spillInfo struct {
		v    VReg
		slot SpillSlot
		at   Instr
	}

	// mockBlock implements Block.
	mockBlock struct {
		id           int
		instructions []*mockInstr
		preds, succs []*mockBlock
		_preds       []Block
		iter         int
		_entry       bool
	}

	// mockInstr implements Instr.
	mockInstr struct {
		defs, uses                        []VReg
		isCopy, isCall, isReturn, isDebug bool
		// inserted marks instructions added by the spiller after the last
		// liveness computation; the iterators skip them until the next one.
		inserted bool
	}
)

func newMockFunction(blocks ...*mockBlock) *mockFunction {
	return &mockFunction{blocks: blocks, nextVReg: 10000}
}

func newMockBlock(id int, instructions ...*mockInstr) *mockBlock {
	return &mockBlock{id: id, instructions: instructions}
}

func newMockInstr() *mockInstr {
	return &mockInstr{}
}

// String implements fmt.Stringer for debugging.
func (m *mockFunction) String() string {
	var block []string
	for _, b := range m.blocks {
		block = append(block, "\t"+b.String())
	}
	return fmt.Sprintf("mockFunction:\n%s", strings.Join(block, ",\n"))
}

// String implements fmt.Stringer for debugging.
func (m *mockBlock) String() string {
	var preds []int
	for _, p := range m.preds {
		preds = append(preds, p.id)
	}
	return fmt.Sprintf("mockBlock{\n\tid=%v,\n\tinstructions=%v,\n\tpreds=%v,\n}", m.id, preds, m.instructions)
}

// String implements fmt.Stringer for debugging.
func (m *mockInstr) String() string {
	return fmt.Sprintf("mockInstr{defs=%v, uses=%v}", m.defs, m.uses)
}

func (m *mockBlock) addPred(b *mockBlock) {
	m.preds = append(m.preds, b)
	m._preds = append(m._preds, b)
	b.succs = append(b.succs, m)
}

func (m *mockBlock) entry() *mockBlock {
	m._entry = true
	return m
}

func (m *mockInstr) use(uses ...VReg) *mockInstr {
	m.uses = uses
	return m
}

func (m *mockInstr) def(defs ...VReg) *mockInstr {
	m.defs = defs
	return m
}

func (m *mockInstr) asCopy() *mockInstr {
	m.isCopy = true
	return m
}

func (m *mockInstr) asCall() *mockInstr {
	m.isCall = true
	return m
}

func (m *mockInstr) asReturn() *mockInstr {
	m.isReturn = true
	return m
}

func (m *mockInstr) asDebug() *mockInstr {
	m.isDebug = true
	return m
}

// PostOrderBlockIteratorBegin implements Function.
func (m *mockFunction) PostOrderBlockIteratorBegin() Block {
	m.iter = 1
	l := len(m.blocks)
	return m.blocks[l-1]
}

// PostOrderBlockIteratorNext implements Function.
func (m *mockFunction) PostOrderBlockIteratorNext() Block {
	if m.iter == len(m.blocks) {
		return nil
	}
	l := len(m.blocks)
	ret := m.blocks[l-m.iter-1]
	m.iter++
	return ret
}

// ReversePostOrderBlockIteratorBegin implements Function.
func (m *mockFunction) ReversePostOrderBlockIteratorBegin() Block {
	m.iter = 1
	return m.blocks[0]
}

// ReversePostOrderBlockIteratorNext implements Function.
func (m *mockFunction) ReversePostOrderBlockIteratorNext() Block {
	if m.iter == len(m.blocks) {
		return nil
	}
	ret := m.blocks[m.iter]
	m.iter++
	return ret
}

// NewVReg implements Function.
func (m *mockFunction) NewVReg(typ RegType) VReg {
	v := VReg(m.nextVReg).SetRegType(typ)
	m.nextVReg++
	return v
}

// AllocateSpillSlot implements Function.
func (m *mockFunction) AllocateSpillSlot(RegType) SpillSlot {
	s := m.nextSlot
	m.nextSlot++
	return s
}

// StoreRegisterAfter implements Function.
func (m *mockFunction) StoreRegisterAfter(v VReg, slot SpillSlot, instr Instr) {
	m.stores = append(m.stores, spillInfo{v, slot, instr})
	m.insertAround(instr, true, newMockInstr().use(v))
}

// ReloadRegisterBefore implements Function.
func (m *mockFunction) ReloadRegisterBefore(v VReg, slot SpillSlot, instr Instr) {
	m.reloads = append(m.reloads, spillInfo{v, slot, instr})
	m.insertAround(instr, false, newMockInstr().def(v))
}

func (m *mockFunction) insertAround(target Instr, after bool, ni *mockInstr) {
	ni.inserted = true
	for _, b := range m.blocks {
		for i, instr := range b.instructions {
			if Instr(instr) != target {
				continue
			}
			at := i
			if after {
				at = i + 1
			}
			b.instructions = append(b.instructions, nil)
			copy(b.instructions[at+1:], b.instructions[at:])
			b.instructions[at] = ni
			// Keep an in-flight iteration from revisiting consumed
			// instructions the insertion shifted.
			if at < b.iter {
				b.iter++
			}
			return
		}
	}
	panic("target instruction is not in the function")
}

// ClobberedRegisters implements Function.
func (m *mockFunction) ClobberedRegisters(regs []RealReg) {
	m.clobbered = regs
}

// Done implements Function.
func (m *mockFunction) Done() { m.done = true }

// ID implements Block.
func (m *mockBlock) ID() int {
	return m.id
}

// InstrIteratorBegin implements Block.
func (m *mockBlock) InstrIteratorBegin() Instr {
	m.iter = 0
	return m.InstrIteratorNext()
}

// InstrIteratorNext implements Block.
func (m *mockBlock) InstrIteratorNext() Instr {
	for m.iter < len(m.instructions) {
		ret := m.instructions[m.iter]
		m.iter++
		if !ret.inserted {
			return ret
		}
	}
	return nil
}

// Preds implements Block.
func (m *mockBlock) Preds() []Block { return m._preds }

// Entry implements Block.
func (m *mockBlock) Entry() bool { return m._entry }

// Defs implements Instr.
func (m *mockInstr) Defs() []VReg {
	return m.defs
}

// Uses implements Instr.
func (m *mockInstr) Uses() []VReg {
	return m.uses
}

// AssignUse implements Instr.
func (m *mockInstr) AssignUse(index int, reg VReg) {
	m.uses[index] = reg
}

// AssignDef implements Instr.
func (m *mockInstr) AssignDef(reg VReg) {
	m.defs = []VReg{reg}
}

// IsCopy implements Instr.
func (m *mockInstr) IsCopy() bool { return m.isCopy }

// IsCall implements Instr.
func (m *mockInstr) IsCall() bool { return m.isCall }

// IsReturn implements Instr.
func (m *mockInstr) IsReturn() bool { return m.isReturn }

// IsDebug implements Instr.
func (m *mockInstr) IsDebug() bool { return m.isDebug }

var (
	_ Function = (*mockFunction)(nil)
	_ Block    = (*mockBlock)(nil)
	_ Instr    = (*mockInstr)(nil)
	_ Liveness = (*testLiveness)(nil)
)

func intVReg(id int) VReg { return VReg(id).SetRegType(RegTypeInt) }

func floatVReg(id int) VReg { return VReg(id).SetRegType(RegTypeFloat) }

// testLiveness computes live ranges over the mock types with a textbook
// backward dataflow pass. It is the reference Liveness the driver and spiller
// tests run against; the ir package ships the production implementation.
type testLiveness struct {
	f       *mockFunction
	points  map[*mockInstr]ProgramPoint
	ranges  map[VRegID]*LiveRange
	weights map[VRegID]float64
	vs      []VReg
	// weightOverrides pins the weight of chosen registers regardless of the
	// computed default, so tests can steer queue order and eviction.
	weightOverrides map[VRegID]float64
}

func newTestLiveness(f *mockFunction) *testLiveness {
	l := &testLiveness{f: f, weightOverrides: map[VRegID]float64{}}
	l.Recompute()
	return l
}

func (l *testLiveness) setWeight(v VReg, w float64) *testLiveness {
	l.weightOverrides[v.ID()] = w
	return l
}

// VRegs implements Liveness.
func (l *testLiveness) VRegs(dst []VReg) []VReg {
	return append(dst, l.vs...)
}

// RangeOf implements Liveness.
func (l *testLiveness) RangeOf(v VReg) *LiveRange {
	return l.ranges[v.ID()]
}

// WeightOf implements Liveness.
func (l *testLiveness) WeightOf(v VReg) float64 {
	if w, ok := l.weightOverrides[v.ID()]; ok {
		return w
	}
	return l.weights[v.ID()]
}

// PointOf implements Liveness.
func (l *testLiveness) PointOf(instr Instr) ProgramPoint {
	p, ok := l.points[instr.(*mockInstr)]
	if !ok {
		panic("instruction was not numbered")
	}
	return p
}

// Recompute implements Liveness.
func (l *testLiveness) Recompute() {
	l.points = map[*mockInstr]ProgramPoint{}
	l.ranges = map[VRegID]*LiveRange{}
	l.weights = map[VRegID]float64{}
	l.vs = l.vs[:0]

	// Instructions inserted since the last computation join the numbering.
	type span struct{ begin, end ProgramPoint }
	blockSpan := make([]span, len(l.f.blocks))
	p := ProgramPoint(0)
	for bi, b := range l.f.blocks {
		blockSpan[bi].begin = p
		for _, instr := range b.instructions {
			instr.inserted = false
			l.points[instr] = p
			p += PointStride
		}
		blockSpan[bi].end = p - PointStride
	}

	// Block-local upward-exposed uses and defs, debug instructions excluded.
	nb := len(l.f.blocks)
	index := map[*mockBlock]int{}
	uses := make([]map[VRegID]struct{}, nb)
	defs := make([]map[VRegID]struct{}, nb)
	for bi, b := range l.f.blocks {
		index[b] = bi
		uses[bi], defs[bi] = map[VRegID]struct{}{}, map[VRegID]struct{}{}
		for _, instr := range b.instructions {
			if instr.isDebug {
				continue
			}
			for _, u := range instr.uses {
				if u.IsRealReg() {
					continue
				}
				if _, defined := defs[bi][u.ID()]; !defined {
					uses[bi][u.ID()] = struct{}{}
				}
			}
			for _, d := range instr.defs {
				if d.IsRealReg() {
					continue
				}
				defs[bi][d.ID()] = struct{}{}
			}
		}
	}

	liveIn := make([]map[VRegID]struct{}, nb)
	liveOut := make([]map[VRegID]struct{}, nb)
	for i := range liveIn {
		liveIn[i], liveOut[i] = map[VRegID]struct{}{}, map[VRegID]struct{}{}
	}
	for changed := true; changed; {
		changed = false
		for bi := nb - 1; bi >= 0; bi-- {
			b := l.f.blocks[bi]
			for _, s := range b.succs {
				for id := range liveIn[index[s]] {
					if _, ok := liveOut[bi][id]; !ok {
						liveOut[bi][id] = struct{}{}
						changed = true
					}
				}
			}
			grow := func(id VRegID) {
				if _, ok := liveIn[bi][id]; !ok {
					liveIn[bi][id] = struct{}{}
					changed = true
				}
			}
			for id := range uses[bi] {
				grow(id)
			}
			for id := range liveOut[bi] {
				if _, defined := defs[bi][id]; !defined {
					grow(id)
				}
			}
		}
	}

	// Assemble the intervals with a backward walk per block.
	typs := map[VRegID]RegType{}
	occurrences := map[VRegID]int{}
	intervals := map[VRegID][]Interval{}
	for bi, b := range l.f.blocks {
		end := map[VRegID]ProgramPoint{}
		for id := range liveOut[bi] {
			end[id] = blockSpan[bi].end + PointDef
		}
		for ii := len(b.instructions) - 1; ii >= 0; ii-- {
			instr := b.instructions[ii]
			if instr.isDebug {
				continue
			}
			p := l.points[instr]
			for _, d := range instr.defs {
				if d.IsRealReg() {
					continue
				}
				id := d.ID()
				typs[id] = d.RegType()
				occurrences[id]++
				e, live := end[id]
				if !live {
					e = p + PointDef // dead def
				}
				intervals[id] = append(intervals[id], Interval{Begin: p + PointDef, End: e})
				delete(end, id)
			}
			for _, u := range instr.uses {
				if u.IsRealReg() {
					continue
				}
				id := u.ID()
				typs[id] = u.RegType()
				occurrences[id]++
				if _, live := end[id]; !live {
					end[id] = p + PointUse
				}
			}
		}
		for id, e := range end {
			// Still live at the block head, i.e. live-in.
			intervals[id] = append(intervals[id], Interval{Begin: blockSpan[bi].begin + PointUse, End: e})
		}
	}

	ids := make([]VRegID, 0, len(intervals))
	for id := range intervals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		l.ranges[id] = NewLiveRange(intervals[id]...)
		l.weights[id] = float64(occurrences[id])
		l.vs = append(l.vs, VReg(id).SetRegType(typs[id]))
	}
}
