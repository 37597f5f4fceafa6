package regalloc

import (
	"fmt"

	"github.com/carbide-cc/regalloc/internal/allocapi"
)

// SplitRequest asks the spiller to dissect a live range into independent
// pieces instead of moving the value to memory.
type SplitRequest struct{}

// SpillResult describes the outcome of a spill or split.
type SpillResult struct {
	// Replacements are the fresh virtual registers the rewrite introduced in
	// place of the spilled one.
	Replacements []VReg
	// Slot is the stack slot now holding the value, or SpillSlotInvalid when
	// the rewrite was a split and no memory traffic was added.
	Slot SpillSlot
}

// Spiller rewrites the program to lower the register pressure caused by one
// virtual register. Implementations must refresh the liveness they were built
// with before returning, so the ranges and weights of the replacements are
// available; the driver takes care of the live range store bookkeeping.
type Spiller interface {
	// Spill replaces v. With a nil request the value moves to a stack slot: a
	// store is inserted after each definition and a reload before each using
	// instruction. With a split request the live range is cut at holes that
	// separate independent values, which needs no new code.
	Spill(v VReg, req *SplitRequest) (SpillResult, error)
}

// defaultSpiller implements Spiller against the Function mutation hooks.
type defaultSpiller struct {
	f    Function
	live Liveness

	spills, splits int
}

func newDefaultSpiller(f Function, live Liveness) *defaultSpiller {
	return &defaultSpiller{f: f, live: live}
}

// Spill implements Spiller.
func (s *defaultSpiller) Spill(v VReg, req *SplitRequest) (SpillResult, error) {
	if req != nil {
		return s.split(v)
	}
	return s.spillToMemory(v)
}

// spillToMemory inserts a store after every definition of v and a reload
// before every instruction using v, renaming each rewritten occurrence to a
// fresh register. The fresh registers live only from their reload or to their
// store, so each covers a small slice of the original range.
func (s *defaultSpiller) spillToMemory(v VReg) (SpillResult, error) {
	if s.live.RangeOf(v) == nil {
		return SpillResult{}, fmt.Errorf("spill %s: %w", v, ErrNotFound)
	}
	typ := v.RegType()
	slot := s.f.AllocateSpillSlot(typ)
	var children []VReg
	for blk := s.f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = s.f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			if instr.IsDebug() {
				continue
			}
			// One reload covers every use of v in the instruction.
			reload := VRegInvalid
			for i, u := range instr.Uses() {
				if u.ID() != v.ID() {
					continue
				}
				if reload == VRegInvalid {
					reload = s.f.NewVReg(typ)
					s.f.ReloadRegisterBefore(reload, slot, instr)
					children = append(children, reload)
				}
				instr.AssignUse(i, reload)
			}
			for _, d := range instr.Defs() {
				if d.ID() != v.ID() {
					continue
				}
				child := s.f.NewVReg(typ)
				instr.AssignDef(child)
				s.f.StoreRegisterAfter(child, slot, instr)
				children = append(children, child)
			}
		}
	}
	if len(children) == 0 {
		bugf("%s has no occurrences to rewrite", v)
	}
	s.live.Recompute()
	s.spills++
	if allocapi.SpillLoggingEnabled {
		fmt.Printf("spilled %s to %s: %d replacements\n", v, slot, len(children))
	}
	return SpillResult{Replacements: children, Slot: slot}, nil
}

// split cuts the live range of v at holes that separate independent values.
// A hole is only a valid cut when the interval after it begins with a
// definition of v: then nothing flows across the hole and renaming the
// occurrences on each side to different registers preserves the program. A
// hole an edge-live value jumps over (live-out of one block, live-in of a
// layout-distant successor) is not cuttable and stays inside one piece.
func (s *defaultSpiller) split(v VReg) (SpillResult, error) {
	lr := s.live.RangeOf(v)
	if lr == nil {
		return SpillResult{}, fmt.Errorf("split %s: %w", v, ErrNotFound)
	}
	ivs := lr.Intervals()

	// First walk: mark the intervals that begin with a definition of v.
	defStart := make([]bool, len(ivs))
	for blk := s.f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = s.f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			if instr.IsDebug() {
				continue
			}
			p := s.live.PointOf(instr)
			for _, d := range instr.Defs() {
				if d.ID() != v.ID() {
					continue
				}
				if idx, ok := lr.indexAt(p + PointDef); ok && ivs[idx].Begin == p+PointDef {
					defStart[idx] = true
				}
			}
		}
	}

	// Group the intervals into independent pieces.
	group := make([]int, len(ivs))
	g := 0
	for i := 1; i < len(ivs); i++ {
		if defStart[i] {
			g++
		}
		group[i] = g
	}
	if g == 0 {
		return SpillResult{}, fmt.Errorf("%w: %s has no hole to split at", ErrPrecondition, v)
	}

	// Second walk: rename every occurrence to the register of its piece.
	children := make([]VReg, g+1)
	for i := range children {
		children[i] = VRegInvalid
	}
	childAt := func(p ProgramPoint) VReg {
		idx, ok := lr.indexAt(p)
		if !ok {
			bugf("occurrence of %s at %d outside its live range %s", v, p, lr)
		}
		c := children[group[idx]]
		if c == VRegInvalid {
			c = s.f.NewVReg(v.RegType())
			children[group[idx]] = c
		}
		return c
	}
	for blk := s.f.ReversePostOrderBlockIteratorBegin(); blk != nil; blk = s.f.ReversePostOrderBlockIteratorNext() {
		for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
			if instr.IsDebug() {
				continue
			}
			p := s.live.PointOf(instr)
			for i, u := range instr.Uses() {
				if u.ID() == v.ID() {
					instr.AssignUse(i, childAt(p+PointUse))
				}
			}
			for _, d := range instr.Defs() {
				if d.ID() == v.ID() {
					instr.AssignDef(childAt(p + PointDef))
				}
			}
		}
	}

	s.live.Recompute()
	s.splits++
	compact := children[:0]
	for _, c := range children {
		if c != VRegInvalid {
			compact = append(compact, c)
		}
	}
	if allocapi.SpillLoggingEnabled {
		fmt.Printf("split %s into %d pieces\n", v, len(compact))
	}
	return SpillResult{Replacements: compact, Slot: SpillSlotInvalid}, nil
}
