package regalloc

import "fmt"

func init() {
	RegisterStrategy("basic", func() Strategy { return basicStrategy{} })
}

// basicStrategy assigns the first free candidate in the allocation order,
// then falls back to evicting strictly lighter interferers, then to spilling
// the candidate itself.
type basicStrategy struct{}

// Name implements Strategy.
func (basicStrategy) Name() string { return "basic" }

// SelectOrSplit implements Strategy.
func (basicStrategy) SelectOrSplit(sel *Selection) (Decision, error) {
	if r, ok := firstFree(sel); ok {
		return Decision{Assign: r}, nil
	}
	r, ok, err := evictLighter(sel)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return Decision{Assign: r}, nil
	}
	return selfSpill(sel)
}

// firstFree scans the allocation order for a candidate with no interference.
func firstFree(sel *Selection) (RealReg, bool) {
	ord := sel.Order()
	ord.Reset()
	for r, ok := ord.Next(); ok; r, ok = ord.Next() {
		if sel.Check(r) == KindFree {
			return r, true
		}
	}
	return RealRegInvalid, false
}

// evictLighter looks for a candidate whose interferers are all strictly
// lighter than the current register, evicts them, and claims the register.
// Strictness matters: evicting an equal-weight register could ping-pong
// between the two forever.
func evictLighter(sel *Selection) (RealReg, bool, error) {
	w := sel.WeightOf(sel.VReg())
	ord := sel.Order()
	ord.Reset()
	for r, ok := ord.Next(); ok; r, ok = ord.Next() {
		if sel.Check(r) != KindAssignedVirtual {
			continue
		}
		ifs, _ := sel.Interferers(r)
		evictable := len(ifs) > 0
		for _, itf := range ifs {
			if !sel.IsSpillable(itf) || sel.WeightOf(itf) >= w {
				evictable = false
				break
			}
		}
		if !evictable {
			continue
		}
		if err := sel.Evict(ifs...); err != nil {
			return RealRegInvalid, false, err
		}
		return r, true, nil
	}
	return RealRegInvalid, false, nil
}

// selfSpill spills the candidate, or fails the run when it is unspillable:
// partial allocations are useless to a backend, so running out of registers
// must surface as an error.
func selfSpill(sel *Selection) (Decision, error) {
	v := sel.VReg()
	if !sel.IsSpillable(v) {
		return Decision{}, fmt.Errorf("%w: %s is unspillable and every candidate interferes", ErrOutOfRegisters, v)
	}
	repl, err := sel.Spill(v, nil)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Replacements: repl}, nil
}
