package regalloc

import "errors"

func init() {
	RegisterStrategy("greedy", func() Strategy { return greedyStrategy{} })
}

// greedyStrategy behaves like basic, but before spilling a fragmented live
// range to memory it tries to split the range into independent pieces. The
// pieces are smaller and conflict with fewer occupants, and a split inserts
// no code, so one attempt is always worth it.
type greedyStrategy struct{}

// Name implements Strategy.
func (greedyStrategy) Name() string { return "greedy" }

// SelectOrSplit implements Strategy.
func (greedyStrategy) SelectOrSplit(sel *Selection) (Decision, error) {
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
	v := sel.VReg()
	if sel.StageOf(v) == StageNew && sel.IsSpillable(v) && len(sel.Range().Intervals()) > 1 {
		repl, err := sel.Spill(v, &SplitRequest{})
		if err == nil {
			return Decision{Replacements: repl}, nil
		}
		if !errors.Is(err, ErrPrecondition) {
			return Decision{}, err
		}
		// None of the holes was cuttable; fall through to a memory spill.
	}
	return selfSpill(sel)
}
