package regalloc

import (
	"fmt"
	"sort"
	"sync"
)

// Decision is the outcome of one strategy step for one virtual register.
// Exactly one of the two fields must be populated: a register to assign, or
// the non-empty replacements a spill or split produced. Returning neither
// would defer the register without changing anything, which cannot make
// progress and aborts the run.
type Decision struct {
	Assign       RealReg
	Replacements []VReg
}

// Strategy decides what happens to each virtual register the driver dequeues.
// Implementations are registered by name with RegisterStrategy and picked via
// RunConfig.WithStrategy.
type Strategy interface {
	// Name returns the registered name.
	Name() string
	// SelectOrSplit inspects the state exposed by sel and either picks a
	// register for the candidate or replaces it through sel.Spill.
	SelectOrSplit(sel *Selection) (Decision, error)
}

// Selection is the fixed capability surface a strategy works through: the
// candidate register, its allocation order, interference queries, read access
// to the live range store, and the eviction and spill actions. One Selection
// is alive per decision step; strategies must not retain it.
type Selection struct {
	v       VReg
	rs      *regState
	order   *AllocationOrder
	m       *matrix
	st      *store
	live    Liveness
	spiller Spiller
	// refresh re-fetches the live ranges a program rewrite renumbered. The
	// driver installs it; Spill calls it right after the spiller returns.
	refresh func(spilled *regState)
	// evicted collects the registers unassigned during this step so the
	// driver can re-enqueue them.
	evicted []VReg
}

// VReg returns the candidate virtual register.
func (s *Selection) VReg() VReg {
	return s.v
}

// Order returns the allocation order of the candidate.
func (s *Selection) Order() *AllocationOrder {
	return s.order
}

// Range returns the live range of the candidate.
func (s *Selection) Range() *LiveRange {
	return s.rs.lr
}

func (s *Selection) stateOf(v VReg) *regState {
	rs, err := s.st.live(v)
	if err != nil {
		bugf("strategy queried untracked %s", v)
	}
	return rs
}

// WeightOf returns the spill weight of a tracked register.
func (s *Selection) WeightOf(v VReg) float64 {
	return s.stateOf(v).weight
}

// StageOf returns the pipeline stage of a tracked register.
func (s *Selection) StageOf(v VReg) Stage {
	return s.stateOf(v).stage
}

// IsSpillable reports whether a tracked register may be spilled or split.
func (s *Selection) IsSpillable(v VReg) bool {
	return s.stateOf(v).spillable()
}

// Check reports the interference kind of assigning r to the candidate.
func (s *Selection) Check(r RealReg) InterferenceKind {
	return s.m.checkInterference(s.v, r)
}

// Interferers returns the assigned virtual registers standing between the
// candidate and r, across all units of r, deduplicated and in increasing id
// order.
func (s *Selection) Interferers(r RealReg) (vs []VReg, hasUnspillable bool) {
	for _, u := range s.m.topo.unitsOf(r) {
		us, unsp := s.m.query(s.v, u)
		vs = append(vs, us...)
		hasUnspillable = hasUnspillable || unsp
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID() < vs[j].ID() })
	out := vs[:0]
	for i, v := range vs {
		if i == 0 || v.ID() != vs[i-1].ID() {
			out = append(out, v)
		}
	}
	return out, hasUnspillable
}

// Evict unassigns the given registers, freeing their units. The driver
// re-enqueues every evicted register after the step completes.
func (s *Selection) Evict(vs ...VReg) error {
	for _, v := range vs {
		if err := s.m.unassign(v); err != nil {
			return err
		}
		s.evicted = append(s.evicted, v)
	}
	return nil
}

// Spill replaces v through the spiller and keeps the live range store in
// sync: the replacements are registered one stage up the ladder and v is
// retired. The returned registers are what the strategy puts in
// Decision.Replacements.
func (s *Selection) Spill(v VReg, req *SplitRequest) ([]VReg, error) {
	rs, err := s.st.live(v)
	if err != nil {
		return nil, fmt.Errorf("spill %s: %w", v, err)
	}
	if rs.state != statePending {
		return nil, fmt.Errorf("%w: spill of %s while %s", ErrPrecondition, v, rs.state)
	}
	if rs.unspillable {
		return nil, fmt.Errorf("%w: %s is unspillable", ErrPrecondition, v)
	}
	res, err := s.spiller.Spill(v, req)
	if err != nil {
		return nil, err
	}
	if len(res.Replacements) == 0 {
		bugf("spiller returned no replacements for %s", v)
	}
	// The rewrite renumbered the program, so every range handed out before it
	// is stale. Refresh them before registering the replacements.
	if s.refresh != nil {
		s.refresh(rs)
	}
	stage := StageMemory
	if req != nil {
		stage = StageSplit
	}
	for _, c := range res.Replacements {
		lr := s.live.RangeOf(c)
		if lr == nil {
			bugf("replacement %s of %s has no live range", c, v)
		}
		s.st.insert(c, lr, s.live.WeightOf(c), stage)
	}
	if res.Slot != SpillSlotInvalid {
		s.st.retireToSlot(rs, res.Slot)
	} else {
		s.st.retire(rs)
	}
	return res.Replacements, nil
}

var (
	strategiesMu sync.RWMutex
	strategies   = make(map[string]func() Strategy)
)

// RegisterStrategy makes a strategy available to RunConfig.WithStrategy under
// the given name. It panics if the name is already taken, so registration
// conflicts surface at init time rather than mid-compilation.
func RegisterStrategy(name string, factory func() Strategy) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	if factory == nil {
		panic("regalloc: RegisterStrategy with nil factory")
	}
	if _, dup := strategies[name]; dup {
		panic("regalloc: RegisterStrategy called twice for " + name)
	}
	strategies[name] = factory
}

// Strategies returns the sorted names of the registered strategies.
func Strategies() []string {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newStrategy(name string) (Strategy, error) {
	strategiesMu.RLock()
	factory, ok := strategies[name]
	strategiesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownStrategy, name, Strategies())
	}
	return factory(), nil
}
