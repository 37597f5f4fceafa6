package regalloc

import (
	"math"

	"github.com/carbide-cc/regalloc/internal/allocapi"
)

// Stage tracks how far a virtual register has advanced through the split and
// spill pipeline. Every spill or split product sits strictly higher on the
// ladder than the register it replaced, and the ladder is finite, which is
// what bounds the total amount of allocation work.
type Stage uint8

const (
	// StageNew registers come straight from seeding. They may be split or
	// spilled.
	StageNew Stage = iota
	// StageSplit registers were produced by a live range split. They may be
	// spilled but not split again.
	StageSplit
	// StageMemory registers were produced by a memory spill. They are
	// unspillable and must be assigned.
	StageMemory
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageSplit:
		return "split"
	case StageMemory:
		return "memory"
	default:
		return "invalid"
	}
}

// lifecycle is the exclusive state of a tracked virtual register. A register
// is in exactly one state at any time; the transitions are
// pending->assigned (and back on eviction), pending->spilled, and
// pending->retired (replaced by split products).
type lifecycle uint8

const (
	statePending lifecycle = iota
	stateAssigned
	stateSpilled
	stateRetired
)

func (l lifecycle) String() string {
	switch l {
	case statePending:
		return "pending"
	case stateAssigned:
		return "assigned"
	case stateSpilled:
		return "spilled"
	case stateRetired:
		return "retired"
	default:
		return "invalid"
	}
}

// regState is the per-virtual-register record of the live range store.
type regState struct {
	v  VReg
	lr *LiveRange
	// weight is the spill weight. +Inf marks the register unspillable.
	weight float64
	// seq is the registration order, used for deterministic tie-breaking.
	seq         int
	state       lifecycle
	assigned    RealReg
	slot        SpillSlot
	stage       Stage
	unspillable bool
}

func (rs *regState) spillable() bool {
	return !rs.unspillable
}

// store is the live range store: the authoritative record of every virtual
// register known to the current run, its live range, spill weight, and
// lifecycle state. It is populated during seeding and only mutated afterwards
// by spill application.
type store struct {
	pool allocapi.Pool[regState]
	byID map[VRegID]*regState
	// all holds the records in registration order for deterministic iteration.
	all []*regState
	seq int
	// onRetire fires right before a register leaves the pending population,
	// i.e. when a spill or split replaces it.
	onRetire func(VReg)
}

func newStore() store {
	return store{
		pool: allocapi.NewPool[regState](),
		byID: make(map[VRegID]*regState),
	}
}

func (s *store) reset() {
	s.pool.Reset()
	for id := range s.byID {
		delete(s.byID, id)
	}
	s.all = s.all[:0]
	s.seq = 0
	s.onRetire = nil
}

// insert registers v with the given live range and weight. Inserting an
// already tracked id is a protocol violation.
func (s *store) insert(v VReg, lr *LiveRange, weight float64, stage Stage) *regState {
	if _, ok := s.byID[v.ID()]; ok {
		bugf("%s is already tracked by the live range store", v)
	}
	if lr == nil || len(lr.intervals) == 0 {
		bugf("%s has an empty live range", v)
	}
	rs := s.pool.Allocate()
	*rs = regState{
		v:           v,
		lr:          lr,
		weight:      weight,
		seq:         s.seq,
		state:       statePending,
		assigned:    RealRegInvalid,
		slot:        SpillSlotInvalid,
		stage:       stage,
		unspillable: math.IsInf(weight, 1) || stage == StageMemory,
	}
	s.seq++
	s.byID[v.ID()] = rs
	s.all = append(s.all, rs)
	return rs
}

// lookup returns the record of v regardless of its state, or nil.
func (s *store) lookup(v VReg) *regState {
	return s.byID[v.ID()]
}

// live returns the record of v while it still owns its live range. Unknown,
// spilled, and retired registers report ErrNotFound.
func (s *store) live(v VReg) (*regState, error) {
	rs := s.byID[v.ID()]
	if rs == nil || rs.state == stateSpilled || rs.state == stateRetired {
		return nil, ErrNotFound
	}
	return rs, nil
}

// rangeOf returns the live range of v, or ErrNotFound once v has been
// replaced by a spill or split.
func (s *store) rangeOf(v VReg) (*LiveRange, error) {
	rs, err := s.live(v)
	if err != nil {
		return nil, err
	}
	return rs.lr, nil
}

// weightOf returns the spill weight of v under the same visibility rules as
// rangeOf.
func (s *store) weightOf(v VReg) (float64, error) {
	rs, err := s.live(v)
	if err != nil {
		return 0, err
	}
	return rs.weight, nil
}

// retireToSlot moves v to the spilled state, recording the slot its value now
// lives in. The live range is dropped: subsequent rangeOf calls report
// ErrNotFound.
func (s *store) retireToSlot(rs *regState, slot SpillSlot) {
	if rs.state != statePending {
		bugf("%s spilled while %s", rs.v, rs.state)
	}
	if s.onRetire != nil {
		s.onRetire(rs.v)
	}
	rs.state = stateSpilled
	rs.slot = slot
	rs.lr = nil
}

// retire moves v to the retired state after a split replaced it.
func (s *store) retire(rs *regState) {
	if rs.state != statePending {
		bugf("%s retired while %s", rs.v, rs.state)
	}
	if s.onRetire != nil {
		s.onRetire(rs.v)
	}
	rs.state = stateRetired
	rs.lr = nil
}
