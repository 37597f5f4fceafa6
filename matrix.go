package regalloc

import (
	"fmt"
	"sort"

	"github.com/carbide-cc/regalloc/internal/allocapi"
)

// InterferenceKind classifies what stands between a virtual register and a
// candidate physical register. The kinds are ordered by severity: a check
// reports the worst obstacle found across the candidate's units.
type InterferenceKind uint8

const (
	// KindFree means no unit of the candidate has an overlapping occupant.
	KindFree InterferenceKind = iota
	// KindAssignedVirtual means the only obstacles are assigned virtual
	// registers, all of which could in principle be evicted.
	KindAssignedVirtual
	// KindReservedUnit means the candidate is reserved by the target, or one
	// of its units carries a fixed range (e.g. a call clobber) at an
	// overlapping point.
	KindReservedUnit
	// KindUnresolvable means an overlapping occupant is unspillable, so no
	// amount of eviction frees the candidate for this register.
	KindUnresolvable
)

// String implements fmt.Stringer.
func (k InterferenceKind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindAssignedVirtual:
		return "assigned virtual"
	case KindReservedUnit:
		return "reserved unit"
	case KindUnresolvable:
		return "unresolvable"
	default:
		return "invalid"
	}
}

// matrix is the interference matrix: it tracks, per register unit, which
// virtual registers currently occupy the unit and at which program points.
// Aliasing needs no special casing here because occupancy is recorded on
// units, not registers: assigning a register occupies all its units, and any
// register sharing one of them observes the conflict.
type matrix struct {
	topo  *topology
	store *store
	// units is indexed by RegUnit; each entry holds the occupants sorted by
	// VRegID so queries are deterministic.
	units [][]*regState
	// fixed holds per-unit ranges that are occupied by the target itself,
	// e.g. caller-saved units across call sites. nil when a unit has none.
	fixed []*LiveRange
}

func newMatrix(topo *topology, store *store) *matrix {
	n := topo.numRegUnits()
	return &matrix{
		topo:  topo,
		store: store,
		units: make([][]*regState, n),
		fixed: make([]*LiveRange, n),
	}
}

// setFixed records ranges of a unit that are permanently busy for this run.
func (m *matrix) setFixed(u RegUnit, lr *LiveRange) {
	m.fixed[u] = lr
}

func (m *matrix) liveState(v VReg) *regState {
	rs, err := m.store.live(v)
	if err != nil {
		bugf("interference matrix probed with untracked %s", v)
	}
	return rs
}

// checkInterference reports the interference kind of assigning r to v. It
// never mutates anything: repeated checks with no assignment in between
// return the same answer.
func (m *matrix) checkInterference(v VReg, r RealReg) InterferenceKind {
	if m.topo.isReserved(r) {
		return KindReservedUnit
	}
	rs := m.liveState(v)
	kind := KindFree
	for _, u := range m.topo.unitsOf(r) {
		if f := m.fixed[u]; f != nil && f.Overlaps(rs.lr) {
			return KindReservedUnit
		}
		for _, occ := range m.units[u] {
			if !occ.lr.Overlaps(rs.lr) {
				continue
			}
			if occ.unspillable {
				return KindUnresolvable
			}
			kind = KindAssignedVirtual
		}
	}
	return kind
}

// query returns the assigned virtual registers of unit u whose ranges overlap
// the range of v, in increasing VRegID order, along with whether any of them
// is unspillable.
func (m *matrix) query(v VReg, u RegUnit) (interferers []VReg, hasUnspillable bool) {
	if int(u) >= len(m.units) {
		bugf("query of unknown register unit %s", u)
	}
	rs := m.liveState(v)
	for _, occ := range m.units[u] {
		if occ.lr.Overlaps(rs.lr) {
			interferers = append(interferers, occ.v)
			hasUnspillable = hasUnspillable || occ.unspillable
		}
	}
	return
}

// assign records v as the occupant of every unit of r. The caller is expected
// to have resolved interference already; assign only re-checks occupancy
// overlap so a protocol violation cannot corrupt the matrix.
func (m *matrix) assign(v VReg, r RealReg) error {
	rs, err := m.store.live(v)
	if err != nil {
		return fmt.Errorf("assign %s: %w", v, err)
	}
	if rs.state == stateAssigned {
		return fmt.Errorf("%w: %s holds %s", ErrAlreadyAssigned, v, m.topo.name(rs.assigned))
	}
	if m.topo.isReserved(r) {
		return fmt.Errorf("%w: %s is reserved", ErrConflict, m.topo.name(r))
	}
	if allocapi.AllocValidationEnabled {
		if !m.topo.allocatable[v.RegType()].has(r) {
			bugf("%s is not allocatable for %s registers", m.topo.name(r), v.RegType())
		}
	}
	units := m.topo.unitsOf(r)
	for _, u := range units {
		if f := m.fixed[u]; f != nil && f.Overlaps(rs.lr) {
			return fmt.Errorf("%w: %s of %s is fixed at overlapping points", ErrConflict, u, m.topo.name(r))
		}
		for _, occ := range m.units[u] {
			if occ.lr.Overlaps(rs.lr) {
				return fmt.Errorf("%w: %s overlaps %s on %s of %s", ErrConflict, v, occ.v, u, m.topo.name(r))
			}
		}
	}
	for _, u := range units {
		m.insertOccupant(u, rs)
	}
	rs.state = stateAssigned
	rs.assigned = r
	return nil
}

// unassign removes v from every unit its register covers, returning it to the
// pending state.
func (m *matrix) unassign(v VReg) error {
	rs := m.store.lookup(v)
	if rs == nil || rs.state != stateAssigned {
		return fmt.Errorf("%w: %s", ErrNotAssigned, v)
	}
	for _, u := range m.topo.unitsOf(rs.assigned) {
		m.removeOccupant(u, rs)
	}
	rs.state = statePending
	rs.assigned = RealRegInvalid
	return nil
}

func (m *matrix) insertOccupant(u RegUnit, rs *regState) {
	occ := m.units[u]
	i := sort.Search(len(occ), func(i int) bool { return occ[i].v.ID() >= rs.v.ID() })
	occ = append(occ, nil)
	copy(occ[i+1:], occ[i:])
	occ[i] = rs
	m.units[u] = occ
}

func (m *matrix) removeOccupant(u RegUnit, rs *regState) {
	occ := m.units[u]
	i := sort.Search(len(occ), func(i int) bool { return occ[i].v.ID() >= rs.v.ID() })
	if i == len(occ) || occ[i] != rs {
		bugf("%s is not an occupant of %s", rs.v, u)
	}
	m.units[u] = append(occ[:i], occ[i+1:]...)
}
