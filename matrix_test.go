package regalloc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMatrix(info *RegisterInfo) (*matrix, *store) {
	topo := newTopology(info)
	topo.freeze()
	st := newStore()
	return newMatrix(topo, &st), &st
}

func twoIntRegInfo() *RegisterInfo {
	return &RegisterInfo{
		AllocatableRegisters: [NumRegType][]RealReg{RegTypeInt: {1, 2}},
		ReservedRegisters:    NewRegSet(9),
	}
}

func TestMatrix_checkInterference(t *testing.T) {
	m, st := newTestMatrix(twoIntRegInfo())
	v1, v2, v3 := intVReg(1), intVReg(2), intVReg(3)
	st.insert(v1, NewLiveRange(Interval{Begin: 0, End: 5}), 1, StageNew)
	st.insert(v2, NewLiveRange(Interval{Begin: 3, End: 8}), 1, StageNew)
	st.insert(v3, NewLiveRange(Interval{Begin: 10, End: 12}), 1, StageNew)

	require.Equal(t, KindFree, m.checkInterference(v2, 1))
	require.NoError(t, m.assign(v1, 1))

	require.Equal(t, KindAssignedVirtual, m.checkInterference(v2, 1))
	require.Equal(t, KindFree, m.checkInterference(v3, 1))
	require.Equal(t, KindFree, m.checkInterference(v2, 2))
	require.Equal(t, KindReservedUnit, m.checkInterference(v2, 9))

	// Checking is pure: the same question gets the same answer.
	require.Equal(t, KindAssignedVirtual, m.checkInterference(v2, 1))
	require.Equal(t, KindAssignedVirtual, m.checkInterference(v2, 1))
}

func TestMatrix_checkInterference_unresolvable(t *testing.T) {
	m, st := newTestMatrix(twoIntRegInfo())
	pinned, v2 := intVReg(1), intVReg(2)
	st.insert(pinned, NewLiveRange(Interval{Begin: 0, End: 5}), math.Inf(1), StageNew)
	st.insert(v2, NewLiveRange(Interval{Begin: 3, End: 8}), 1, StageNew)
	require.NoError(t, m.assign(pinned, 1))

	require.Equal(t, KindUnresolvable, m.checkInterference(v2, 1))
	require.Equal(t, KindFree, m.checkInterference(v2, 2))
}

func TestMatrix_fixedRanges(t *testing.T) {
	m, st := newTestMatrix(twoIntRegInfo())
	across, after := intVReg(1), intVReg(2)
	st.insert(across, NewLiveRange(Interval{Begin: 0, End: 6}), 1, StageNew)
	st.insert(after, NewLiveRange(Interval{Begin: 8, End: 9}), 1, StageNew)

	m.setFixed(m.topo.unitsOf(1)[0], NewLiveRange(Interval{Begin: 4, End: 5}))

	require.Equal(t, KindReservedUnit, m.checkInterference(across, 1))
	require.Equal(t, KindFree, m.checkInterference(after, 1))

	err := m.assign(across, 1)
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, m.assign(after, 1))
}

func TestMatrix_query(t *testing.T) {
	m, st := newTestMatrix(twoIntRegInfo())
	v1, v3, v5 := intVReg(1), intVReg(3), intVReg(5)
	st.insert(v1, NewLiveRange(Interval{Begin: 0, End: 5}), 1, StageNew)
	st.insert(v3, NewLiveRange(Interval{Begin: 10, End: 12}), math.Inf(1), StageNew)
	st.insert(v5, NewLiveRange(Interval{Begin: 4, End: 11}), 1, StageNew)
	require.NoError(t, m.assign(v1, 1))
	require.NoError(t, m.assign(v3, 1))

	u := m.topo.unitsOf(1)[0]
	interferers, hasUnspillable := m.query(v5, u)
	require.Equal(t, []VReg{v1, v3}, interferers)
	require.True(t, hasUnspillable)

	interferers, hasUnspillable = m.query(v5, m.topo.unitsOf(2)[0])
	require.Nil(t, interferers)
	require.False(t, hasUnspillable)

	require.Panics(t, func() { m.query(v5, 99) })
}

func TestMatrix_assignErrors(t *testing.T) {
	m, st := newTestMatrix(twoIntRegInfo())
	v1, v2, v3 := intVReg(1), intVReg(2), intVReg(3)
	st.insert(v1, NewLiveRange(Interval{Begin: 0, End: 5}), 1, StageNew)
	st.insert(v2, NewLiveRange(Interval{Begin: 3, End: 8}), 1, StageNew)
	st.insert(v3, NewLiveRange(Interval{Begin: 6, End: 7}), 1, StageNew)

	err := m.assign(intVReg(42), 1)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.assign(v1, 1))
	err = m.assign(v1, 2)
	require.ErrorIs(t, err, ErrAlreadyAssigned)

	err = m.assign(v2, 9)
	require.ErrorIs(t, err, ErrConflict)

	err = m.assign(v2, 1)
	require.ErrorIs(t, err, ErrConflict)

	// Disjoint ranges share a register.
	require.NoError(t, m.assign(v3, 1))

	// Class mismatches are target description bugs, not recoverable errors.
	f := floatVReg(8)
	st.insert(f, NewLiveRange(Interval{Begin: 0, End: 1}), 1, StageNew)
	require.Panics(t, func() { _ = m.assign(f, 2) })
}

func TestMatrix_assignUnassign_roundTrip(t *testing.T) {
	m, st := newTestMatrix(twoIntRegInfo())
	v1, v2, probe := intVReg(1), intVReg(2), intVReg(3)
	st.insert(v1, NewLiveRange(Interval{Begin: 0, End: 5}), 1, StageNew)
	st.insert(v2, NewLiveRange(Interval{Begin: 2, End: 3}), 1, StageNew)
	st.insert(probe, NewLiveRange(Interval{Begin: 4, End: 8}), 1, StageNew)
	require.NoError(t, m.assign(v2, 2))

	before := map[RealReg]InterferenceKind{}
	for _, r := range []RealReg{1, 2, 9} {
		before[r] = m.checkInterference(probe, r)
	}

	require.NoError(t, m.assign(v1, 1))
	require.Equal(t, KindAssignedVirtual, m.checkInterference(probe, 1))
	require.NoError(t, m.unassign(v1))

	for _, r := range []RealReg{1, 2, 9} {
		require.Equal(t, before[r], m.checkInterference(probe, r), "register %d", r)
	}
	rs := st.lookup(v1)
	require.Equal(t, statePending, rs.state)
	require.Equal(t, RealRegInvalid, rs.assigned)

	err := m.unassign(v1)
	require.ErrorIs(t, err, ErrNotAssigned)
	err = m.unassign(intVReg(42))
	require.ErrorIs(t, err, ErrNotAssigned)
}

func TestMatrix_aliasedUnits(t *testing.T) {
	const ax, al, ah = 1, 2, 3
	m, st := newTestMatrix(&RegisterInfo{
		AllocatableRegisters: [NumRegType][]RealReg{
			RegTypeInt: {ax, al, ah},
		},
		RegisterUnits: map[RealReg][]RegUnit{
			ax: {0, 1},
			al: {0},
			ah: {1},
		},
	})
	wide, lo, probe := intVReg(1), intVReg(2), intVReg(3)
	st.insert(wide, NewLiveRange(Interval{Begin: 0, End: 5}), 1, StageNew)
	st.insert(lo, NewLiveRange(Interval{Begin: 8, End: 9}), 1, StageNew)
	st.insert(probe, NewLiveRange(Interval{Begin: 3, End: 8}), 1, StageNew)

	// Occupying ax occupies both of its halves.
	require.NoError(t, m.assign(wide, ax))
	require.Equal(t, KindAssignedVirtual, m.checkInterference(probe, al))
	require.Equal(t, KindAssignedVirtual, m.checkInterference(probe, ah))

	// The low half away from wide's range is usable; taking it blocks ax but
	// not the high half.
	require.NoError(t, m.assign(lo, al))
	late := intVReg(4)
	st.insert(late, NewLiveRange(Interval{Begin: 7, End: 9}), 1, StageNew)
	require.Equal(t, KindAssignedVirtual, m.checkInterference(late, ax))
	require.Equal(t, KindAssignedVirtual, m.checkInterference(late, al))
	require.Equal(t, KindFree, m.checkInterference(late, ah))

	// Releasing ax frees both halves again.
	require.NoError(t, m.unassign(wide))
	require.Equal(t, KindFree, m.checkInterference(probe, ah))
	require.Equal(t, KindAssignedVirtual, m.checkInterference(probe, al)) // lo is still there.
}
