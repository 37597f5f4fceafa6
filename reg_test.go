package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVReg_packing(t *testing.T) {
	v := VReg(42).SetRegType(RegTypeFloat)
	require.Equal(t, VRegID(42), v.ID())
	require.Equal(t, RegTypeFloat, v.RegType())
	require.False(t, v.IsRealReg())
	require.True(t, v.Valid())
	require.Equal(t, "v42", v.String())

	backed := v.SetRealReg(3)
	require.Equal(t, RealReg(3), backed.RealReg())
	require.True(t, backed.IsRealReg())
	// The id and the type survive the assignment.
	require.Equal(t, VRegID(42), backed.ID())
	require.Equal(t, RegTypeFloat, backed.RegType())
}

func TestVReg_invalid(t *testing.T) {
	require.False(t, VRegInvalid.Valid())
	// A type-less register is not usable as an operand.
	require.False(t, VReg(1).Valid())
	require.True(t, VReg(1).SetRegType(RegTypeInt).Valid())
}

func TestFromRealReg(t *testing.T) {
	v := FromRealReg(50, RegTypeInt)
	require.True(t, v.IsRealReg())
	require.Equal(t, RealReg(50), v.RealReg())
	require.Equal(t, VRegID(50), v.ID())
	require.Equal(t, RegTypeInt, v.RegType())

	require.Panics(t, func() { FromRealReg(200, RegTypeInt) })
}

func TestRegSet(t *testing.T) {
	rs := NewRegSet(3, 1, 40)
	require.True(t, rs.has(1))
	require.True(t, rs.has(3))
	require.True(t, rs.has(40))
	require.False(t, rs.has(2))

	var got []RealReg
	rs.Range(func(r RealReg) { got = append(got, r) })
	require.Equal(t, []RealReg{1, 3, 40}, got)

	// Registers beyond the representable bound are silently dropped.
	require.False(t, NewRegSet(RealRegsNumMax).has(RealRegsNumMax))
}

func TestRegSet_format(t *testing.T) {
	info := &RegisterInfo{RealRegName: func(r RealReg) string {
		return map[RealReg]string{1: "ax", 2: "cx"}[r]
	}}
	require.Equal(t, "ax, cx", NewRegSet(2, 1).format(info))
}

func TestSpillSlot_String(t *testing.T) {
	require.Equal(t, "slot?", SpillSlotInvalid.String())
	require.Equal(t, "slot3", SpillSlot(3).String())
}
