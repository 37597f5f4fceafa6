package regalloc

import "fmt"

// VReg represents a register operand of the program under allocation. A VReg
// may or may not be backed by a physical register, and the info of the physical
// register can be obtained by RealReg.
type VReg uint64

// VRegID is the lower 32bit of VReg, which is the pure identifier of VReg
// without RealReg info.
type VRegID uint32

// RealReg returns the RealReg of this VReg.
func (v VReg) RealReg() RealReg {
	return RealReg(v >> 32)
}

// IsRealReg returns true if this VReg is backed by a physical register.
func (v VReg) IsRealReg() bool {
	return v.RealReg() != RealRegInvalid
}

// FromRealReg returns a VReg from the given RealReg and RegType.
// This is used to represent a specific pre-colored register.
func FromRealReg(r RealReg, typ RegType) VReg {
	rid := VRegID(r)
	if rid > vRegIDReservedForRealNum {
		panic(fmt.Sprintf("invalid real reg %d", r))
	}
	return VReg(r).SetRealReg(r).SetRegType(typ)
}

// SetRealReg sets the RealReg of this VReg and returns the updated VReg.
func (v VReg) SetRealReg(r RealReg) VReg {
	return VReg(r)<<32 | (v & 0xff_00_ffffffff)
}

// RegType returns the RegType of this VReg.
func (v VReg) RegType() RegType {
	return RegType(v >> 40)
}

// SetRegType sets the RegType of this VReg and returns the updated VReg.
func (v VReg) SetRegType(t RegType) VReg {
	return VReg(t)<<40 | (v & 0x00_ff_ffffffff)
}

// ID returns the VRegID of this VReg.
func (v VReg) ID() VRegID {
	return VRegID(v & 0xffffffff)
}

// Valid returns true if this VReg is Valid.
func (v VReg) Valid() bool {
	return v.ID() != vRegIDInvalid && v.RegType() != RegTypeInvalid
}

// RealReg represents a physical register.
type RealReg byte

const RealRegInvalid RealReg = 0

// RealRegsNumMax is the maximum number of physical registers a target may
// describe. It is bounded by the RegSet representation.
const RealRegsNumMax = 64

const (
	vRegIDInvalid            VRegID = 1 << 31
	VRegIDNonReservedBegin          = vRegIDReservedForRealNum
	vRegIDReservedForRealNum VRegID = 128
	VRegInvalid                     = VReg(vRegIDInvalid)
)

// String implements fmt.Stringer.
func (r RealReg) String() string {
	switch r {
	case RealRegInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("r%d", r)
	}
}

// String implements fmt.Stringer.
func (v VReg) String() string {
	if v.IsRealReg() {
		return fmt.Sprintf("r%d", v.ID())
	}
	return fmt.Sprintf("v%d", v.ID())
}

// RegType represents the type of a register, which doubles as its register
// class: a VReg of type t may only be assigned a register from the
// allocatable set of t.
type RegType byte

const (
	RegTypeInvalid RegType = iota
	RegTypeInt
	RegTypeFloat
	NumRegType
)

// String implements fmt.Stringer.
func (r RegType) String() string {
	switch r {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	default:
		return "invalid"
	}
}

// RegUnit is an atom of the register file for interference purposes. Every
// physical register covers one or more units, and two physical registers
// alias each other if and only if they share a unit. Simple targets map each
// register to exactly one unit; targets with sub-registers (e.g. AL/AH under
// AX) or overlapping banks (e.g. Fn/Vn) share units between registers.
type RegUnit uint16

// String implements fmt.Stringer.
func (u RegUnit) String() string {
	return fmt.Sprintf("u%d", u)
}

// SpillSlot identifies a stack slot in the spill area owned by the function
// under allocation.
type SpillSlot int32

// SpillSlotInvalid means the register was never spilled.
const SpillSlotInvalid SpillSlot = -1

// String implements fmt.Stringer.
func (s SpillSlot) String() string {
	if s == SpillSlotInvalid {
		return "slot?"
	}
	return fmt.Sprintf("slot%d", s)
}
