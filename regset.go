package regalloc

import "strings"

// NewRegSet returns a new RegSet with the given registers.
func NewRegSet(regs ...RealReg) RegSet {
	var ret RegSet
	for _, r := range regs {
		ret = ret.add(r)
	}
	return ret
}

// RegSet represents a set of physical registers.
type RegSet uint64

func (rs RegSet) format(info *RegisterInfo) string {
	var ret []string
	for i := 0; i < RealRegsNumMax; i++ {
		if rs&(1<<uint(i)) != 0 {
			ret = append(ret, info.RealRegName(RealReg(i)))
		}
	}
	return strings.Join(ret, ", ")
}

func (rs RegSet) has(r RealReg) bool {
	return rs&(1<<uint(r)) != 0
}

func (rs RegSet) add(r RealReg) RegSet {
	if r >= RealRegsNumMax {
		return rs
	}
	return rs | 1<<uint(r)
}

// Range calls f for every register in the set in increasing order.
func (rs RegSet) Range(f func(r RealReg)) {
	for i := 0; i < RealRegsNumMax; i++ {
		if rs&(1<<uint(i)) != 0 {
			f(RealReg(i))
		}
	}
}
