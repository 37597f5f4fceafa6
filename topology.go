package regalloc

import "fmt"

// RegisterInfo holds the statically-known ISA-specific register information.
// Target packages build one of these from their architecture tables; tests
// build small synthetic ones.
type RegisterInfo struct {
	// AllocatableRegisters is a 2D array of allocatable RealReg, indexed by
	// RegType and candidate position. The order matters: the first element is
	// the most preferred one when allocating.
	AllocatableRegisters [NumRegType][]RealReg
	CalleeSavedRegisters RegSet
	CallerSavedRegisters RegSet
	// RegisterUnits maps a RealReg to the architectural units it covers.
	// Registers sharing a unit alias each other. Registers absent from the
	// table are given one implicit unit of their own, so simple targets can
	// leave this nil.
	RegisterUnits map[RealReg][]RegUnit
	// ReservedRegisters are permanently claimed by the target (stack pointer,
	// platform register, ...). They are excluded from every allocation order
	// and their units always report interference.
	ReservedRegisters RegSet
	// RealRegName returns the name of the given RealReg for debugging.
	RealRegName func(r RealReg) string
}

func (r *RegisterInfo) isCalleeSaved(reg RealReg) bool {
	return r.CalleeSavedRegisters.has(reg)
}

func (r *RegisterInfo) isCallerSaved(reg RealReg) bool {
	return r.CallerSavedRegisters.has(reg)
}

// topology is the frozen view of the target register file the interference
// matrix works against. It resolves every physical register to its register
// units and answers reservation queries. The topology must be frozen before
// the first query; it never changes afterwards, so lookups are plain slice
// reads.
type topology struct {
	info *RegisterInfo
	// units is indexed by RealReg. Registers the target never described have
	// a nil entry, and probing them is a bug.
	units [RealRegsNumMax][]RegUnit
	// allocatable caches the candidate set per register class.
	allocatable [NumRegType]RegSet
	nUnits      int
	frozen      bool
}

func newTopology(info *RegisterInfo) *topology {
	t := &topology{info: info}

	for typ, regs := range info.AllocatableRegisters {
		for _, r := range regs {
			if info.ReservedRegisters.has(r) {
				bugf("%s is both allocatable and reserved", t.name(r))
			}
			t.allocatable[typ] = t.allocatable[typ].add(r)
		}
	}

	// Explicit units keep the ids the target chose.
	max := -1
	for r, units := range info.RegisterUnits {
		if r >= RealRegsNumMax {
			bugf("%s is beyond the register file bound", t.name(r))
		}
		if len(units) == 0 {
			bugf("%s has an empty unit list", t.name(r))
		}
		t.units[r] = units
		for _, u := range units {
			if int(u) > max {
				max = int(u)
			}
		}
	}
	// Every other register that can be probed gets an implicit unit of its
	// own: allocatable registers and reserved registers.
	next := RegUnit(max + 1)
	assign := func(r RealReg) {
		if t.units[r] != nil {
			return
		}
		t.units[r] = []RegUnit{next}
		next++
	}
	for _, regs := range info.AllocatableRegisters {
		for _, r := range regs {
			assign(r)
		}
	}
	info.ReservedRegisters.Range(assign)
	t.nUnits = int(next)
	return t
}

func (t *topology) name(r RealReg) string {
	if t.info != nil && t.info.RealRegName != nil {
		return t.info.RealRegName(r)
	}
	return r.String()
}

// freeze marks the topology immutable and queryable. Freezing twice is a
// no-op.
func (t *topology) freeze() {
	t.frozen = true
}

func (t *topology) checkFrozen() {
	if !t.frozen {
		bugWrap(fmt.Errorf("%w: register topology queried before freeze", ErrPrecondition))
	}
}

// unitsOf returns the register units covered by r. Probing a register the
// target never described is a target description bug.
func (t *topology) unitsOf(r RealReg) []RegUnit {
	t.checkFrozen()
	units := t.units[r]
	if units == nil {
		bugf("%s has no register units", t.name(r))
	}
	return units
}

// isReserved returns true if r is permanently claimed by the target.
func (t *topology) isReserved(r RealReg) bool {
	t.checkFrozen()
	return t.info.ReservedRegisters.has(r)
}

// numRegUnits returns the total number of register units, which bounds the
// occupancy tables of the interference matrix.
func (t *topology) numRegUnits() int {
	t.checkFrozen()
	return t.nUnits
}
