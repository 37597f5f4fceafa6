package regalloc

import "fmt"

// These interfaces are implemented by the program representation under
// allocation to abstract away its details, and allow the allocator to work on
// any ISA or IR. The ir package ships a reference implementation; compiler
// backends embed their own.

type (
	// Function is the top-level interface to do register allocation, which
	// corresponds to a CFG containing Block(s). It also carries the mutation
	// hooks the spiller uses to rewrite the program.
	Function interface {
		// PostOrderBlockIteratorBegin returns the first block in the post-order traversal of the CFG.
		// In other words, the last blocks in the CFG will be returned first.
		PostOrderBlockIteratorBegin() Block
		// PostOrderBlockIteratorNext returns the next block in the post-order traversal of the CFG.
		PostOrderBlockIteratorNext() Block
		// ReversePostOrderBlockIteratorBegin returns the first block in the reverse post-order traversal of the CFG.
		// In other words, the entry block is returned first.
		ReversePostOrderBlockIteratorBegin() Block
		// ReversePostOrderBlockIteratorNext returns the next block in the reverse post-order traversal of the CFG.
		ReversePostOrderBlockIteratorNext() Block
		// NewVReg mints a fresh virtual register of the given type. The
		// spiller uses it to name the values produced by its rewrites.
		NewVReg(typ RegType) VReg
		// AllocateSpillSlot reserves a stack slot suitable for a value of the
		// given type and returns its identifier.
		AllocateSpillSlot(typ RegType) SpillSlot
		// StoreRegisterAfter inserts a store of v to slot right after instr.
		StoreRegisterAfter(v VReg, slot SpillSlot, instr Instr)
		// ReloadRegisterBefore inserts a reload of v from slot right before instr.
		ReloadRegisterBefore(v VReg, slot SpillSlot, instr Instr)
		// ClobberedRegisters tells the implementation which callee-saved
		// registers ended up allocated, so it can save and restore them.
		ClobberedRegisters([]RealReg)
		// Done tells the implementation that register allocation is done, and
		// it can finalize the spill area layout.
		Done()
	}

	// Block is a basic block in the CFG of a function, and it consists of multiple instructions, and predecessor Block(s).
	Block interface {
		// ID returns the unique identifier of this block.
		ID() int
		// InstrIteratorBegin returns the first instruction in this block. Instructions inserted by the spiller
		// since the last liveness computation must be skipped.
		// Note: multiple Instr(s) will not be held at the same time, so it's safe to use the same impl for the return Instr.
		InstrIteratorBegin() Instr
		// InstrIteratorNext returns the next instruction in this block. Instructions inserted by the spiller
		// since the last liveness computation must be skipped.
		// Note: multiple Instr(s) will not be held at the same time, so it's safe to use the same impl for the return Instr.
		InstrIteratorNext() Instr
		// Preds returns the predecessors of this block in the CFG.
		// Note: multiple returned []Block will not be used at the same time, so it's safe to use the same slice for []Block.
		Preds() []Block
		// Entry returns true if the block is for the entry block.
		Entry() bool
	}

	// Instr is an instruction in a block, abstracting away the underlying ISA.
	Instr interface {
		fmt.Stringer

		// Defs returns the virtual registers defined by this instruction.
		// Note: multiple returned []VReg will not be held at the same time, so it's safe to use the same slice for this.
		Defs() []VReg
		// Uses returns the virtual registers used by this instruction.
		// Note: multiple returned []VReg will not be held at the same time, so it's safe to use the same slice for this.
		Uses() []VReg
		// AssignUse replaces the index-th use operand with v. The allocator
		// calls it both to rename operands during spilling and to substitute
		// the RealReg-backed registers when allocation completes.
		AssignUse(index int, v VReg)
		// AssignDef replaces the def operand with v. This only accepts one register because
		// multi-def instructions (i.e. call instructions) are not allocation targets.
		AssignDef(v VReg)
		// IsCopy returns true if this instruction is a move instruction between two registers.
		// The allocator harvests allocation hints from copies: giving both ends
		// the same register makes the copy a no-op.
		IsCopy() bool
		// IsCall returns true if this instruction is a call instruction. The result is used to insert
		// caller saved register spills and restores.
		IsCall() bool
		// IsReturn returns true if this instruction is a return instruction.
		IsReturn() bool
		// IsDebug returns true if this instruction only observes values for
		// debug info purposes. Debug instructions do not extend live ranges
		// and their operands are not allocation targets.
		IsDebug() bool
	}

	// Liveness supplies live ranges and spill weights for the virtual
	// registers of a Function, and refreshes them after the spiller rewrites
	// the program.
	Liveness interface {
		// VRegs appends every virtual register that has a non-empty live
		// range to dst and returns it. The order must be deterministic.
		VRegs(dst []VReg) []VReg
		// RangeOf returns the live range of v, or nil if v has none.
		RangeOf(v VReg) *LiveRange
		// WeightOf returns the spill weight of v. Returning +Inf marks v as
		// unspillable.
		WeightOf(v VReg) float64
		// PointOf returns the program point of instr as of the last
		// computation. Uses of instr live at PointOf+PointUse, defs at
		// PointOf+PointDef.
		PointOf(instr Instr) ProgramPoint
		// Recompute renumbers the program, including instructions inserted
		// since the last computation, and rebuilds all ranges and weights.
		Recompute()
	}
)
