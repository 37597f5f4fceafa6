package ir

import (
	"fmt"
	"strings"

	"github.com/carbide-cc/regalloc"
)

// Opcode enumerates the instructions of the representation. The set is small
// on purpose: enough to express the control flow and register pressure
// patterns the allocator cares about, and nothing else.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	// OpNop does nothing.
	OpNop
	// OpConst materializes an immediate into a register.
	OpConst
	// OpAdd and OpMul are representative two-operand arithmetic.
	OpAdd
	OpMul
	// OpCopy moves one register into another. Copies feed allocation hints.
	OpCopy
	// OpLoad reads memory at an address register; OpStore writes a value
	// register to an address register.
	OpLoad
	OpStore
	// OpSpillStore and OpSpillReload move a register to and from a spill
	// slot. The allocator inserts them; they are also parseable so spilled
	// programs round-trip.
	OpSpillStore
	OpSpillReload
	// OpCall transfers to a named function and may define a result.
	OpCall
	// OpJmp, OpBrz and OpRet terminate or leave a block. OpBrz branches to
	// its target when the operand is zero and falls through otherwise.
	OpJmp
	OpBrz
	OpRet
	// OpDebug observes registers for debug info without keeping them alive.
	OpDebug
)

var opNames = [...]string{
	OpInvalid:     "invalid",
	OpNop:         "nop",
	OpConst:       "const",
	OpAdd:         "add",
	OpMul:         "mul",
	OpCopy:        "copy",
	OpLoad:        "load",
	OpStore:       "store",
	OpSpillStore:  "spill.store",
	OpSpillReload: "spill.reload",
	OpCall:        "call",
	OpJmp:         "jmp",
	OpBrz:         "brz",
	OpRet:         "ret",
	OpDebug:       "debug",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "invalid"
}

// Instr is one instruction. It implements regalloc.Instr.
type Instr struct {
	op     Opcode
	defs   []regalloc.VReg
	uses   []regalloc.VReg
	imm    int64
	callee string
	target *Block
	slot   regalloc.SpillSlot

	blk      *Block
	point    regalloc.ProgramPoint
	inserted bool
}

func newInstr(op Opcode) *Instr {
	return &Instr{op: op, slot: regalloc.SpillSlotInvalid, point: -1}
}

// Op returns the instruction's opcode.
func (i *Instr) Op() Opcode { return i.op }

// Defs implements regalloc.Instr.
func (i *Instr) Defs() []regalloc.VReg { return i.defs }

// Uses implements regalloc.Instr.
func (i *Instr) Uses() []regalloc.VReg { return i.uses }

// AssignUse implements regalloc.Instr.
func (i *Instr) AssignUse(index int, v regalloc.VReg) {
	i.uses[index] = v
}

// AssignDef implements regalloc.Instr.
func (i *Instr) AssignDef(v regalloc.VReg) {
	if len(i.defs) == 0 {
		panic(fmt.Sprintf("BUG: AssignDef on %s which defines nothing", i.op))
	}
	i.defs[0] = v
}

// IsCopy implements regalloc.Instr.
func (i *Instr) IsCopy() bool { return i.op == OpCopy }

// IsCall implements regalloc.Instr.
func (i *Instr) IsCall() bool { return i.op == OpCall }

// IsReturn implements regalloc.Instr.
func (i *Instr) IsReturn() bool { return i.op == OpRet }

// IsDebug implements regalloc.Instr.
func (i *Instr) IsDebug() bool { return i.op == OpDebug }

// String implements fmt.Stringer. The output is the parseable textual form.
func (i *Instr) String() string {
	switch i.op {
	case OpNop:
		return "nop"
	case OpConst:
		return fmt.Sprintf("%s = const %d", operand(i.defs[0]), i.imm)
	case OpAdd, OpMul:
		return fmt.Sprintf("%s = %s %s, %s", operand(i.defs[0]), i.op, operand(i.uses[0]), operand(i.uses[1]))
	case OpCopy:
		return fmt.Sprintf("%s = copy %s", operand(i.defs[0]), operand(i.uses[0]))
	case OpLoad:
		return fmt.Sprintf("%s = load %s", operand(i.defs[0]), operand(i.uses[0]))
	case OpStore:
		return fmt.Sprintf("store %s, %s", operand(i.uses[0]), operand(i.uses[1]))
	case OpSpillStore:
		return fmt.Sprintf("spill.store %s, s%d", operand(i.uses[0]), i.slot)
	case OpSpillReload:
		return fmt.Sprintf("%s = spill.reload s%d", operand(i.defs[0]), i.slot)
	case OpCall:
		if len(i.defs) > 0 {
			return fmt.Sprintf("%s = call @%s(%s)", operand(i.defs[0]), i.callee, i.operandList())
		}
		return fmt.Sprintf("call @%s(%s)", i.callee, i.operandList())
	case OpJmp:
		return fmt.Sprintf("jmp b%d", i.target.id)
	case OpBrz:
		return fmt.Sprintf("brz %s, b%d", operand(i.uses[0]), i.target.id)
	case OpRet:
		if len(i.uses) > 0 {
			return "ret " + operand(i.uses[0])
		}
		return "ret"
	case OpDebug:
		return "debug " + i.operandList()
	default:
		return "invalid"
	}
}

func (i *Instr) operandList() string {
	parts := make([]string, len(i.uses))
	for k, u := range i.uses {
		parts[k] = operand(u)
	}
	return strings.Join(parts, ", ")
}

// operand renders a register operand: rN once a physical register backs it,
// otherwise vN or fN by class.
func operand(v regalloc.VReg) string {
	switch {
	case v.IsRealReg():
		return v.RealReg().String()
	case v.RegType() == regalloc.RegTypeFloat:
		return fmt.Sprintf("f%d", v.ID())
	default:
		return fmt.Sprintf("v%d", v.ID())
	}
}
