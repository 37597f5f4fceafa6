// Package ir is a small reference program representation for driving the
// register allocator: basic blocks of three-address instructions over virtual
// registers, a line-based text format to parse and print them, and a liveness
// analysis producing the live ranges the allocator consumes.
//
// The package exists so the allocator can be exercised, tested and debugged
// without a full compiler backend. Real backends implement the interfaces in
// the regalloc package against their own instruction representation instead.
package ir

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/carbide-cc/regalloc"
)

var (
	_ regalloc.Function = (*Function)(nil)
	_ regalloc.Block    = (*Block)(nil)
	_ regalloc.Instr    = (*Instr)(nil)
)

// Each spill slot holds one register-sized value.
const spillSlotBytes = 8

// Function is a parsed function: blocks in layout order plus the CFG built
// over them. It implements regalloc.Function, so it can be handed straight to
// Allocator.Allocate together with a Liveness over it.
type Function struct {
	// Name is the function's symbol, without the leading @. May be empty.
	Name string

	blocks []*Block
	post   []*Block
	rpo    []*Block

	postIdx, rpoIdx int

	nextID regalloc.VRegID
	slots  []regalloc.RegType

	clobbered []regalloc.RealReg
	spillArea int
	done      bool
}

func newFunction(name string) *Function {
	// Low ids are reserved for RealReg-backed operands, so fresh virtual
	// registers never collide with them.
	return &Function{Name: name, nextID: regalloc.VRegIDNonReservedBegin}
}

// Blocks returns the blocks in layout order. The returned slice is shared
// with the function and must not be mutated.
func (f *Function) Blocks() []*Block { return f.blocks }

// SpillAreaSize returns the size in bytes of the spill area the allocation
// run carved out. Only valid once the run is done.
func (f *Function) SpillAreaSize() int { return f.spillArea }

// PostOrderBlockIteratorBegin implements regalloc.Function.
func (f *Function) PostOrderBlockIteratorBegin() regalloc.Block {
	f.postIdx = 0
	return f.postNext()
}

// PostOrderBlockIteratorNext implements regalloc.Function.
func (f *Function) PostOrderBlockIteratorNext() regalloc.Block {
	return f.postNext()
}

func (f *Function) postNext() regalloc.Block {
	if f.postIdx >= len(f.post) {
		return nil
	}
	b := f.post[f.postIdx]
	f.postIdx++
	return b
}

// ReversePostOrderBlockIteratorBegin implements regalloc.Function.
func (f *Function) ReversePostOrderBlockIteratorBegin() regalloc.Block {
	f.rpoIdx = 0
	return f.rpoNext()
}

// ReversePostOrderBlockIteratorNext implements regalloc.Function.
func (f *Function) ReversePostOrderBlockIteratorNext() regalloc.Block {
	return f.rpoNext()
}

func (f *Function) rpoNext() regalloc.Block {
	if f.rpoIdx >= len(f.rpo) {
		return nil
	}
	b := f.rpo[f.rpoIdx]
	f.rpoIdx++
	return b
}

// NewVReg implements regalloc.Function.
func (f *Function) NewVReg(typ regalloc.RegType) regalloc.VReg {
	v := regalloc.VReg(f.nextID).SetRegType(typ)
	f.nextID++
	return v
}

// AllocateSpillSlot implements regalloc.Function.
func (f *Function) AllocateSpillSlot(typ regalloc.RegType) regalloc.SpillSlot {
	f.slots = append(f.slots, typ)
	return regalloc.SpillSlot(len(f.slots) - 1)
}

// StoreRegisterAfter implements regalloc.Function.
func (f *Function) StoreRegisterAfter(v regalloc.VReg, slot regalloc.SpillSlot, instr regalloc.Instr) {
	at := instr.(*Instr)
	st := newInstr(OpSpillStore)
	st.uses = append(st.uses, v)
	st.slot = slot
	at.blk.insertNear(st, at, true)
}

// ReloadRegisterBefore implements regalloc.Function.
func (f *Function) ReloadRegisterBefore(v regalloc.VReg, slot regalloc.SpillSlot, instr regalloc.Instr) {
	at := instr.(*Instr)
	ld := newInstr(OpSpillReload)
	ld.defs = append(ld.defs, v)
	ld.slot = slot
	at.blk.insertNear(ld, at, false)
}

// ClobberedRegisters implements regalloc.Function.
func (f *Function) ClobberedRegisters(regs []regalloc.RealReg) {
	f.clobbered = slices.Clone(regs)
}

// Done implements regalloc.Function.
func (f *Function) Done() {
	f.spillArea = len(f.slots) * spillSlotBytes
	f.done = true
}

// String returns the textual form of the function. Parsing it back yields an
// equivalent function.
func (f *Function) String() string {
	var sb strings.Builder
	if f.Name != "" {
		fmt.Fprintf(&sb, "fn @%s:\n", f.Name)
	}
	for _, b := range f.blocks {
		fmt.Fprintf(&sb, "b%d:\n", b.id)
		for _, instr := range b.instrs {
			sb.WriteString("  ")
			sb.WriteString(instr.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// finalize builds the CFG over the parsed blocks: successor and predecessor
// edges, the traversal orders, and the loop depth of every block. It rejects
// layouts whose control flow is broken.
func (f *Function) finalize() error {
	if len(f.blocks) == 0 {
		return fmt.Errorf("function %q has no blocks", f.Name)
	}
	entry := f.blocks[0]
	entry.entry = true

	for i, b := range f.blocks {
		if len(b.instrs) == 0 {
			return fmt.Errorf("b%d: empty block", b.id)
		}
		fall := true
		for j, instr := range b.instrs {
			switch instr.op {
			case OpJmp, OpRet:
				if j != len(b.instrs)-1 {
					return fmt.Errorf("b%d: unreachable code after %q", b.id, instr)
				}
				if instr.op == OpJmp {
					b.addSucc(instr.target)
				}
				fall = false
			case OpBrz:
				b.addSucc(instr.target)
			}
		}
		if fall {
			if i == len(f.blocks)-1 {
				return fmt.Errorf("b%d: control falls off the end of the function", b.id)
			}
			b.addSucc(f.blocks[i+1])
		}
	}
	for _, b := range f.blocks {
		for _, s := range b.succs {
			if !slices.Contains(s.preds, b) {
				s.preds = append(s.preds, b)
			}
		}
	}

	seen := make(map[*Block]bool, len(f.blocks))
	f.post = f.post[:0]
	var walk func(*Block)
	walk = func(b *Block) {
		seen[b] = true
		for _, s := range b.succs {
			if !seen[s] {
				walk(s)
			}
		}
		f.post = append(f.post, b)
	}
	walk(entry)
	for _, b := range f.blocks {
		if !seen[b] {
			return fmt.Errorf("b%d: unreachable block", b.id)
		}
	}
	f.rpo = make([]*Block, len(f.post))
	for i, b := range f.post {
		f.rpo[len(f.post)-1-i] = b
	}

	for _, b := range f.blocks {
		b.predCache = b.predCache[:0]
		for _, p := range b.preds {
			b.predCache = append(b.predCache, p)
		}
	}

	// A back edge u->h closes a loop; every block between the header and the
	// latch in reverse post-order is inside it. This is an approximation of
	// natural loops that holds for reducible CFGs.
	rpoIdx := make(map[*Block]int, len(f.rpo))
	for i, b := range f.rpo {
		rpoIdx[b] = i
	}
	for _, u := range f.blocks {
		for _, h := range u.succs {
			if rpoIdx[h] > rpoIdx[u] {
				continue
			}
			for _, b := range f.rpo[rpoIdx[h] : rpoIdx[u]+1] {
				b.loopDepth++
			}
		}
	}
	return nil
}

// Block is a basic block: an instruction list plus its position in the CFG.
// It implements regalloc.Block.
type Block struct {
	id     int
	instrs []*Instr
	preds  []*Block
	succs  []*Block

	predCache []regalloc.Block
	iter      int
	loopDepth int
	entry     bool
}

// ID implements regalloc.Block.
func (b *Block) ID() int { return b.id }

// Entry implements regalloc.Block.
func (b *Block) Entry() bool { return b.entry }

// Preds implements regalloc.Block.
func (b *Block) Preds() []regalloc.Block { return b.predCache }

// LoopDepth returns the loop nesting depth of the block; 0 means not inside
// any loop.
func (b *Block) LoopDepth() int { return b.loopDepth }

// Instrs returns the instructions in layout order, including any spill code
// inserted by the allocator. The returned slice is shared with the block and
// must not be mutated.
func (b *Block) Instrs() []*Instr { return b.instrs }

// InstrIteratorBegin implements regalloc.Block.
func (b *Block) InstrIteratorBegin() regalloc.Instr {
	b.iter = 0
	return b.iterNext()
}

// InstrIteratorNext implements regalloc.Block.
func (b *Block) InstrIteratorNext() regalloc.Instr {
	return b.iterNext()
}

func (b *Block) iterNext() regalloc.Instr {
	for b.iter < len(b.instrs) {
		instr := b.instrs[b.iter]
		b.iter++
		if instr.inserted {
			continue
		}
		return instr
	}
	return nil
}

func (b *Block) addSucc(s *Block) {
	if !slices.Contains(b.succs, s) {
		b.succs = append(b.succs, s)
	}
}

// insertNear splices ni into the block right before or after at. The new
// instruction is marked inserted, so instruction iterators skip it until the
// next liveness computation numbers it in.
func (b *Block) insertNear(ni, at *Instr, after bool) {
	for i, instr := range b.instrs {
		if instr != at {
			continue
		}
		pos := i
		if after {
			pos++
		}
		b.instrs = append(b.instrs, nil)
		copy(b.instrs[pos+1:], b.instrs[pos:])
		b.instrs[pos] = ni
		ni.blk = b
		ni.inserted = true
		// Keep an in-flight iteration from revisiting instructions the
		// insertion shifted.
		if pos < b.iter {
			b.iter++
		}
		return
	}
	panic(fmt.Sprintf("BUG: %s is not in b%d", at, b.id))
}
