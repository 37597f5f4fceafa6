// Package regalloc assigns physical registers to the virtual registers of a
// compilation unit. The algorithm can work on any ISA or IR by implementing
// the interfaces in api.go; the ir package ships a reference implementation.
//
// A run proceeds in three phases. Seeding registers every live virtual
// register with the live range store and the allocation queue. Assigning
// drains the queue, letting the configured strategy pick a register for each
// candidate or replace it via the spiller, while the interference matrix
// guards register units against overlapping occupants. Once the queue is
// empty the assignments are applied to the program and the run is done.
package regalloc

// References:
// * https://en.wikipedia.org/wiki/Register_allocation
// * https://llvm.org/ProjectsWithLLVM/2004-Fall-CS426-LS.pdf
// * https://pfalcon.github.io/ssabook/latest/book-full.pdf: Chapter 9. for liveness.

// NewAllocator returns a new Allocator working against the given register
// file description.
func NewAllocator(regInfo *RegisterInfo) Allocator {
	return Allocator{
		regInfo: regInfo,
		store:   newStore(),
	}
}

// Allocator is a register allocator. It is not safe for concurrent use; run
// one Allocator per compilation unit, or Reset it between runs.
type Allocator struct {
	// regInfo is static per ABI/ISA and never mutated by the allocator.
	regInfo *RegisterInfo
	topo    *topology
	store   store

	// Per-run state, rebuilt by Allocate.
	queue      *allocQueue
	orders     orderProvider
	m          *matrix
	spiller    Spiller
	phase      phase
	steps      int
	evictions  int
	callPoints []ProgramPoint
	vs         []VReg
}

// Reset resets the allocator's internal state so that it can be reused.
func (a *Allocator) Reset() {
	a.store.reset()
	a.queue = nil
	a.m = nil
	a.spiller = nil
	a.phase = phaseSeeding
	a.steps = 0
	a.evictions = 0
	a.callPoints = a.callPoints[:0]
	a.vs = a.vs[:0]
}
