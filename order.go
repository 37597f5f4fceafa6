package regalloc

// AllocationOrder yields the candidate physical registers for one virtual
// register, most preferred first. The sequence is finite, bounded by the size
// of the register class, and can be restarted from the beginning with Reset.
// Running past the end is not an error; Next simply reports false.
type AllocationOrder struct {
	regs []RealReg
	next int
}

// Next returns the next candidate, or false when the order is exhausted.
func (o *AllocationOrder) Next() (RealReg, bool) {
	if o.next >= len(o.regs) {
		return RealRegInvalid, false
	}
	r := o.regs[o.next]
	o.next++
	return r, true
}

// Reset restarts the order from the most preferred candidate.
func (o *AllocationOrder) Reset() {
	o.next = 0
}

// Len returns the total number of candidates.
func (o *AllocationOrder) Len() int {
	return len(o.regs)
}

// orderProvider builds allocation orders lazily, one virtual register at a
// time. Copy hints harvested during seeding come first, then the target's
// preference order for the class; reserved registers and duplicates are
// dropped.
type orderProvider struct {
	topo  *topology
	store *store
	// realHints holds physical registers v is copied from or to.
	realHints map[VRegID][]RealReg
	// peerHints holds virtual registers v is copied from or to. If a peer
	// already holds a register by the time v is processed, that register is
	// the best candidate: choosing it turns the copy into a no-op.
	peerHints map[VRegID][]VReg
	// order is reused across build calls; only one order is live at a time.
	order AllocationOrder
}

func newOrderProvider(topo *topology, store *store) orderProvider {
	return orderProvider{
		topo:      topo,
		store:     store,
		realHints: make(map[VRegID][]RealReg),
		peerHints: make(map[VRegID][]VReg),
	}
}

func (p *orderProvider) reset() {
	for id := range p.realHints {
		delete(p.realHints, id)
	}
	for id := range p.peerHints {
		delete(p.peerHints, id)
	}
}

func (p *orderProvider) addRealHint(v VReg, r RealReg) {
	p.realHints[v.ID()] = append(p.realHints[v.ID()], r)
}

// addPeerHint records that a and b are ends of the same copy. The hint is
// symmetric: whichever end is allocated first hints the other.
func (p *orderProvider) addPeerHint(a, b VReg) {
	p.peerHints[a.ID()] = append(p.peerHints[a.ID()], b)
	p.peerHints[b.ID()] = append(p.peerHints[b.ID()], a)
}

// build assembles the allocation order for v. The returned order is only
// valid until the next build call.
func (p *orderProvider) build(v VReg) *AllocationOrder {
	o := &p.order
	o.regs = o.regs[:0]
	o.next = 0

	typ := v.RegType()
	var seen RegSet
	push := func(r RealReg) {
		if seen.has(r) || p.topo.isReserved(r) || !p.topo.allocatable[typ].has(r) {
			return
		}
		seen = seen.add(r)
		o.regs = append(o.regs, r)
	}

	for _, peer := range p.peerHints[v.ID()] {
		if rs := p.store.lookup(peer); rs != nil && rs.state == stateAssigned {
			push(rs.assigned)
		}
	}
	for _, r := range p.realHints[v.ID()] {
		push(r)
	}
	for _, r := range p.topo.info.AllocatableRegisters[typ] {
		push(r)
	}
	return o
}
