package regalloc

// Snapshot is a point-in-time view of the allocation outcome, captured right
// before the rewritten function is finalized. It exists for rendering and
// diagnostics; mutating it has no effect on the run.
type Snapshot struct {
	// Nodes holds one entry per virtual register that reached a final state,
	// in registration order.
	Nodes []SnapshotNode
	// Edges connects nodes whose live ranges overlap, i.e. the interference
	// edges among the registers that stayed in the register file.
	Edges []SnapshotEdge
}

// SnapshotNode is the final state of one virtual register.
type SnapshotNode struct {
	VReg   VReg
	Weight float64
	Stage  Stage
	// Assigned is the physical register, or RealRegInvalid when the value
	// was spilled to Slot.
	Assigned RealReg
	Slot     SpillSlot
	// RegName is the target's name for Assigned, empty when spilled.
	RegName string
}

// SnapshotEdge is an interference edge. A and B index Snapshot.Nodes.
type SnapshotEdge struct {
	A, B int
}
