package regalloc

import (
	"container/heap"
	"fmt"
)

// QueueItem is the view of a pending virtual register that an ordering policy
// gets to see.
type QueueItem struct {
	VReg   VReg
	Weight float64
	// Seq is the registration order of the register in the live range store.
	// Re-enqueued registers keep their original Seq, so eviction does not
	// shuffle tie-breaks.
	Seq int
}

// QueueOrdering decides which pending virtual register the driver processes
// next. Implementations must be pure: Less may be called many times per
// enqueue and must not retain the items.
type QueueOrdering interface {
	// Less reports whether a must be dequeued before b.
	Less(a, b QueueItem) bool
}

// WeightOrdering is the default policy: heaviest spill weight first, ties
// broken by registration order so runs are reproducible.
type WeightOrdering struct{}

// Less implements QueueOrdering.
func (WeightOrdering) Less(a, b QueueItem) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Seq < b.Seq
}

// allocQueue is the allocation queue: the worklist of virtual registers that
// still need a decision. A register can be waiting at most once; re-enqueueing
// after a dequeue (eviction, split products) is legal.
type allocQueue struct {
	h       entryHeap
	present map[VRegID]struct{}
}

func newAllocQueue(ord QueueOrdering) *allocQueue {
	return &allocQueue{
		h:       entryHeap{ord: ord},
		present: make(map[VRegID]struct{}),
	}
}

func (q *allocQueue) reset(ord QueueOrdering) {
	q.h.items = q.h.items[:0]
	q.h.ord = ord
	for id := range q.present {
		delete(q.present, id)
	}
}

// enqueue adds it to the worklist, or reports ErrDuplicateEntry if its
// register is already waiting.
func (q *allocQueue) enqueue(it QueueItem) error {
	if _, ok := q.present[it.VReg.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, it.VReg)
	}
	q.present[it.VReg.ID()] = struct{}{}
	heap.Push(&q.h, it)
	return nil
}

// dequeue removes and returns the highest priority register, or false when
// the worklist is empty.
func (q *allocQueue) dequeue() (VReg, bool) {
	if q.h.Len() == 0 {
		return VRegInvalid, false
	}
	it := heap.Pop(&q.h).(QueueItem)
	delete(q.present, it.VReg.ID())
	return it.VReg, true
}

func (q *allocQueue) len() int {
	return q.h.Len()
}

// entryHeap adapts the ordering policy to container/heap.
type entryHeap struct {
	items []QueueItem
	ord   QueueOrdering
}

func (h *entryHeap) Len() int { return len(h.items) }

func (h *entryHeap) Less(i, j int) bool { return h.ord.Less(h.items[i], h.items[j]) }

func (h *entryHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *entryHeap) Push(x interface{}) {
	h.items = append(h.items, x.(QueueItem))
}

func (h *entryHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}
