package regalloc

import (
	"fmt"
	"sort"
	"strings"
)

// ProgramPoint is an opaque index into the program under allocation. Points
// are totally ordered across the whole compilation unit; the allocator never
// interprets them beyond comparison.
type ProgramPoint int64

// Program points are assigned per instruction in steps of PointStride, with
// uses observed at +PointUse and defs at +PointDef. That way an instruction
// can read and write the same register, e.g. add r0, r0, r0.
const (
	PointUse    ProgramPoint = 0
	PointDef    ProgramPoint = 1
	PointStride ProgramPoint = 2
)

// Interval is a closed range of program points. Both Begin and End are
// inclusive.
type Interval struct {
	Begin, End ProgramPoint
}

func (i Interval) intersects(other Interval) bool {
	return other.Begin <= i.End && i.Begin <= other.End
}

func (i Interval) covers(p ProgramPoint) bool {
	return i.Begin <= p && p <= i.End
}

func (i Interval) points() int64 {
	return int64(i.End-i.Begin) + 1
}

// String implements fmt.Stringer.
func (i Interval) String() string {
	return fmt.Sprintf("[%d,%d]", i.Begin, i.End)
}

// LiveRange is the set of program points at which a virtual register carries a
// live value, represented as sorted, pairwise disjoint intervals. Ranges are
// immutable once built; rewrites of the program produce fresh ranges instead
// of mutating existing ones.
type LiveRange struct {
	intervals []Interval
}

// NewLiveRange builds a LiveRange from the given intervals. Overlapping and
// adjacent intervals are coalesced, so the result is always in canonical form.
func NewLiveRange(intervals ...Interval) *LiveRange {
	l := &LiveRange{intervals: make([]Interval, 0, len(intervals))}
	for _, iv := range intervals {
		if iv.Begin > iv.End {
			bugf("inverted interval %s", iv)
		}
		l.intervals = append(l.intervals, iv)
	}
	sort.Slice(l.intervals, func(i, j int) bool {
		if l.intervals[i].Begin == l.intervals[j].Begin {
			return l.intervals[i].End < l.intervals[j].End
		}
		return l.intervals[i].Begin < l.intervals[j].Begin
	})
	merged := l.intervals[:0]
	for _, iv := range l.intervals {
		if n := len(merged); n > 0 && iv.Begin <= merged[n-1].End+1 {
			if iv.End > merged[n-1].End {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	l.intervals = merged
	return l
}

// Intervals returns the canonical intervals of this range in increasing order.
// The returned slice is shared with the range and must not be mutated.
func (l *LiveRange) Intervals() []Interval {
	return l.intervals
}

// Bounds returns the smallest interval enclosing the whole range, and false if
// the range is empty.
func (l *LiveRange) Bounds() (Interval, bool) {
	if len(l.intervals) == 0 {
		return Interval{}, false
	}
	return Interval{Begin: l.intervals[0].Begin, End: l.intervals[len(l.intervals)-1].End}, true
}

// NumPoints returns the number of program points covered by this range.
func (l *LiveRange) NumPoints() (n int64) {
	for _, iv := range l.intervals {
		n += iv.points()
	}
	return
}

// Covers returns true if p is inside this range.
func (l *LiveRange) Covers(p ProgramPoint) bool {
	_, ok := l.indexAt(p)
	return ok
}

// indexAt returns the index of the interval containing p.
func (l *LiveRange) indexAt(p ProgramPoint) (int, bool) {
	i := sort.Search(len(l.intervals), func(i int) bool {
		return l.intervals[i].End >= p
	})
	if i < len(l.intervals) && l.intervals[i].covers(p) {
		return i, true
	}
	return 0, false
}

// Overlaps returns true if the two ranges share at least one program point.
// Both interval lists are walked in lockstep, so the cost is linear in the
// total number of intervals rather than quadratic.
func (l *LiveRange) Overlaps(other *LiveRange) bool {
	a, b := l.intervals, other.intervals
	for i, j := 0, 0; i < len(a) && j < len(b); {
		if a[i].intersects(b[j]) {
			return true
		}
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return false
}

// Validate checks the canonical form invariants: every interval is well
// formed, and the list is sorted with no overlaps between entries.
func (l *LiveRange) Validate() error {
	for i, iv := range l.intervals {
		if iv.Begin > iv.End {
			return fmt.Errorf("interval %d inverted: %s", i, iv)
		}
		if i > 0 && l.intervals[i-1].End >= iv.Begin {
			return fmt.Errorf("intervals %d and %d out of order or overlapping: %s, %s",
				i-1, i, l.intervals[i-1], iv)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (l *LiveRange) String() string {
	if len(l.intervals) == 0 {
		return "[]"
	}
	var buf strings.Builder
	for _, iv := range l.intervals {
		buf.WriteString(iv.String())
	}
	return buf.String()
}
