package regalloc

import (
	"errors"
	"fmt"
)

// Errors returned by the allocator and its components. Callers are expected to
// match them with errors.Is since most call sites wrap them with context.
var (
	// ErrNotFound is returned when a virtual register has no live range on
	// record, either because it was never registered or because it has been
	// replaced by a spill or split.
	ErrNotFound = errors.New("regalloc: live range not found")

	// ErrPrecondition is returned when a component is used before the protocol
	// allows it, e.g. querying the register topology before it is frozen.
	ErrPrecondition = errors.New("regalloc: precondition violated")

	// ErrAlreadyAssigned is returned by an assign when the virtual register
	// already holds a physical register.
	ErrAlreadyAssigned = errors.New("regalloc: virtual register already assigned")

	// ErrConflict is returned by an assign when the requested physical register
	// has an overlapping occupant on one of its register units.
	ErrConflict = errors.New("regalloc: conflicting assignment")

	// ErrNotAssigned is returned by an unassign when the virtual register holds
	// no physical register.
	ErrNotAssigned = errors.New("regalloc: virtual register not assigned")

	// ErrDuplicateEntry is returned when enqueueing a virtual register that is
	// already waiting in the allocation queue.
	ErrDuplicateEntry = errors.New("regalloc: virtual register already enqueued")

	// ErrNoProgress is returned when an allocation step neither assigns a
	// register nor strictly shrinks the remaining work, which would otherwise
	// loop forever.
	ErrNoProgress = errors.New("regalloc: allocation made no progress")

	// ErrOutOfRegisters is returned when an unspillable virtual register has no
	// usable candidate left.
	ErrOutOfRegisters = errors.New("regalloc: ran out of registers")

	// ErrUnknownStrategy is returned when the configured strategy name has not
	// been registered.
	ErrUnknownStrategy = errors.New("regalloc: unknown strategy")
)

// bugError carries an invariant violation raised via panic deep inside the
// allocator. Allocate recovers it at the public boundary and returns the
// wrapped error, so a broken invariant aborts the whole run instead of
// producing a partially rewritten function.
type bugError struct{ err error }

func (b bugError) Error() string { return b.err.Error() }

func (b bugError) Unwrap() error { return b.err }

func bugf(format string, args ...interface{}) {
	panic(bugError{err: fmt.Errorf("BUG: "+format, args...)})
}

// bugWrap panics like bugf with an error that already carries its sentinel,
// so errors.Is keeps working after Allocate recovers it.
func bugWrap(err error) {
	panic(bugError{err: err})
}
