package regalloc

// RunConfig controls one allocation run, with the default implementation as
// NewRunConfig. A RunConfig is immutable: every With method clones it, so a
// config can be shared between concurrently running allocators.
type RunConfig struct {
	strategy   string
	ordering   QueueOrdering
	newSpiller func(f Function, live Liveness) Spiller
	iterLimit  int
	onRetire   func(VReg)
	onSnapshot func(*Snapshot)
}

// baseConfig helps avoid copy/pasting the wrong defaults.
var baseConfig = &RunConfig{
	strategy: "basic",
	ordering: WeightOrdering{},
	newSpiller: func(f Function, live Liveness) Spiller {
		return newDefaultSpiller(f, live)
	},
}

// clone ensures all fields are copied even if nil.
func (c *RunConfig) clone() *RunConfig {
	return &RunConfig{
		strategy:   c.strategy,
		ordering:   c.ordering,
		newSpiller: c.newSpiller,
		iterLimit:  c.iterLimit,
		onRetire:   c.onRetire,
		onSnapshot: c.onSnapshot,
	}
}

// NewRunConfig returns the default configuration: the "basic" strategy, the
// heaviest-first queue ordering, the program-rewriting spiller, and no
// iteration limit.
func NewRunConfig() *RunConfig {
	return baseConfig.clone()
}

// WithStrategy selects the registered strategy that drives the decisions of
// the run. Unknown names fail Allocate with ErrUnknownStrategy.
func (c *RunConfig) WithStrategy(name string) *RunConfig {
	ret := c.clone()
	ret.strategy = name
	return ret
}

// WithQueueOrdering replaces the allocation queue policy. Defaults to
// WeightOrdering if ord is nil.
func (c *RunConfig) WithQueueOrdering(ord QueueOrdering) *RunConfig {
	if ord == nil {
		ord = WeightOrdering{}
	}
	ret := c.clone()
	ret.ordering = ord
	return ret
}

// WithSpiller replaces the default program-rewriting spiller. The constructor
// is called once per run with the function and liveness of that run.
func (c *RunConfig) WithSpiller(newSpiller func(f Function, live Liveness) Spiller) *RunConfig {
	if newSpiller == nil {
		return c.clone()
	}
	ret := c.clone()
	ret.newSpiller = newSpiller
	return ret
}

// WithIterationLimit aborts the run with ErrNoProgress once it takes more
// than n decision steps. Zero disables the limit. The stage ladder already
// bounds every run; the limit is a safety net for custom strategies and
// spillers.
func (c *RunConfig) WithIterationLimit(n int) *RunConfig {
	ret := c.clone()
	ret.iterLimit = n
	return ret
}

// WithRetireHook calls h right before a virtual register is dropped from
// tracking because a spill or split replaced it. Backends use this to release
// per-register resources keyed by the id.
func (c *RunConfig) WithRetireHook(h func(VReg)) *RunConfig {
	ret := c.clone()
	ret.onRetire = h
	return ret
}

// WithSnapshotHook calls h with the final allocation state right before the
// rewritten function is finalized. The snapshot is meant for rendering and
// diagnostics; mutating it has no effect on the run.
func (c *RunConfig) WithSnapshotHook(h func(*Snapshot)) *RunConfig {
	ret := c.clone()
	ret.onSnapshot = h
	return ret
}
