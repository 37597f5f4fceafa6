package allocapi

// These consts are used in various places of the allocator. Instead of defining
// them in each file, we define them here so that we can quickly iterate on
// debugging without spending "where do we have debug logging?" time.

// ----- Debug logging -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	LivenessLoggingEnabled = false
	AllocLoggingEnabled    = false
	SpillLoggingEnabled    = false
)

// ----- Validations -----
// These consts must be enabled by default until multiple releases of fuzzing pass without hits.

const (
	AllocValidationEnabled = true
)
