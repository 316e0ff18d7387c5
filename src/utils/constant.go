package utils

// -----------------------------------------------------------------------------

// Defaults applied when the configuration leaves a value unset.
const (
	// DefaultMaxPoints bounds the size of a single series, both on input and
	// for resample output.
	DefaultMaxPoints = 1_000_000

	DefaultSessionCacheSize = 256
	DefaultRetentionDays    = 7
	DefaultMIC              = "xnys"
)
