package metrics

// Namespace prefixes every metric exported by the ledger service.
const Namespace = "harberger"

// Common buckets for different types of measurements
var (
	// DurationBuckets for request/operation durations (1ms to 30s)
	DurationBuckets = []float64{
		.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30,
	}

	// CountBuckets for sweep sizes and similar counts
	CountBuckets = []float64{
		1, 2, 5, 10, 25, 50, 100, 250, 500, 1000,
	}
)
