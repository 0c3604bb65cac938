package benchutil

import (
	"os"
	"testing"
)

// BenchmarkSeed is the default seed for reproducible benchmark data generation.
const BenchmarkSeed = 42

// BenchmarkSizes are ASN counts for quick runs.
var BenchmarkSizes = []int{1000, 10000, 50000}

// ScalingDays are snapshot counts for the long-running scaling benchmarks,
// enabled with ASORG_LONG_BENCH=1.
var ScalingDays = []int{30, 365, 1000}

// SkipIfNoLongBench skips the benchmark if ASORG_LONG_BENCH is not set.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("ASORG_LONG_BENCH") == "" {
		b.Skip("set ASORG_LONG_BENCH=1 to run scaling benchmark")
	}
}
