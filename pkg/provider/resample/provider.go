// Package resample defines the Engine interface for sample-rate conversion
// backends.
//
// Resampling is modelled as a pure, stateless function: each call converts
// one block of mono samples independently. Artifacts at block boundaries are
// an accepted tradeoff of streaming resampling; engines must not carry state
// between calls, which keeps them trivially safe for concurrent use.
package resample

// Engine converts a block of mono int16 samples from srcRate to dstRate.
//
// Implementations must be pure: the same input always yields the same
// output, and no state persists between calls. When srcRate == dstRate the
// input must be returned unchanged (or an equal copy). Implementations must
// be safe for concurrent use.
type Engine interface {
	Resample(samples []int16, srcRate, dstRate int) []int16
}
