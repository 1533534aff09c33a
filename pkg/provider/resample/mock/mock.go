// Package mock provides a test double for the resample package interface.
package mock

import (
	"sync"

	"github.com/clariohq/clario/pkg/provider/resample"
)

// ResampleCall records a single invocation of Engine.Resample.
type ResampleCall struct {
	// Samples is a copy of the input block.
	Samples []int16

	// SrcRate and DstRate are the requested rates.
	SrcRate int
	DstRate int
}

// Engine is a mock implementation of resample.Engine.
type Engine struct {
	mu sync.Mutex

	// Output, if non-nil, is returned by every Resample call. When nil, the
	// input is returned unchanged (identity resampler).
	Output []int16

	// ResampleCalls records every call in order.
	ResampleCalls []ResampleCall
}

// Resample records the call and returns Output or the input.
func (e *Engine) Resample(samples []int16, srcRate, dstRate int) []int16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	e.ResampleCalls = append(e.ResampleCalls, ResampleCall{Samples: cp, SrcRate: srcRate, DstRate: dstRate})
	if e.Output != nil {
		return e.Output
	}
	return samples
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ResampleCalls = nil
}

// Ensure Engine implements resample.Engine at compile time.
var _ resample.Engine = (*Engine)(nil)
