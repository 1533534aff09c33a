// Package linear implements resample.Engine using linear interpolation.
//
// Linear interpolation is cheap enough for the real-time audio path and
// adequate for the speech band; downstream recognition is far more sensitive
// to level and noise than to interpolation error.
package linear

import "github.com/clariohq/clario/pkg/provider/resample"

// Engine is a stateless linear-interpolation resampler.
type Engine struct{}

// New returns a linear resampler.
func New() *Engine {
	return &Engine{}
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Invalid rates and same-rate calls return the input
// unchanged.
func (e *Engine) Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

var _ resample.Engine = (*Engine)(nil)
