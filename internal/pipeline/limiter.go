package pipeline

import "math"

// LimiterConfig tunes the soft-knee peak limiter.
type LimiterConfig struct {
	// Threshold is the normalized amplitude above which limiting engages.
	Threshold float64

	// Knee is the width of the soft transition band centred on Threshold.
	Knee float64
}

// DefaultLimiterConfig returns a quasi-transparent limiter: negligible
// effect on well-behaved signal, progressively stronger compression only
// near and above threshold.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Threshold: 0.95,
		Knee:      0.05,
	}
}

// Limiter is a soft-knee peak limiter over normalized float amplitude.
// It operates in three regions per sample:
//
//   - below threshold - knee/2, the signal passes unchanged;
//   - within the knee band, quadratic compression smoothly reduces gain as
//     amplitude approaches the threshold, preserving sign;
//   - above threshold + knee/2, a tanh saturation curve asymptotically
//     approaches but never exceeds full scale.
//
// A final hard clamp to [-1, 1] guarantees the output never exceeds the
// representable range regardless of upstream gain. Stateless; safe to share.
type Limiter struct {
	cfg       LimiterConfig
	kneeStart float64
	kneeEnd   float64
}

// NewLimiter creates a limiter with the given threshold and knee width.
func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{
		cfg:       cfg,
		kneeStart: cfg.Threshold - cfg.Knee/2,
		kneeEnd:   cfg.Threshold + cfg.Knee/2,
	}
}

// Process limits the chunk in place. The chunk is normalized float amplitude.
func (l *Limiter) Process(chunk []float64) {
	for i, s := range chunk {
		abs := math.Abs(s)

		switch {
		case abs <= l.kneeStart:
			// Pass through.

		case abs <= l.kneeEnd:
			// Quadratic compression inside the knee band.
			kneeRatio := (abs - l.kneeStart) / l.cfg.Knee
			compression := 1 - 0.5*kneeRatio*kneeRatio
			limited := l.kneeStart + (abs-l.kneeStart)*compression
			chunk[i] = math.Copysign(limited, s)

		default:
			// Soft saturation above the knee, anchored at the knee-exit
			// output (the knee branch yields exactly Threshold at kneeEnd) so
			// the transfer curve stays continuous across the boundary.
			excess := abs - l.kneeEnd
			limited := l.cfg.Threshold + 0.5*math.Tanh(excess*2)*(1-l.cfg.Threshold)
			chunk[i] = math.Copysign(limited, s)
		}

		if chunk[i] > 1.0 {
			chunk[i] = 1.0
		} else if chunk[i] < -1.0 {
			chunk[i] = -1.0
		}
	}
}
