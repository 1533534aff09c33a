package pipeline

import (
	"math"
	"time"
)

// rmsEpsilon stabilises the RMS computation against all-zero chunks.
const rmsEpsilon = 1e-10

// negligibleRMS is the normalized level below which the AGC holds its
// current gain instead of chasing silence toward the maximum gain bound.
const negligibleRMS = 1e-6

// AGCConfig tunes the automatic gain control stage.
type AGCConfig struct {
	// TargetLevel is the desired chunk RMS in normalized amplitude.
	TargetLevel float64

	// MinGain and MaxGain bound the gain multiplier.
	MinGain float64
	MaxGain float64

	// Attack is the smoothing time constant used when gain must drop
	// (loud signal). Release is used when gain may rise (quiet signal);
	// it is slower to avoid audible pumping.
	Attack  time.Duration
	Release time.Duration
}

// DefaultAGCConfig returns tuning suited to speech feeding a recognizer:
// target raised for easier VAD triggering, generous max gain for quiet mics.
func DefaultAGCConfig() AGCConfig {
	return AGCConfig{
		TargetLevel: 0.25,
		MinGain:     0.25,
		MaxGain:     12.0,
		Attack:      10 * time.Millisecond,
		Release:     400 * time.Millisecond,
	}
}

// AGC is a per-chunk automatic gain control with asymmetric attack/release
// smoothing. It estimates each chunk's RMS, derives the gain that would hit
// the target level, and eases the applied gain toward it — quickly when the
// signal is too loud, slowly when it is too quiet.
//
// Not safe for concurrent use; owned by a single Processor.
type AGC struct {
	cfg          AGCConfig
	attackCoeff  float64
	releaseCoeff float64
	gain         float64
}

// NewAGC creates an AGC whose smoothing coefficients are derived from the
// attack/release time constants at the given processing sample rate.
func NewAGC(cfg AGCConfig, sampleRate int) *AGC {
	return &AGC{
		cfg:          cfg,
		attackCoeff:  math.Exp(-1.0 / (cfg.Attack.Seconds() * float64(sampleRate))),
		releaseCoeff: math.Exp(-1.0 / (cfg.Release.Seconds() * float64(sampleRate))),
		gain:         1.0,
	}
}

// Process applies gain to the chunk in place and updates the gain estimate.
// The chunk is normalized float amplitude. Values may exceed [-1, 1] after
// gain; clipping protection is the limiter's job.
func (a *AGC) Process(chunk []float64) {
	if len(chunk) == 0 {
		return
	}

	var sum float64
	for _, s := range chunk {
		sum += s * s
	}
	meanSquare := sum / float64(len(chunk))

	// Hold gain during negligible signal rather than ramping toward MaxGain.
	// The gate checks the raw mean square: the epsilon-stabilised rms has a
	// floor of sqrt(rmsEpsilon) and would never register as negligible.
	if meanSquare > negligibleRMS*negligibleRMS {
		rms := math.Sqrt(meanSquare + rmsEpsilon)
		desired := a.cfg.TargetLevel / rms
		if desired < a.cfg.MinGain {
			desired = a.cfg.MinGain
		} else if desired > a.cfg.MaxGain {
			desired = a.cfg.MaxGain
		}

		// Asymmetric smoothing: fast attack when reducing, slow release when
		// raising.
		coeff := a.releaseCoeff
		if desired < a.gain {
			coeff = a.attackCoeff
		}
		a.gain = coeff*a.gain + (1-coeff)*desired
	}

	for i := range chunk {
		chunk[i] *= a.gain
	}
}

// Gain returns the current gain multiplier.
func (a *AGC) Gain() float64 {
	return a.gain
}

// Reset returns the gain to unity.
func (a *AGC) Reset() {
	a.gain = 1.0
}
