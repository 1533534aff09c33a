// Package denoise defines the Engine interface for frame-based noise
// suppression backends.
//
// A denoise engine wraps a stateful frame denoiser (e.g., RNNoise) and
// surfaces it as a per-stream session. The model carries recurrent state
// across frames, so each audio stream needs its own session; sessions must
// never be shared between streams.
//
// Denoising is synchronous by design: Denoise returns immediately with the
// cleaned frame and a speech-probability estimate, making it suitable for
// low-latency pipeline stages running inside the audio path.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package denoise

import "errors"

// ErrUnavailable is returned by Engine.NewSession when the backing denoiser
// library is not present or cannot be initialised. Callers are expected to
// treat this as a soft failure and fall back to pass-through processing.
var ErrUnavailable = errors.New("denoise: backend unavailable")

// Config holds the parameters for a denoise session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Most model-based denoisers
	// support exactly one rate (RNNoise: 48000); NewSession returns an error
	// for unsupported rates.
	SampleRate int

	// FrameSize is the number of mono int16 samples per frame passed to
	// Denoise. RNNoise requires 480 (10 ms at 48 kHz).
	FrameSize int
}

// Result is the outcome of denoising a single frame.
type Result struct {
	// Probability is the model's speech-probability estimate for the frame,
	// in [0.0, 1.0].
	Probability float64

	// Frame is the denoised frame, same length as the input.
	Frame []int16
}

// SessionHandle represents an active denoise session for a single audio
// stream. It is an interface so that test code can supply mock
// implementations without the C library present. Each session owns the
// model's recurrent state; Reset clears this state without closing the
// session.
//
// A SessionHandle must not be shared between goroutines.
type SessionHandle interface {
	// Denoise processes exactly one frame of Config.FrameSize mono samples
	// and returns the speech probability together with the cleaned frame.
	// Returns an error if the frame size is wrong or the backend fails; the
	// input frame is never modified.
	//
	// Designed to be called synchronously in the audio pipeline loop; it
	// must not block.
	Denoise(frame []int16) (Result, error)

	// Reset clears the model's recurrent state without discarding
	// configuration. Use this after a speech turn ends so that state
	// accumulated from background noise does not bias later frames.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for denoise sessions, implemented by each backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns
	// ErrUnavailable (possibly wrapped) when the backend cannot run at all,
	// or another error when cfg is invalid for this backend.
	NewSession(cfg Config) (SessionHandle, error)
}
