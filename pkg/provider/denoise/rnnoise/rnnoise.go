//go:build rnnoise

// Package rnnoise implements denoise.Engine on top of the RNNoise C library.
//
// RNNoise processes mono 16-bit PCM at exactly 48 kHz in fixed 480-sample
// (10 ms) frames and keeps GRU state between frames, so each audio stream
// needs its own session. The cgo binding links against a system-installed
// librnnoise and is gated behind the "rnnoise" build tag; without the tag,
// New returns an engine whose NewSession always reports
// denoise.ErrUnavailable.
package rnnoise

/*
#cgo LDFLAGS: -lrnnoise -lm
#include <rnnoise.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"sync"

	"github.com/clariohq/clario/pkg/provider/denoise"
)

const (
	// sampleRate is the only sample rate RNNoise accepts.
	sampleRate = 48000
	// frameSize is the fixed number of mono samples per RNNoise frame.
	frameSize = 480
)

// Engine creates RNNoise-backed denoise sessions.
type Engine struct{}

// New returns an RNNoise engine.
func New() *Engine {
	return &Engine{}
}

// NewSession allocates RNNoise model state for one audio stream. Only
// 48 kHz / 480-sample configurations are accepted.
func (e *Engine) NewSession(cfg denoise.Config) (denoise.SessionHandle, error) {
	if cfg.SampleRate != sampleRate {
		return nil, fmt.Errorf("rnnoise: unsupported sample rate %d (requires %d)", cfg.SampleRate, sampleRate)
	}
	if cfg.FrameSize != frameSize {
		return nil, fmt.Errorf("rnnoise: unsupported frame size %d (requires %d)", cfg.FrameSize, frameSize)
	}

	st := C.rnnoise_create(nil)
	if st == nil {
		return nil, fmt.Errorf("rnnoise: allocate DenoiseState: %w", denoise.ErrUnavailable)
	}
	return &session{st: st}, nil
}

var _ denoise.Engine = (*Engine)(nil)

// session owns one RNNoise DenoiseState. Not safe for concurrent use; the
// mutex only guards Denoise against a concurrent Close.
type session struct {
	mu sync.Mutex
	st *C.DenoiseState
	// in and out are reused scratch buffers for one frame. RNNoise operates
	// on floats in int16 range (not normalized).
	in  [frameSize]C.float
	out [frameSize]C.float
}

// Denoise runs one 480-sample frame through the model and returns the
// model's voice-activity probability with the cleaned frame.
func (s *session) Denoise(frame []int16) (denoise.Result, error) {
	if len(frame) != frameSize {
		return denoise.Result{}, fmt.Errorf("rnnoise: frame size %d (requires %d)", len(frame), frameSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return denoise.Result{}, fmt.Errorf("rnnoise: session closed")
	}

	for i, v := range frame {
		s.in[i] = C.float(v)
	}
	prob := C.rnnoise_process_frame(s.st, &s.out[0], &s.in[0])

	cleaned := make([]int16, frameSize)
	for i := range cleaned {
		v := float64(s.out[i])
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		cleaned[i] = int16(v)
	}

	return denoise.Result{
		Probability: float64(prob),
		Frame:       cleaned,
	}, nil
}

// Reset replaces the model state with a fresh one, clearing all recurrent
// context. RNNoise has no in-place reset, so the state is reallocated.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return
	}
	C.rnnoise_destroy(s.st)
	s.st = C.rnnoise_create(nil)
}

// Close frees the C-side state. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != nil {
		C.rnnoise_destroy(s.st)
		s.st = nil
	}
	return nil
}

var _ denoise.SessionHandle = (*session)(nil)
