// Package mock provides test doubles for the denoise package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to inject Results and inspect the frames that were submitted
// for denoising.
//
// Example:
//
//	sess := &mock.Session{
//	    DenoiseResult: denoise.Result{Probability: 0.9},
//	}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/clariohq/clario/pkg/provider/denoise"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg denoise.Config
}

// Engine is a mock implementation of denoise.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil,
	// NewSession returns a new default Session.
	Session denoise.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg denoise.Config) (denoise.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

// Ensure Engine implements denoise.Engine at compile time.
var _ denoise.Engine = (*Engine)(nil)

// DenoiseCall records a single invocation of Session.Denoise.
type DenoiseCall struct {
	// Frame is a copy of the samples passed to Denoise.
	Frame []int16
}

// Session is a mock implementation of denoise.SessionHandle.
type Session struct {
	mu sync.Mutex

	// DenoiseResult is returned by every Denoise call. If DenoiseResult.Frame
	// is nil, a copy of the input frame is returned instead (pass-through).
	DenoiseResult denoise.Result

	// DenoiseFunc, if non-nil, overrides DenoiseResult and is invoked for
	// every Denoise call. Use it to vary probability per frame.
	DenoiseFunc func(frame []int16) (denoise.Result, error)

	// DenoiseErr, if non-nil, is returned by every Denoise call.
	DenoiseErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// DenoiseCalls records every call to Denoise in order.
	DenoiseCalls []DenoiseCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Denoise records the call and returns the configured result.
func (s *Session) Denoise(frame []int16) (denoise.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.DenoiseCalls = append(s.DenoiseCalls, DenoiseCall{Frame: cp})

	if s.DenoiseFunc != nil {
		return s.DenoiseFunc(frame)
	}
	if s.DenoiseErr != nil {
		return denoise.Result{}, s.DenoiseErr
	}
	res := s.DenoiseResult
	if res.Frame == nil {
		out := make([]int16, len(frame))
		copy(out, frame)
		res.Frame = out
	}
	return res, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DenoiseCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements denoise.SessionHandle at compile time.
var _ denoise.SessionHandle = (*Session)(nil)
