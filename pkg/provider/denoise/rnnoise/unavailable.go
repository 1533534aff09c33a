//go:build !rnnoise

// Package rnnoise implements denoise.Engine on top of the RNNoise C library.
//
// This file is the no-cgo fallback used when the "rnnoise" build tag is not
// set: New still returns an Engine, but every NewSession call reports
// denoise.ErrUnavailable so that the pipeline falls back to pass-through.
package rnnoise

import (
	"fmt"

	"github.com/clariohq/clario/pkg/provider/denoise"
)

// Engine is the unavailable-backend placeholder compiled without the
// "rnnoise" build tag.
type Engine struct{}

// New returns an engine whose sessions are always unavailable.
func New() *Engine {
	return &Engine{}
}

// NewSession always reports that the backend is unavailable.
func (e *Engine) NewSession(denoise.Config) (denoise.SessionHandle, error) {
	return nil, fmt.Errorf("rnnoise: built without rnnoise tag: %w", denoise.ErrUnavailable)
}

var _ denoise.Engine = (*Engine)(nil)
