package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/clariohq/clario/pkg/provider/denoise"
	"github.com/clariohq/clario/pkg/provider/resample"
)

// ErrEngineNotRegistered is returned by Create* methods when no factory has
// been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: engine not registered")

// Registry maps engine names to their constructor functions for each engine
// kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	denoise  map[string]func(EngineEntry) (denoise.Engine, error)
	resample map[string]func(EngineEntry) (resample.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		denoise:  make(map[string]func(EngineEntry) (denoise.Engine, error)),
		resample: make(map[string]func(EngineEntry) (resample.Engine, error)),
	}
}

// RegisterDenoise registers a denoise engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDenoise(name string, factory func(EngineEntry) (denoise.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denoise[name] = factory
}

// RegisterResample registers a resample engine factory under name.
func (r *Registry) RegisterResample(name string, factory func(EngineEntry) (resample.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resample[name] = factory
}

// CreateDenoise instantiates a denoise engine using the factory registered
// under entry.Name. Returns [ErrEngineNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateDenoise(entry EngineEntry) (denoise.Engine, error) {
	r.mu.RLock()
	factory, ok := r.denoise[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: denoiser/%q", ErrEngineNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateResample instantiates a resample engine using the factory registered
// under entry.Name.
func (r *Registry) CreateResample(entry EngineEntry) (resample.Engine, error) {
	r.mu.RLock()
	factory, ok := r.resample[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: resampler/%q", ErrEngineNotRegistered, entry.Name)
	}
	return factory(entry)
}
