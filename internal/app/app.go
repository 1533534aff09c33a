// Package app wires the Clario subsystems into a running application.
//
// The App struct owns the engine registry, the denoise and resample engines
// built from configuration, and the session manager. The HTTP/WebSocket
// surface lives in internal/server and is handed these pieces by main.
//
// For testing, inject mock implementations via functional options
// (WithDenoiseEngine, WithResampleEngine, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/clariohq/clario/internal/config"
	"github.com/clariohq/clario/internal/health"
	"github.com/clariohq/clario/internal/observe"
	"github.com/clariohq/clario/internal/pipeline"
	"github.com/clariohq/clario/pkg/provider/denoise"
	"github.com/clariohq/clario/pkg/provider/denoise/rnnoise"
	"github.com/clariohq/clario/pkg/provider/resample"
	"github.com/clariohq/clario/pkg/provider/resample/linear"
)

// App owns all subsystem lifetimes for the Clario service.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	denoiser  denoise.Engine
	resampler resample.Engine
	metrics   *observe.Metrics
	manager   *Manager

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDenoiseEngine injects a denoise engine instead of creating one from
// config.
func WithDenoiseEngine(e denoise.Engine) Option {
	return func(a *App) { a.denoiser = e }
}

// WithResampleEngine injects a resample engine instead of creating one from
// config.
func WithResampleEngine(e resample.Engine) Option {
	return func(a *App) { a.resampler = e }
}

// WithMetrics injects metric instruments instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry injects a pre-populated engine registry. Built-in engines are
// still registered on top unless the names are already taken.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// New creates an App by wiring all subsystems together: the engine registry
// with the built-in backends, the engines selected by the config, and the
// session manager.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}
	registerBuiltins(a.registry)

	// Engines. The denoiser backend may be compiled out; that is a session
	// level concern (pass-through), not a startup failure. A name that is
	// not registered at all is a config error and fails fast.
	if a.denoiser == nil && cfg.Pipeline.Denoiser.Name != "" {
		eng, err := a.registry.CreateDenoise(cfg.Pipeline.Denoiser)
		if err != nil {
			return nil, fmt.Errorf("app: create denoise engine: %w", err)
		}
		a.denoiser = eng
	}
	if a.resampler == nil && cfg.Pipeline.Resampler.Name != "" {
		eng, err := a.registry.CreateResample(cfg.Pipeline.Resampler)
		if err != nil {
			return nil, fmt.Errorf("app: create resample engine: %w", err)
		}
		a.resampler = eng
	}

	a.manager = NewManager(ManagerConfig{
		Pipeline:  cfg.Pipeline,
		Sessions:  cfg.Sessions,
		Denoiser:  a.denoiser,
		Resampler: a.resampler,
		Metrics:   a.metrics,
	})

	slog.Info("app initialised",
		"denoiser", cfg.Pipeline.Denoiser.Name,
		"resampler", cfg.Pipeline.Resampler.Name,
		"input_rate", cfg.Pipeline.InputRate,
		"output_rate", cfg.Pipeline.OutputRate,
	)
	return a, nil
}

// registerBuiltins adds the compiled-in engine factories to reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterDenoise("rnnoise", func(config.EngineEntry) (denoise.Engine, error) {
		return rnnoise.New(), nil
	})
	reg.RegisterResample("linear", func(config.EngineEntry) (resample.Engine, error) {
		return linear.New(), nil
	})
}

// Sessions returns the session manager.
func (a *App) Sessions() *Manager {
	return a.manager
}

// Metrics returns the metric instruments the app records to.
func (a *App) Metrics() *observe.Metrics {
	return a.metrics
}

// Registry returns the engine registry, for registering additional backends
// before sessions are created.
func (a *App) Registry() *config.Registry {
	return a.registry
}

// HealthCheckers returns the readiness checkers for the app's dependencies.
func (a *App) HealthCheckers() []health.Checker {
	return []health.Checker{
		health.DenoiserChecker(a.denoiser, denoise.Config{
			SampleRate: pipeline.DenoiserSampleRate,
			FrameSize:  pipeline.FrameSize,
		}),
	}
}

// ApplyConfigChange pushes a hot-reloaded config diff into the running app:
// stage toggles reach live sessions, restart-only changes are logged.
func (a *App) ApplyConfigChange(d config.ConfigDiff) {
	if d.StagesChanged {
		a.manager.ApplyStages(d)
	}
	if d.RestartRequired {
		slog.Warn("config change requires a restart to take full effect")
	}
}

// Shutdown releases all sessions and their engines. Safe to call more than
// once.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.manager.Count())
		a.manager.Close()
		slog.Info("shutdown complete")
	})
}
