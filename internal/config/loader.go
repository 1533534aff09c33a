package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEngineNames lists known engine names per engine kind.
// Used by [Validate] to warn about unrecognised engine names.
var ValidEngineNames = map[string][]string{
	"denoiser":  {"rnnoise"},
	"resampler": {"linear"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Pipeline rates
	p := &cfg.Pipeline
	if p.InputRate <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.input_rate %d must be positive", p.InputRate))
	}
	if p.OutputRate <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.output_rate %d must be positive", p.OutputRate))
	}
	if p.ResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.reset_timeout %s must be positive", p.ResetTimeout.Std()))
	}

	// Engine name validation — warn for unknown engine names.
	validateEngineName("denoiser", p.Denoiser.Name)
	validateEngineName("resampler", p.Resampler.Name)

	// Denoising only runs at its native rate; the stage degrades to
	// pass-through at other rates, which deserves a warning up front.
	if p.Denoise && p.InputRate > 0 && p.InputRate != 48000 {
		slog.Warn("pipeline.denoise is enabled but input_rate is not 48000; sessions will skip denoising",
			"input_rate", p.InputRate,
		)
	}

	// AGC tuning
	agc := p.AGCTuning
	if agc.TargetLevel <= 0 || agc.TargetLevel > 1 {
		errs = append(errs, fmt.Errorf("pipeline.agc_tuning.target_level %.3f is out of range (0, 1]", agc.TargetLevel))
	}
	if agc.MinGain <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.agc_tuning.min_gain %.3f must be positive", agc.MinGain))
	}
	if agc.MaxGain < agc.MinGain {
		errs = append(errs, fmt.Errorf("pipeline.agc_tuning.max_gain %.3f is below min_gain %.3f", agc.MaxGain, agc.MinGain))
	}
	if agc.Attack <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.agc_tuning.attack %s must be positive", agc.Attack.Std()))
	}
	if agc.Release <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.agc_tuning.release %s must be positive", agc.Release.Std()))
	}

	// Limiter tuning
	lim := p.LimiterTuning
	if lim.Threshold <= 0 || lim.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("pipeline.limiter_tuning.threshold %.3f is out of range (0, 1)", lim.Threshold))
	}
	if lim.Knee < 0 {
		errs = append(errs, fmt.Errorf("pipeline.limiter_tuning.knee %.3f must not be negative", lim.Knee))
	}
	if lim.Threshold > 0 && lim.Threshold+lim.Knee/2 > 1 {
		errs = append(errs, fmt.Errorf("pipeline.limiter_tuning: threshold %.3f + knee/2 %.3f exceeds full scale", lim.Threshold, lim.Knee/2))
	}

	// Sessions
	if cfg.Sessions.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("sessions.idle_timeout %s must not be negative", cfg.Sessions.IdleTimeout.Std()))
	}
	if cfg.Sessions.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions %d must not be negative", cfg.Sessions.MaxSessions))
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is non-empty and not found in
// the [ValidEngineNames] list for the given kind.
func validateEngineName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidEngineNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown engine name — may be a typo or third-party engine",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
