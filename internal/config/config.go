// Package config provides the configuration schema, loader, file watcher,
// and engine registry for the Clario audio preprocessing service.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Clario server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so YAML values can be written in the usual
// Go duration syntax ("2s", "400ms").
type Duration time.Duration

// UnmarshalYAML decodes a duration string via [time.ParseDuration].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration in Go duration syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure for Clario.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sessions SessionsConfig `yaml:"sessions"`
}

// ServerConfig holds network and logging settings for the Clario server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// PipelineConfig holds the default per-session preprocessing settings. The
// stage enable flags can be overridden per stream at runtime; everything else
// is fixed until the process restarts.
type PipelineConfig struct {
	// InputRate is the sample rate in Hz of incoming audio.
	InputRate int `yaml:"input_rate"`

	// OutputRate is the sample rate in Hz of processed audio sent back to
	// clients.
	OutputRate int `yaml:"output_rate"`

	// Denoise, AGC, and Limiter select which stages new sessions start with.
	Denoise bool `yaml:"denoise"`
	AGC     bool `yaml:"agc"`
	Limiter bool `yaml:"limiter"`

	// ResetTimeout is how long a session tolerates absence of speech before
	// its denoiser state is reset.
	ResetTimeout Duration `yaml:"reset_timeout"`

	// Denoiser selects the denoise engine registered in the [Registry].
	Denoiser EngineEntry `yaml:"denoiser"`

	// Resampler selects the resample engine registered in the [Registry].
	Resampler EngineEntry `yaml:"resampler"`

	// AGCTuning adjusts the gain control stage.
	AGCTuning AGCTuning `yaml:"agc_tuning"`

	// LimiterTuning adjusts the peak limiter stage.
	LimiterTuning LimiterTuning `yaml:"limiter_tuning"`
}

// EngineEntry is the common configuration block shared by all engine kinds.
// The Name field is used to look up the constructor in the [Registry].
type EngineEntry struct {
	// Name selects the registered engine implementation (e.g., "rnnoise",
	// "linear").
	Name string `yaml:"name"`

	// Options holds engine-specific configuration values. Values may be
	// strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// AGCTuning adjusts the automatic gain control stage.
type AGCTuning struct {
	// TargetLevel is the desired chunk RMS in normalized amplitude (0, 1].
	TargetLevel float64 `yaml:"target_level"`

	// MinGain and MaxGain bound the gain multiplier.
	MinGain float64 `yaml:"min_gain"`
	MaxGain float64 `yaml:"max_gain"`

	// Attack and Release are the gain smoothing time constants.
	Attack  Duration `yaml:"attack"`
	Release Duration `yaml:"release"`
}

// LimiterTuning adjusts the soft-knee peak limiter stage.
type LimiterTuning struct {
	// Threshold is the normalized amplitude where limiting engages (0, 1).
	Threshold float64 `yaml:"threshold"`

	// Knee is the width of the soft transition band centred on Threshold.
	Knee float64 `yaml:"knee"`
}

// SessionsConfig holds settings for the session manager.
type SessionsConfig struct {
	// IdleTimeout is how long a session may go without traffic before it is
	// reaped. Zero disables reaping.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int `yaml:"max_sessions"`
}

// Default returns the standard microphone-to-recognizer configuration:
// 48 kHz in, 16 kHz out, all stages on. [LoadFromReader] decodes on top of
// these values, so a YAML file only needs to state what differs.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Pipeline: PipelineConfig{
			InputRate:    48000,
			OutputRate:   16000,
			Denoise:      true,
			AGC:          true,
			Limiter:      true,
			ResetTimeout: Duration(2 * time.Second),
			Denoiser:     EngineEntry{Name: "rnnoise"},
			Resampler:    EngineEntry{Name: "linear"},
			AGCTuning: AGCTuning{
				TargetLevel: 0.25,
				MinGain:     0.25,
				MaxGain:     12.0,
				Attack:      Duration(10 * time.Millisecond),
				Release:     Duration(400 * time.Millisecond),
			},
			LimiterTuning: LimiterTuning{
				Threshold: 0.95,
				Knee:      0.05,
			},
		},
		Sessions: SessionsConfig{
			IdleTimeout: Duration(60 * time.Second),
		},
	}
}
