package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clariohq/clario/internal/config"
	"github.com/clariohq/clario/pkg/provider/denoise"
	denoisemock "github.com/clariohq/clario/pkg/provider/denoise/mock"
	"github.com/clariohq/clario/pkg/provider/resample"
	"github.com/clariohq/clario/pkg/provider/resample/linear"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

pipeline:
  input_rate: 48000
  output_rate: 16000
  denoise: true
  agc: true
  limiter: false
  reset_timeout: 3s
  denoiser:
    name: rnnoise
  resampler:
    name: linear
  agc_tuning:
    target_level: 0.3
    min_gain: 0.5
    max_gain: 8.0
    attack: 5ms
    release: 250ms
  limiter_tuning:
    threshold: 0.9
    knee: 0.1

sessions:
  idle_timeout: 30s
  max_sessions: 16
`

func loadSample(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── schema decoding ──────────────────────────────────────────────────────────

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg := loadSample(t)

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Pipeline.InputRate != 48000 || cfg.Pipeline.OutputRate != 16000 {
		t.Errorf("rates = %d/%d, want 48000/16000", cfg.Pipeline.InputRate, cfg.Pipeline.OutputRate)
	}
	if cfg.Pipeline.Limiter {
		t.Error("limiter should be disabled")
	}
	if got := cfg.Pipeline.ResetTimeout.Std(); got != 3*time.Second {
		t.Errorf("reset_timeout = %s, want 3s", got)
	}
	if cfg.Pipeline.Denoiser.Name != "rnnoise" {
		t.Errorf("denoiser = %q, want %q", cfg.Pipeline.Denoiser.Name, "rnnoise")
	}
	if got := cfg.Pipeline.AGCTuning.Attack.Std(); got != 5*time.Millisecond {
		t.Errorf("agc attack = %s, want 5ms", got)
	}
	if cfg.Pipeline.LimiterTuning.Threshold != 0.9 {
		t.Errorf("limiter threshold = %v, want 0.9", cfg.Pipeline.LimiterTuning.Threshold)
	}
	if cfg.Sessions.MaxSessions != 16 {
		t.Errorf("max_sessions = %d, want 16", cfg.Sessions.MaxSessions)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	def := config.Default()
	if cfg.Server.ListenAddr != def.Server.ListenAddr {
		t.Errorf("listen_addr = %q, want default %q", cfg.Server.ListenAddr, def.Server.ListenAddr)
	}
	if !cfg.Pipeline.Denoise || !cfg.Pipeline.AGC || !cfg.Pipeline.Limiter {
		t.Error("all stages should default to enabled")
	}
	if cfg.Pipeline.ResetTimeout.Std() != 2*time.Second {
		t.Errorf("reset_timeout = %s, want default 2s", cfg.Pipeline.ResetTimeout.Std())
	}
}

func TestLoadFromReader_PartialOverridesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  agc: false
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Pipeline.AGC {
		t.Error("agc should be disabled by the override")
	}
	if !cfg.Pipeline.Denoise || !cfg.Pipeline.Limiter {
		t.Error("untouched stages should keep their defaults")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  input_rate: 48000
  frobnicate: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestDuration_InvalidString(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  reset_timeout: soon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "soon") {
		t.Errorf("error should name the bad value, got: %v", err)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateDenoise(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterDenoise("mock", func(_ config.EngineEntry) (denoise.Engine, error) {
		return &denoisemock.Engine{}, nil
	})

	eng, err := reg.CreateDenoise(config.EngineEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateDenoise: %v", err)
	}
	if eng == nil {
		t.Fatal("CreateDenoise returned nil engine")
	}
}

func TestRegistry_CreateResample(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterResample("linear", func(_ config.EngineEntry) (resample.Engine, error) {
		return linear.New(), nil
	})

	eng, err := reg.CreateResample(config.EngineEntry{Name: "linear"})
	if err != nil {
		t.Fatalf("CreateResample: %v", err)
	}
	if eng == nil {
		t.Fatal("CreateResample returned nil engine")
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateDenoise(config.EngineEntry{Name: "ghost"})
	if !errors.Is(err, config.ErrEngineNotRegistered) {
		t.Errorf("error = %v, want ErrEngineNotRegistered", err)
	}
	_, err = reg.CreateResample(config.EngineEntry{Name: "ghost"})
	if !errors.Is(err, config.ErrEngineNotRegistered) {
		t.Errorf("error = %v, want ErrEngineNotRegistered", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	first := &denoisemock.Engine{}
	second := &denoisemock.Engine{}
	reg.RegisterDenoise("mock", func(_ config.EngineEntry) (denoise.Engine, error) {
		return first, nil
	})
	reg.RegisterDenoise("mock", func(_ config.EngineEntry) (denoise.Engine, error) {
		return second, nil
	})

	eng, err := reg.CreateDenoise(config.EngineEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateDenoise: %v", err)
	}
	if eng != second {
		t.Error("later registration should win")
	}
}
