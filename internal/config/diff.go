package config

// ConfigDiff describes what changed between two configs.
// Only stage toggles and the log level can be applied to a running process;
// everything else sets RestartRequired.
type ConfigDiff struct {
	StagesChanged  bool
	DenoiseChanged bool
	NewDenoise     bool
	AGCChanged     bool
	NewAGC         bool
	LimiterChanged bool
	NewLimiter     bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is set when a change cannot be hot-applied (rates,
	// tuning constants, engine selection, network settings).
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Stage toggles — safe to apply to new sessions and broadcast to live ones.
	if old.Pipeline.Denoise != new.Pipeline.Denoise {
		d.DenoiseChanged = true
		d.NewDenoise = new.Pipeline.Denoise
		d.StagesChanged = true
	}
	if old.Pipeline.AGC != new.Pipeline.AGC {
		d.AGCChanged = true
		d.NewAGC = new.Pipeline.AGC
		d.StagesChanged = true
	}
	if old.Pipeline.Limiter != new.Pipeline.Limiter {
		d.LimiterChanged = true
		d.NewLimiter = new.Pipeline.Limiter
		d.StagesChanged = true
	}

	// Everything else needs a restart.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = true
	}
	if (old.Server.TLS == nil) != (new.Server.TLS == nil) {
		d.RestartRequired = true
	} else if old.Server.TLS != nil && *old.Server.TLS != *new.Server.TLS {
		d.RestartRequired = true
	}
	if old.Pipeline.InputRate != new.Pipeline.InputRate ||
		old.Pipeline.OutputRate != new.Pipeline.OutputRate ||
		old.Pipeline.ResetTimeout != new.Pipeline.ResetTimeout ||
		old.Pipeline.Denoiser.Name != new.Pipeline.Denoiser.Name ||
		old.Pipeline.Resampler.Name != new.Pipeline.Resampler.Name ||
		old.Pipeline.AGCTuning != new.Pipeline.AGCTuning ||
		old.Pipeline.LimiterTuning != new.Pipeline.LimiterTuning {
		d.RestartRequired = true
	}
	if old.Sessions != new.Sessions {
		d.RestartRequired = true
	}

	return d
}
