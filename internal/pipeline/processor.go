// Package pipeline implements the real-time microphone preprocessing chain:
// frame-accumulated noise suppression, silence-driven state resets,
// automatic gain control, soft-knee limiting, and output resampling.
//
// The pipeline consumes raw little-endian PCM16 chunks of arbitrary size and
// produces cleaned, loudness-normalized PCM16 at the configured output rate.
// A chunk may legitimately produce no output while the denoiser accumulates
// a full frame; that is buffering, not an error. No stage failure is ever
// surfaced to the caller — the worst case is degraded audio, never a dropped
// stream.
//
// One Processor serves exactly one audio session and must not be accessed
// concurrently. Sessions that need concurrent producers must serialize
// access externally.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/clariohq/clario/internal/observe"
	"github.com/clariohq/clario/pkg/audio"
	"github.com/clariohq/clario/pkg/provider/denoise"
	"github.com/clariohq/clario/pkg/provider/resample"
)

const (
	// DenoiserSampleRate is the only input rate at which the denoising stage
	// can run. Sessions configured at other rates keep AGC, limiting, and
	// resampling but skip denoising entirely.
	DenoiserSampleRate = 48000

	// FrameSize is the denoiser's fixed frame length in samples (10 ms).
	FrameSize = 480

	// maxPendingSeconds caps the frame accumulator at one second of audio.
	maxPendingSeconds = 1
)

// Config holds the construction-time settings for a Processor. The enable
// flags may be changed afterwards through the Set*Enabled methods; the rates
// and tuning constants are fixed for the session.
type Config struct {
	// InputRate is the sample rate in Hz of chunks passed to ProcessChunk.
	InputRate int

	// OutputRate is the sample rate in Hz of returned chunks.
	OutputRate int

	// DenoiseEnabled, AGCEnabled, and LimiterEnabled select the initial
	// stage set.
	DenoiseEnabled bool
	AGCEnabled     bool
	LimiterEnabled bool

	// ResetTimeout is how long the pipeline tolerates absence of speech
	// before resetting the denoiser's recurrent state.
	ResetTimeout time.Duration

	// AGC and Limiter tune the dynamics stages.
	AGC     AGCConfig
	Limiter LimiterConfig
}

// DefaultConfig returns the standard microphone-to-recognizer configuration:
// 48 kHz in, 16 kHz out, all stages on.
func DefaultConfig() Config {
	return Config{
		InputRate:      48000,
		OutputRate:     16000,
		DenoiseEnabled: true,
		AGCEnabled:     true,
		LimiterEnabled: true,
		ResetTimeout:   2 * time.Second,
		AGC:            DefaultAGCConfig(),
		Limiter:        DefaultLimiterConfig(),
	}
}

// Processor owns all per-session preprocessing state. Create one per audio
// session with New and never share it between goroutines.
type Processor struct {
	cfg Config

	engine    denoise.Engine
	denoiser  denoise.SessionHandle // nil when unavailable
	resampler resample.Engine

	acc     *Accumulator
	agc     *AGC
	limiter *Limiter
	monitor *silenceMonitor

	notifier SilenceNotifier
	metrics  *observe.Metrics
	log      *slog.Logger
	now      func() time.Time

	lastProb float64

	// denoiseUnsupported is set once when the session's input rate cannot
	// feed the denoiser; re-enabling denoising will not retry in that case.
	denoiseUnsupported bool
}

// Option customises a Processor at construction.
type Option func(*Processor)

// WithDenoiseEngine injects the denoiser backend. Without one, the denoising
// stage is pass-through.
func WithDenoiseEngine(e denoise.Engine) Option {
	return func(p *Processor) { p.engine = e }
}

// WithResampler injects the output resampler. Without one, rate conversion
// is skipped even when input and output rates differ.
func WithResampler(r resample.Engine) Option {
	return func(p *Processor) { p.resampler = r }
}

// WithSilenceNotifier registers the callback fired on automatic
// silence-timeout resets. Manual and explicit resets never notify.
func WithSilenceNotifier(n SilenceNotifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithClock injects the time source. Used by tests to drive the silence
// timeout deterministically.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithLogger injects the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithMetrics injects the metric instruments. Nil disables recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a Processor for one audio session. If denoising is enabled and
// an engine is available for the configured input rate, a denoise session is
// created immediately; failure to do so is non-fatal and logged, leaving the
// pipeline in pass-through for the denoising stage.
func New(cfg Config, opts ...Option) *Processor {
	p := &Processor{
		cfg: cfg,
		now: time.Now,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}

	p.acc = NewAccumulator(FrameSize, DenoiserSampleRate*maxPendingSeconds)
	p.agc = NewAGC(cfg.AGC, cfg.InputRate)
	p.limiter = NewLimiter(cfg.Limiter)
	p.monitor = newSilenceMonitor(cfg.ResetTimeout, p.now)

	if cfg.DenoiseEnabled {
		p.initDenoiser()
	}

	p.log.Info("audio processor initialised",
		"input_rate", cfg.InputRate,
		"output_rate", cfg.OutputRate,
		"denoise", p.denoiser != nil,
		"agc", cfg.AGCEnabled,
		"limiter", cfg.LimiterEnabled,
	)
	return p
}

// initDenoiser attempts to create a denoise session. Every failure mode is
// soft: wrong input rate disables the stage for the session, a missing
// backend leaves it pass-through until re-enabled.
func (p *Processor) initDenoiser() {
	if p.denoiser != nil || p.denoiseUnsupported || p.engine == nil {
		return
	}

	if p.cfg.InputRate != DenoiserSampleRate {
		p.denoiseUnsupported = true
		p.log.Warn("denoising disabled for session: input rate unsupported",
			"input_rate", p.cfg.InputRate,
			"required_rate", DenoiserSampleRate,
		)
		return
	}

	sess, err := p.engine.NewSession(denoise.Config{
		SampleRate: DenoiserSampleRate,
		FrameSize:  FrameSize,
	})
	if err != nil {
		p.log.Warn("denoiser unavailable, continuing pass-through", "err", err)
		return
	}
	p.denoiser = sess
}

// ProcessChunk runs one chunk of raw PCM16 bytes at the input rate through
// the enabled stages and returns PCM16 bytes at the output rate. The result
// may be empty while the denoiser is still accumulating a full frame.
//
// Stage failures are absorbed: ProcessChunk never reports errors, by
// contract the worst case is a less-processed chunk.
func (p *Processor) ProcessChunk(pcm []byte) []byte {
	samples := audio.BytesToSamples(pcm)

	// Reset check runs first so a stale denoiser never sees new speech.
	if tr := p.monitor.Evaluate(); tr.Reset {
		p.clearState()
		if tr.Notify {
			p.log.Debug("state auto-reset after silence timeout")
			if p.metrics != nil {
				p.metrics.SilenceResets.Add(context.Background(), 1)
			}
			p.notifySilence()
		}
	}

	if p.cfg.DenoiseEnabled && p.denoiser != nil {
		processed := p.denoiseChunk(samples)
		if len(processed) == 0 {
			return nil // Buffering until a full frame exists.
		}
		samples = processed
	}

	if (p.cfg.AGCEnabled || p.cfg.LimiterEnabled) && len(samples) > 0 {
		chunk := audio.SamplesToFloat(samples)
		if p.cfg.AGCEnabled {
			p.agc.Process(chunk)
		}
		if p.cfg.LimiterEnabled {
			p.limiter.Process(chunk)
		}
		samples = audio.FloatToSamples(chunk)
	}

	if p.cfg.InputRate != p.cfg.OutputRate && p.resampler != nil && len(samples) > 0 {
		samples = p.resampler.Resample(samples, p.cfg.InputRate, p.cfg.OutputRate)
	}

	return audio.SamplesToBytes(samples)
}

// denoiseChunk feeds complete frames through the denoise session in arrival
// order. Per-frame failures fail open: the original frame is forwarded and
// processing continues with the next frame.
func (p *Processor) denoiseChunk(samples []int16) []int16 {
	p.acc.Push(samples)

	var out []int16
	for {
		frame, ok := p.acc.PopFrame()
		if !ok {
			break
		}

		res, err := p.denoiser.Denoise(frame)
		if err != nil {
			p.log.Error("denoise frame failed, forwarding original", "err", err)
			if p.metrics != nil {
				p.metrics.DenoiseFailures.Add(context.Background(), 1)
			}
			out = append(out, frame...)
			continue
		}

		p.lastProb = res.Probability
		p.monitor.Observe(res.Probability)
		if p.metrics != nil {
			p.metrics.FramesDenoised.Add(context.Background(), 1)
		}
		out = append(out, res.Frame...)
	}
	return out
}

// clearState clears everything a speech turn accumulates: pending frames,
// last probability, AGC gain, and the denoiser's recurrent state.
func (p *Processor) clearState() {
	p.acc.Reset()
	p.lastProb = 0
	p.agc.Reset()
	if p.denoiser != nil {
		p.denoiser.Reset()
	}
}

// notifySilence invokes the registered notifier, containing any panic so a
// misbehaving callback can never take down the audio path.
func (p *Processor) notifySilence() {
	if p.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("silence notifier panicked", "panic", r)
		}
	}()
	p.notifier.NotifySilence()
}

// Reset clears the processor state immediately and silently. Call after each
// speech turn ends to prevent denoiser state drift during silence.
func (p *Processor) Reset() {
	p.clearState()
	p.monitor.MarkReset()
	p.log.Debug("processor state reset")
}

// RequestReset defers a silent state clear to the start of the next
// ProcessChunk call.
func (p *Processor) RequestReset() {
	p.monitor.RequestReset()
}

// SpeechProbability returns the last observed speech probability in [0, 1].
func (p *Processor) SpeechProbability() float64 {
	return p.lastProb
}

// SetDenoiseEnabled toggles the denoising stage. Re-enabling re-attempts
// session creation if no denoiser is active, unless the session's input
// rate ruled denoising out permanently.
func (p *Processor) SetDenoiseEnabled(enabled bool) {
	p.cfg.DenoiseEnabled = enabled
	if enabled {
		p.initDenoiser()
	}
	p.log.Info("noise reduction toggled", "enabled", enabled)
}

// SetAGCEnabled toggles the gain control stage. Re-enabling resets the gain
// to unity so a stale estimate from the previous enable period cannot apply.
func (p *Processor) SetAGCEnabled(enabled bool) {
	p.cfg.AGCEnabled = enabled
	if enabled {
		p.agc.Reset()
	}
	p.log.Info("agc toggled", "enabled", enabled)
}

// SetLimiterEnabled toggles the limiter stage.
func (p *Processor) SetLimiterEnabled(enabled bool) {
	p.cfg.LimiterEnabled = enabled
	p.log.Info("limiter toggled", "enabled", enabled)
}

// Gain returns the current AGC gain multiplier (informational).
func (p *Processor) Gain() float64 {
	return p.agc.Gain()
}

// PendingSamples returns the number of samples waiting for a full denoiser
// frame (informational).
func (p *Processor) PendingSamples() int {
	return p.acc.Len()
}

// Close releases the denoise session, if any.
func (p *Processor) Close() error {
	if p.denoiser == nil {
		return nil
	}
	err := p.denoiser.Close()
	p.denoiser = nil
	return err
}
