package pipeline_test

import (
	"errors"
	"testing"
	"time"

	"github.com/clariohq/clario/internal/pipeline"
	"github.com/clariohq/clario/pkg/audio"
	"github.com/clariohq/clario/pkg/provider/denoise"
	denoisemock "github.com/clariohq/clario/pkg/provider/denoise/mock"
	"github.com/clariohq/clario/pkg/provider/resample/linear"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// nativeConfig is a 48 kHz in, 48 kHz out config so chunk sizes survive the
// pipeline unchanged.
func nativeConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.OutputRate = cfg.InputRate
	return cfg
}

// pcm returns n samples of constant-level PCM16 bytes.
func pcm(n int, level int16) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = level
	}
	return audio.SamplesToBytes(s)
}

func TestProcessor_BuffersSubFrameChunks(t *testing.T) {
	t.Parallel()
	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{}))
	defer p.Close()

	if out := p.ProcessChunk(pcm(100, 1000)); out != nil {
		t.Fatalf("sub-frame chunk produced %d bytes, want none", len(out))
	}
	if p.PendingSamples() != 100 {
		t.Errorf("PendingSamples = %d, want 100", p.PendingSamples())
	}

	// The next 380 samples complete the frame.
	out := p.ProcessChunk(pcm(380, 1000))
	if len(out) != pipeline.FrameSize*2 {
		t.Errorf("completed frame = %d bytes, want %d", len(out), pipeline.FrameSize*2)
	}
	if p.PendingSamples() != 0 {
		t.Errorf("PendingSamples = %d, want 0", p.PendingSamples())
	}
}

func TestProcessor_CarriesRemainderForward(t *testing.T) {
	t.Parallel()
	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{}))
	defer p.Close()

	out := p.ProcessChunk(pcm(700, 1000))
	if len(out) != pipeline.FrameSize*2 {
		t.Fatalf("output = %d bytes, want one frame (%d)", len(out), pipeline.FrameSize*2)
	}
	if p.PendingSamples() != 220 {
		t.Errorf("PendingSamples = %d, want 220", p.PendingSamples())
	}
}

func TestProcessor_MultipleFramesPerChunk(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{}
	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}))
	defer p.Close()

	out := p.ProcessChunk(pcm(pipeline.FrameSize*3, 1000))
	if len(out) != pipeline.FrameSize*3*2 {
		t.Errorf("output = %d bytes, want %d", len(out), pipeline.FrameSize*3*2)
	}
	if len(sess.DenoiseCalls) != 3 {
		t.Errorf("denoise calls = %d, want 3", len(sess.DenoiseCalls))
	}
}

func TestProcessor_DenoiseFailureFallsOpen(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{DenoiseErr: errors.New("model exploded")}
	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}))
	defer p.Close()

	in := pcm(pipeline.FrameSize, 1234)

	// Disable the dynamics stages so the forwarded frame is byte-comparable.
	p.SetAGCEnabled(false)
	p.SetLimiterEnabled(false)

	out := p.ProcessChunk(in)
	if len(out) != len(in) {
		t.Fatalf("output = %d bytes, want %d (original frame forwarded)", len(out), len(in))
	}
	for i := range out {
		if out[i] != in[i] {
			t.Fatalf("byte %d = %d, want original %d", i, out[i], in[i])
		}
	}
}

func TestProcessor_SilenceTimeoutNotifiesOnce(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	sess := &denoisemock.Session{}
	var notified int

	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}),
		pipeline.WithClock(clock.Now),
		pipeline.WithSilenceNotifier(pipeline.NotifierFunc(func() { notified++ })),
	)
	defer p.Close()

	sess.DenoiseResult.Probability = 0.9
	p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	if notified != 0 {
		t.Fatalf("notified = %d during speech, want 0", notified)
	}

	sess.DenoiseResult.Probability = 0.1
	clock.Advance(3 * time.Second)
	p.ProcessChunk(pcm(pipeline.FrameSize, 10))
	if notified != 1 {
		t.Fatalf("notified = %d after timeout, want 1", notified)
	}
	if sess.ResetCallCount != 1 {
		t.Errorf("denoiser Reset calls = %d, want 1", sess.ResetCallCount)
	}

	// The timeout window restarts at the reset; an immediate next chunk must
	// not re-trigger.
	p.ProcessChunk(pcm(pipeline.FrameSize, 10))
	if notified != 1 {
		t.Errorf("notified = %d on the following chunk, want still 1", notified)
	}
}

func TestProcessor_ContinuousSpeechNeverNotifies(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	sess := &denoisemock.Session{DenoiseResult: denoise.Result{Probability: 0.9}}
	var notified int

	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}),
		pipeline.WithClock(clock.Now),
		pipeline.WithSilenceNotifier(pipeline.NotifierFunc(func() { notified++ })),
	)
	defer p.Close()

	for i := 0; i < 5; i++ {
		clock.Advance(1 * time.Second) // always inside the 2 s timeout
		p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	}
	if notified != 0 {
		t.Errorf("notified = %d during continuous speech, want 0", notified)
	}
}

func TestProcessor_RequestResetIsSilent(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{}
	var notified int

	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}),
		pipeline.WithSilenceNotifier(pipeline.NotifierFunc(func() { notified++ })),
	)
	defer p.Close()

	// Leave a partial frame pending, then ask for a deferred reset.
	p.ProcessChunk(pcm(100, 1000))
	p.RequestReset()

	// The reset applies before the chunk: the leftover 100 samples are gone,
	// so exactly one frame comes out and nothing is pending.
	out := p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	if len(out) != pipeline.FrameSize*2 {
		t.Errorf("output = %d bytes, want %d", len(out), pipeline.FrameSize*2)
	}
	if p.PendingSamples() != 0 {
		t.Errorf("PendingSamples = %d, want 0 after deferred reset", p.PendingSamples())
	}
	if sess.ResetCallCount != 1 {
		t.Errorf("denoiser Reset calls = %d, want 1", sess.ResetCallCount)
	}
	if notified != 0 {
		t.Errorf("notified = %d for a requested reset, want 0", notified)
	}
}

func TestProcessor_ManualResetIsSilentAndImmediate(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{}
	var notified int

	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}),
		pipeline.WithSilenceNotifier(pipeline.NotifierFunc(func() { notified++ })),
	)
	defer p.Close()

	p.ProcessChunk(pcm(100, 1000))
	p.Reset()

	if p.PendingSamples() != 0 {
		t.Errorf("PendingSamples = %d, want 0", p.PendingSamples())
	}
	if g := p.Gain(); g != 1.0 {
		t.Errorf("Gain = %v after Reset, want 1.0", g)
	}
	if sess.ResetCallCount != 1 {
		t.Errorf("denoiser Reset calls = %d, want 1", sess.ResetCallCount)
	}
	if notified != 0 {
		t.Errorf("notified = %d for a manual reset, want 0", notified)
	}

	// A second Reset leaves the same state and stays silent.
	p.Reset()
	if p.PendingSamples() != 0 || p.Gain() != 1.0 || notified != 0 {
		t.Error("repeated Reset must be idempotent and silent")
	}
}

func TestProcessor_NotifierPanicIsContained(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()

	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{}),
		pipeline.WithClock(clock.Now),
		pipeline.WithSilenceNotifier(pipeline.NotifierFunc(func() { panic("listener bug") })),
	)
	defer p.Close()

	clock.Advance(3 * time.Second)
	out := p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	if len(out) == 0 {
		t.Error("chunk should still be processed after a notifier panic")
	}
}

func TestProcessor_UnsupportedRateDisablesDenoisePermanently(t *testing.T) {
	t.Parallel()
	eng := &denoisemock.Engine{}
	cfg := nativeConfig()
	cfg.InputRate = 44100
	cfg.OutputRate = 44100

	p := pipeline.New(cfg, pipeline.WithDenoiseEngine(eng))
	defer p.Close()

	if len(eng.NewSessionCalls) != 0 {
		t.Fatalf("NewSession calls = %d at 44.1 kHz, want 0", len(eng.NewSessionCalls))
	}

	// Without a denoiser there is no frame accumulation; chunks pass straight
	// through at their original size.
	out := p.ProcessChunk(pcm(441, 1000))
	if len(out) != 441*2 {
		t.Errorf("output = %d bytes, want %d", len(out), 441*2)
	}

	// Re-enabling must not retry at the wrong rate.
	p.SetDenoiseEnabled(true)
	if len(eng.NewSessionCalls) != 0 {
		t.Errorf("NewSession calls after re-enable = %d, want 0", len(eng.NewSessionCalls))
	}
}

func TestProcessor_ReenableCreatesDenoiseSession(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{}
	eng := &denoisemock.Engine{Session: sess}
	cfg := nativeConfig()
	cfg.DenoiseEnabled = false

	p := pipeline.New(cfg, pipeline.WithDenoiseEngine(eng))
	defer p.Close()

	if len(eng.NewSessionCalls) != 0 {
		t.Fatalf("NewSession calls = %d with denoise off, want 0", len(eng.NewSessionCalls))
	}

	p.SetDenoiseEnabled(true)
	if len(eng.NewSessionCalls) != 1 {
		t.Fatalf("NewSession calls = %d after enable, want 1", len(eng.NewSessionCalls))
	}

	p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	if len(sess.DenoiseCalls) != 1 {
		t.Errorf("denoise calls = %d, want 1", len(sess.DenoiseCalls))
	}
}

func TestProcessor_ResamplesOutput(t *testing.T) {
	t.Parallel()
	p := pipeline.New(pipeline.DefaultConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{}),
		pipeline.WithResampler(linear.New()),
	)
	defer p.Close()

	out := p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	want := pipeline.FrameSize / 3 * 2 // 480 @ 48 kHz → 160 samples @ 16 kHz
	if len(out) != want {
		t.Errorf("output = %d bytes, want %d", len(out), want)
	}
}

func TestProcessor_SpeechProbabilityTracksLastFrame(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{}
	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}))
	defer p.Close()

	if got := p.SpeechProbability(); got != 0 {
		t.Fatalf("initial probability = %v, want 0", got)
	}

	sess.DenoiseResult.Probability = 0.8
	p.ProcessChunk(pcm(pipeline.FrameSize, 1000))
	if got := p.SpeechProbability(); got != 0.8 {
		t.Errorf("probability = %v, want 0.8", got)
	}
}

func TestProcessor_CloseReleasesDenoiser(t *testing.T) {
	t.Parallel()
	sess := &denoisemock.Session{}
	p := pipeline.New(nativeConfig(),
		pipeline.WithDenoiseEngine(&denoisemock.Engine{Session: sess}))

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("denoiser Close calls = %d, want 1", sess.CloseCallCount)
	}
}
