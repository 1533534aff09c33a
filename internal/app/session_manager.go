package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clariohq/clario/internal/config"
	"github.com/clariohq/clario/internal/observe"
	"github.com/clariohq/clario/internal/pipeline"
	"github.com/clariohq/clario/pkg/provider/denoise"
	"github.com/clariohq/clario/pkg/provider/resample"
)

// ErrSessionExists is returned by Create when the session ID is already in use.
var ErrSessionExists = errors.New("app: session already exists")

// ErrTooManySessions is returned by Create when the configured session cap
// has been reached.
var ErrTooManySessions = errors.New("app: session limit reached")

// Session is one live audio stream with exclusive ownership of its
// preprocessing pipeline. The transport's read loop is the only chunk
// producer; control operations (resets, stage toggles) may arrive from other
// goroutines and are serialized by the session's mutex.
type Session struct {
	id      string
	mgr     *Manager
	mu      sync.Mutex
	proc    *pipeline.Processor
	started time.Time

	lastMu     sync.Mutex
	lastActive time.Time

	// silence receives one value per silence-timeout reset. Buffered so a
	// slow transport never stalls the audio path; coalescing is acceptable.
	silence chan struct{}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Silence returns the channel signalled on automatic silence-timeout resets.
func (s *Session) Silence() <-chan struct{} {
	return s.silence
}

// ProcessChunk runs one chunk through the session's pipeline and refreshes
// the idle timer. An empty result means the pipeline is still buffering.
func (s *Session) ProcessChunk(pcm []byte) []byte {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc.ProcessChunk(pcm)
}

// Reset clears the session's pipeline state immediately and silently.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc.Reset()
}

// RequestReset defers a silent pipeline reset to the next chunk.
func (s *Session) RequestReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc.RequestReset()
}

// SetStage toggles one pipeline stage by name. Unknown stages are an error
// so transport handlers can reject bad control messages.
func (s *Session) SetStage(stage string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch stage {
	case "denoise":
		s.proc.SetDenoiseEnabled(enabled)
	case "agc":
		s.proc.SetAGCEnabled(enabled)
	case "limiter":
		s.proc.SetLimiterEnabled(enabled)
	default:
		return fmt.Errorf("app: unknown pipeline stage %q", stage)
	}
	return nil
}

// SpeechProbability returns the last speech probability seen by the session.
func (s *Session) SpeechProbability() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc.SpeechProbability()
}

// touch refreshes the idle timer.
func (s *Session) touch() {
	s.lastMu.Lock()
	s.lastActive = s.mgr.now()
	s.lastMu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastActive
}

// close releases the pipeline. Callers hold no session locks.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.proc.Close(); err != nil {
		slog.Warn("session: pipeline close error", "session_id", s.id, "err", err)
	}
}

// Manager owns the lifecycle of all live audio sessions. All exported
// methods are safe for concurrent use.
type Manager struct {
	pipelineCfg config.PipelineConfig
	idleTimeout time.Duration
	maxSessions int

	denoiser  denoise.Engine
	resampler resample.Engine
	metrics   *observe.Metrics
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	done     chan struct{}
	stopOnce sync.Once
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Pipeline provides the per-session preprocessing defaults.
	Pipeline config.PipelineConfig

	// Sessions provides idle-timeout and cap settings.
	Sessions config.SessionsConfig

	// Denoiser and Resampler back the corresponding pipeline stages. Either
	// may be nil; the affected stage degrades to pass-through.
	Denoiser  denoise.Engine
	Resampler resample.Engine

	// Metrics receives session gauges and pipeline counters. Nil disables
	// recording.
	Metrics *observe.Metrics

	// Logger is the base logger; per-session loggers derive from it. Nil
	// means slog.Default.
	Logger *slog.Logger

	// Now injects the time source for tests. Nil means time.Now.
	Now func() time.Time
}

// NewManager creates a session manager and starts its idle reaper when an
// idle timeout is configured.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		pipelineCfg: cfg.Pipeline,
		idleTimeout: cfg.Sessions.IdleTimeout.Std(),
		maxSessions: cfg.Sessions.MaxSessions,
		denoiser:    cfg.Denoiser,
		resampler:   cfg.Resampler,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		now:         cfg.Now,
		sessions:    make(map[string]*Session),
		done:        make(chan struct{}),
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.idleTimeout > 0 {
		go m.reapLoop()
	}
	return m
}

// Create builds a new session with the manager's pipeline defaults, optionally
// overridden per stream. Returns ErrSessionExists for duplicate IDs and
// ErrTooManySessions when the cap is reached.
func (m *Manager) Create(id string, overrides ...SessionOverride) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrTooManySessions, m.maxSessions)
	}

	pcfg := pipeline.Config{
		InputRate:      m.pipelineCfg.InputRate,
		OutputRate:     m.pipelineCfg.OutputRate,
		DenoiseEnabled: m.pipelineCfg.Denoise,
		AGCEnabled:     m.pipelineCfg.AGC,
		LimiterEnabled: m.pipelineCfg.Limiter,
		ResetTimeout:   m.pipelineCfg.ResetTimeout.Std(),
		AGC: pipeline.AGCConfig{
			TargetLevel: m.pipelineCfg.AGCTuning.TargetLevel,
			MinGain:     m.pipelineCfg.AGCTuning.MinGain,
			MaxGain:     m.pipelineCfg.AGCTuning.MaxGain,
			Attack:      m.pipelineCfg.AGCTuning.Attack.Std(),
			Release:     m.pipelineCfg.AGCTuning.Release.Std(),
		},
		Limiter: pipeline.LimiterConfig{
			Threshold: m.pipelineCfg.LimiterTuning.Threshold,
			Knee:      m.pipelineCfg.LimiterTuning.Knee,
		},
	}
	for _, o := range overrides {
		o(&pcfg)
	}

	now := m.now()
	sess := &Session{
		id:         id,
		mgr:        m,
		started:    now,
		lastActive: now,
		silence:    make(chan struct{}, 1),
	}

	sess.proc = pipeline.New(pcfg,
		pipeline.WithDenoiseEngine(m.denoiser),
		pipeline.WithResampler(m.resampler),
		pipeline.WithMetrics(m.metrics),
		pipeline.WithLogger(m.log.With("session_id", id)),
		pipeline.WithClock(m.now),
		pipeline.WithSilenceNotifier(pipeline.NotifierFunc(func() {
			select {
			case sess.silence <- struct{}{}:
			default:
			}
		})),
	)

	m.sessions[id] = sess
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	m.log.Info("session created", "session_id", id, "sessions", len(m.sessions))
	return sess, nil
}

// SessionOverride adjusts the pipeline config of a single session at
// creation, typically from transport query parameters.
type SessionOverride func(*pipeline.Config)

// WithRates overrides the session's input and output sample rates. Values
// that are zero or negative keep the manager default.
func WithRates(inputRate, outputRate int) SessionOverride {
	return func(c *pipeline.Config) {
		if inputRate > 0 {
			c.InputRate = inputRate
		}
		if outputRate > 0 {
			c.OutputRate = outputRate
		}
	}
}

// Get returns the session with the given ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Release closes the session with the given ID and removes it. Releasing an
// unknown ID is a no-op.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	sess.close()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	m.log.Info("session released", "session_id", id, "sessions", remaining)
}

// ApplyStages pushes hot-reloaded stage toggles to all live sessions and
// updates the defaults for sessions created afterwards.
func (m *Manager) ApplyStages(d config.ConfigDiff) {
	if !d.StagesChanged {
		return
	}

	m.mu.Lock()
	if d.DenoiseChanged {
		m.pipelineCfg.Denoise = d.NewDenoise
	}
	if d.AGCChanged {
		m.pipelineCfg.AGC = d.NewAGC
	}
	if d.LimiterChanged {
		m.pipelineCfg.Limiter = d.NewLimiter
	}
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		if d.DenoiseChanged {
			_ = s.SetStage("denoise", d.NewDenoise)
		}
		if d.AGCChanged {
			_ = s.SetStage("agc", d.NewAGC)
		}
		if d.LimiterChanged {
			_ = s.SetStage("limiter", d.NewLimiter)
		}
	}
	m.log.Info("applied stage toggles to live sessions", "sessions", len(live))
}

// Close stops the reaper and releases every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.done)
	})

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Release(id)
	}
}

// reapLoop periodically releases sessions that have been idle longer than
// the configured timeout.
func (m *Manager) reapLoop() {
	interval := m.idleTimeout / 2
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

// reapIdle releases every session whose last activity is older than the idle
// timeout.
func (m *Manager) reapIdle() {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.log.Info("reaping idle session", "session_id", id, "idle_timeout", m.idleTimeout)
		m.Release(id)
	}
}
