package pipeline

import "time"

// speechThreshold is the probability above which a frame counts as speech.
const speechThreshold = 0.5

// SilenceNotifier receives a notification when the pipeline resets itself
// after a silence timeout. Implementations run synchronously inside
// ProcessChunk on the caller's goroutine and must not block; panics are
// contained and logged by the Processor, never propagated into the audio
// path.
type SilenceNotifier interface {
	NotifySilence()
}

// NotifierFunc adapts a plain function to the SilenceNotifier interface.
type NotifierFunc func()

// NotifySilence calls f.
func (f NotifierFunc) NotifySilence() { f() }

// MonitorState is the silence monitor's current state.
type MonitorState int

const (
	// StateActive means speech was observed within the reset timeout.
	StateActive MonitorState = iota

	// StateIdle means the reset timeout has elapsed since the last speech.
	StateIdle
)

// String returns the human-readable name of the state.
func (s MonitorState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Transition is the outcome of evaluating the silence monitor at the start
// of a chunk.
type Transition struct {
	// Reset indicates the processor must clear its state before denoising
	// resumes: denoiser recurrent state, frame buffer, and AGC gain.
	Reset bool

	// Notify indicates the reset was driven by the silence timeout (not a
	// manual request) and the silence notification must fire. Never true
	// unless Reset is.
	Notify bool
}

// silenceMonitor decides when the denoiser's recurrent state has gone stale.
//
// The denoiser's model accumulates bias when it processes non-speech audio
// for too long, so the monitor tracks the recency of detected speech and
// arms a reset once the timeout elapses. Manual resets (RequestReset) arm
// the same clearing without the notification.
//
// Not safe for concurrent use; owned by a single Processor.
type silenceMonitor struct {
	timeout      time.Duration
	now          func() time.Time
	lastSpeech   time.Time
	pendingReset bool
}

func newSilenceMonitor(timeout time.Duration, now func() time.Time) *silenceMonitor {
	return &silenceMonitor{
		timeout:    timeout,
		now:        now,
		lastSpeech: now(),
	}
}

// Observe records a speech-probability estimate. Probabilities above the
// speech threshold refresh the last-speech timestamp, keeping the monitor
// in the active state.
func (m *silenceMonitor) Observe(prob float64) {
	if prob > speechThreshold {
		m.lastSpeech = m.now()
	}
}

// RequestReset arms a silent reset for the next Evaluate call.
func (m *silenceMonitor) RequestReset() {
	m.pendingReset = true
}

// State reports whether the monitor is Active or Idle.
func (m *silenceMonitor) State() MonitorState {
	if m.now().Sub(m.lastSpeech) > m.timeout {
		return StateIdle
	}
	return StateActive
}

// Evaluate decides whether the processor must reset before handling the next
// chunk. When a reset fires, the last-speech timestamp is refreshed to
// prevent an immediate re-trigger on the following chunk, and any pending
// manual request is consumed.
func (m *silenceMonitor) Evaluate() Transition {
	silenceElapsed := m.now().Sub(m.lastSpeech) > m.timeout
	if !m.pendingReset && !silenceElapsed {
		return Transition{}
	}
	m.pendingReset = false
	m.lastSpeech = m.now()
	return Transition{Reset: true, Notify: silenceElapsed}
}

// MarkReset refreshes the last-speech timestamp after an explicit external
// reset so the timeout window restarts from now.
func (m *silenceMonitor) MarkReset() {
	m.pendingReset = false
	m.lastSpeech = m.now()
}
