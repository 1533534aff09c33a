package pipeline

// Accumulator buffers incoming samples until enough exist to form one
// fixed-size denoiser frame, carrying the remainder forward across chunks.
//
// The buffer is capped: if an append would exceed maxSamples, the oldest
// excess samples are discarded from the front. This is a deliberate lossy
// degradation that bounds worst-case memory and latency under sustained
// input bursts — never an error.
//
// Not safe for concurrent use; owned by a single Processor.
type Accumulator struct {
	frameSize  int
	maxSamples int
	buf        []int16
}

// NewAccumulator creates an accumulator producing frames of frameSize
// samples, retaining at most maxSamples pending samples.
func NewAccumulator(frameSize, maxSamples int) *Accumulator {
	return &Accumulator{
		frameSize:  frameSize,
		maxSamples: maxSamples,
		buf:        make([]int16, 0, maxSamples),
	}
}

// Push appends samples to the pending buffer, dropping the oldest samples
// when the cap is exceeded.
func (a *Accumulator) Push(samples []int16) {
	a.buf = append(a.buf, samples...)
	if len(a.buf) > a.maxSamples {
		drop := len(a.buf) - a.maxSamples
		// Shift in place so evicted samples do not pin the backing array.
		copy(a.buf, a.buf[drop:])
		a.buf = a.buf[:a.maxSamples]
	}
}

// PopFrame extracts and removes one complete frame from the front of the
// buffer. Returns false when fewer than one frame's worth of samples remain.
// The returned slice is a copy; callers may retain it freely.
func (a *Accumulator) PopFrame() ([]int16, bool) {
	if len(a.buf) < a.frameSize {
		return nil, false
	}
	frame := make([]int16, a.frameSize)
	copy(frame, a.buf[:a.frameSize])
	copy(a.buf, a.buf[a.frameSize:])
	a.buf = a.buf[:len(a.buf)-a.frameSize]
	return frame, true
}

// Len returns the number of pending samples.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Reset discards all pending samples.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
}
