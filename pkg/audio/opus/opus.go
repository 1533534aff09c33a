// Package opus decodes Opus ingress packets into mono PCM16 for the
// preprocessing pipeline.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/clariohq/clario/pkg/audio"
)

// maxFrameSize is the largest Opus frame the decoder accepts: 120 ms at
// 48 kHz per channel.
const maxFrameSize = 5760

// Decoder wraps a gopus Opus decoder for a single audio stream. Each stream
// gets its own decoder to maintain decoder state correctly across
// consecutive packets. Not safe for concurrent use.
type Decoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewDecoder creates an Opus decoder for the given sample rate and channel
// count (1 or 2).
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("opus: unsupported channel count %d", channels)
	}
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// DecodeToMono decodes one Opus packet into mono PCM16 samples. Stereo
// packets are downmixed by channel averaging.
func (d *Decoder) DecodeToMono(packet []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(packet, maxFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	if d.channels == 2 {
		return audio.StereoToMono(pcm), nil
	}
	return pcm, nil
}
