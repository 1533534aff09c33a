// Package audio provides the PCM primitives shared by the preprocessing
// pipeline and the transport layer: little-endian int16 byte packing,
// normalized-float conversion, and channel helpers.
//
// All functions operate on raw little-endian signed 16-bit PCM, the wire
// format of every stream in and out of Clario.
package audio

// fullScale is the divisor mapping int16 PCM to normalized [-1, 1) floats.
const fullScale = 32768.0

// BytesToSamples unpacks little-endian int16 PCM bytes into samples.
// A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes packs int16 samples into little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// SamplesToFloat converts int16 samples to normalized float64 amplitude.
func SamplesToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / fullScale
	}
	return out
}

// FloatToSamples converts normalized float64 amplitude back to int16,
// clamping to the representable range.
func FloatToSamples(fs []float64) []int16 {
	out := make([]int16, len(fs))
	for i, f := range fs {
		out[i] = ClampSample(f * fullScale)
	}
	return out
}

// ClampSample clamps a float value to the int16 sample range.
func ClampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// StereoToMono averages L+R per interleaved stereo frame to produce mono
// samples. Uses int32 arithmetic to prevent overflow and clamps to int16
// range.
func StereoToMono(stereo []int16) []int16 {
	frames := len(stereo) / 2
	out := make([]int16, frames)
	for i := range frames {
		avg := (int32(stereo[i*2]) + int32(stereo[i*2+1])) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i] = int16(avg)
	}
	return out
}
