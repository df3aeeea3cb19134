package audio

import "encoding/binary"

// SamplesToBytes encodes samples as 16-bit little-endian PCM.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples decodes 16-bit little-endian PCM. A trailing odd byte is
// ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// ApplyGain returns samples scaled by gain and clamped to the int16 range.
// The input is returned as is when gain is 0 or 1.
func ApplyGain(samples []int16, gain float64) []int16 {
	if gain == 0 || gain == 1 {
		return samples
	}
	out := make([]int16, len(samples))
	for i, sample := range samples {
		boosted := float64(sample) * gain
		if boosted > 32767 {
			boosted = 32767
		} else if boosted < -32768 {
			boosted = -32768
		}
		out[i] = int16(boosted)
	}
	return out
}
