package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeFloat32LE interprets b as little-endian IEEE-754 float32 samples (the
// layout of a browser Float32Array) and wraps them in a mono Buffer at rate
// Hz. Trailing bytes that do not form a whole sample are rejected.
func DecodeFloat32LE(b []byte, rate int) (Buffer, error) {
	if len(b)%4 != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes is not a whole number of float32 samples", ErrInvalidFormat, len(b))
	}
	if rate <= 0 {
		return Buffer{}, fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, rate)
	}
	out := NewBuffer(len(b)/4, rate)
	for i := range out.Samples {
		out.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of [DecodeFloat32LE].
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Clamp limits s to [-1.0, 1.0]. NaN maps to 0.
func Clamp(s float32) float32 {
	switch {
	case s != s:
		return 0
	case s < -1:
		return -1
	case s > 1:
		return 1
	}
	return s
}

// ToPCM16 converts a float sample to a signed 16-bit PCM value. The sample is
// clamped first; negative values scale by 32768 and non-negative values by
// 32767, truncating toward zero, so -1.0 maps to -32768 and 1.0 to 32767.
func ToPCM16(s float32) int16 {
	c := float64(Clamp(s))
	if c < 0 {
		return int16(c * 0x8000)
	}
	return int16(c * 0x7FFF)
}

// FromPCM16 converts a signed 16-bit PCM value back to a float sample using
// the same asymmetric scale as [ToPCM16].
func FromPCM16(v int16) float32 {
	if v < 0 {
		return float32(v) / 0x8000
	}
	return float32(v) / 0x7FFF
}

// Resample returns b converted to dstRate using linear interpolation. If the
// rates already match, b is returned unchanged (zero allocation).
func Resample(b Buffer, dstRate int) Buffer {
	if b.SampleRate <= 0 || dstRate <= 0 || b.SampleRate == dstRate || len(b.Samples) == 0 {
		if dstRate > 0 && len(b.Samples) == 0 {
			b.SampleRate = dstRate
		}
		return b
	}
	srcSamples := len(b.Samples)
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(b.SampleRate))
	out := NewBuffer(dstSamples, dstRate)
	ratio := float64(b.SampleRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := float64(b.Samples[srcIdx])
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = float64(b.Samples[srcIdx+1])
		}
		out.Samples[i] = float32(s0*(1-frac) + s1*frac)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
