// Package audio converts between the wire formats transports deliver and
// the mono float32 PCM the transcription engine consumes.
package audio

import (
	"errors"
	"time"
)

// PCM16ToFloat32 converts little-endian PCM16 bytes to float32 samples in
// [-1, 1).
func PCM16ToFloat32(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, errors.New("pcm16 length must be even")
	}
	out := make([]float32, len(b)/2)
	for i := 0; i < len(out); i++ {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// Float32ToPCM16 converts float32 samples to little-endian PCM16 bytes,
// clamping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767.0)
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// MuLawToPCM16 expands G.711 mu-law bytes (telephone audio) to PCM16
// samples.
func MuLawToPCM16(b []byte) []int16 {
	out := make([]int16, len(b))
	for i, u := range b {
		u = ^u
		sign := u & 0x80
		exp := (u >> 4) & 0x07
		mant := u & 0x0F
		t := ((int16(mant) << 3) + 0x84) << exp
		t -= 0x84
		if sign != 0 {
			t = -t
		}
		out[i] = t
	}
	return out
}

// MuLawToFloat32 expands mu-law bytes straight to float32 samples.
func MuLawToFloat32(b []byte) []float32 {
	pcm := MuLawToPCM16(b)
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Resample converts samples from inRate to outRate using linear
// interpolation. Rates equal or input empty returns a copy.
func Resample(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate || inRate <= 0 || outRate <= 0 || len(samples) == 0 {
		return append([]float32(nil), samples...)
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		s0 := samples[i0]
		s1 := samples[i0+1]
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}

// Duration reports the play time of n samples at the given rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}

// SampleCount reports how many samples cover d at the given rate.
func SampleCount(d time.Duration, rate int) int {
	if rate <= 0 || d <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(rate))
}
