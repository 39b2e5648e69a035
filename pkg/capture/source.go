package capture

import (
	"io"
	"math"

	"github.com/scribekit/scribe/pkg/audio"
)

// Source yields float32 PCM samples. Read follows io.Reader conventions:
// it fills p, returns the count, and io.EOF once exhausted.
type Source interface {
	Read(p []float32) (int, error)
}

// SampleSource replays a fixed sample slice. WAV files and test fixtures
// both end up here.
type SampleSource struct {
	samples []float32
	pos     int
}

func NewSampleSource(samples []float32) *SampleSource {
	return &SampleSource{samples: samples}
}

// NewWAVSource decodes a WAV file and resamples it to targetRate.
func NewWAVSource(path string, targetRate int) (*SampleSource, error) {
	samples, rate, err := audio.DecodeWAVFile(path)
	if err != nil {
		return nil, err
	}
	if targetRate > 0 && rate != targetRate {
		samples = audio.Resample(samples, rate, targetRate)
	}
	return &SampleSource{samples: samples}, nil
}

func (s *SampleSource) Read(p []float32) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(p, s.samples[s.pos:])
	s.pos += n
	return n, nil
}

// ToneSource generates a sine tone. Useful for exercising the pipeline
// without a microphone; a finite limit turns it into a timed clip.
type ToneSource struct {
	freq   float64
	rate   int
	limit  int
	amp    float64
	offset int
}

// NewToneSource generates freq Hz at rate. limit bounds the total samples
// produced; limit <= 0 means unbounded.
func NewToneSource(freq float64, rate, limit int) *ToneSource {
	if rate <= 0 {
		rate = 16000
	}
	return &ToneSource{freq: freq, rate: rate, limit: limit, amp: 0.4}
}

func (s *ToneSource) Read(p []float32) (int, error) {
	if s.limit > 0 && s.offset >= s.limit {
		return 0, io.EOF
	}
	n := len(p)
	if s.limit > 0 && s.offset+n > s.limit {
		n = s.limit - s.offset
	}
	for i := 0; i < n; i++ {
		t := float64(s.offset+i) / float64(s.rate)
		p[i] = float32(s.amp * math.Sin(2*math.Pi*s.freq*t))
	}
	s.offset += n
	return n, nil
}
