package audio

import (
	"math"
	"testing"
	"time"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999, -1}
	b := Float32ToPCM16(in)
	if len(b) != len(in)*2 {
		t.Fatalf("expected %d bytes, got %d", len(in)*2, len(b))
	}
	out, err := PCM16ToFloat32(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if diff := math.Abs(float64(in[i] - out[i])); diff > 0.001 {
			t.Fatalf("sample %d: %f vs %f", i, in[i], out[i])
		}
	}
}

func TestPCM16RejectsOddLength(t *testing.T) {
	if _, err := PCM16ToFloat32([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for odd byte count")
	}
}

func TestMuLawKnownValues(t *testing.T) {
	got := MuLawToPCM16([]byte{0xFF, 0x7F, 0x80, 0x00})
	want := []int16{0, 0, 32124, -32124}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestResampleDoublesLength(t *testing.T) {
	in := make([]float32, 800)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 8000))
	}
	out := Resample(in, 8000, 16000)
	if len(out) != 1600 {
		t.Fatalf("expected 1600 samples, got %d", len(out))
	}
}

func TestResampleSameRateReturnsCopy(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	in[0] = 9
	if out[0] != 0.1 {
		t.Fatalf("expected independent copy, got %f", out[0])
	}
}

func TestDurationHelpers(t *testing.T) {
	if d := Duration(16000, 16000); d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
	if n := SampleCount(250*time.Millisecond, 16000); n != 4000 {
		t.Fatalf("expected 4000 samples, got %d", n)
	}
}
