package audio

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// DecodeWAV decodes a WAV blob into mono float32 samples plus its sample
// rate. Multi-channel input is downmixed by averaging; integer samples are
// normalized by source bit depth.
func DecodeWAV(b []byte) ([]float32, int, error) {
	r := bytes.NewReader(b)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		if err == io.EOF {
			err = nil
		} else {
			return nil, 0, err
		}
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("empty wav buffer")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	maxInt := 1 << (bitDepth - 1)
	if maxInt <= 0 {
		maxInt = 32768
	}
	max := float32(maxInt)

	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	out := make([]float32, 0, len(buf.Data)/channels)
	if channels == 1 {
		for _, v := range buf.Data {
			out = append(out, float32(v)/max)
		}
	} else {
		for i := 0; i+channels <= len(buf.Data); i += channels {
			var sum float32
			for c := 0; c < channels; c++ {
				sum += float32(buf.Data[i+c]) / max
			}
			out = append(out, sum/float32(channels))
		}
	}

	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = 16000
	}
	return out, sr, nil
}

// DecodeWAVFile reads and decodes a WAV file from disk.
func DecodeWAVFile(path string) ([]float32, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return DecodeWAV(b)
}
