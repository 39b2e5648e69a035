//go:build !whisper_cpp

package whispercpp

import "github.com/scribekit/scribe/pkg/asr"

// New reports that the native backend is missing. Build with
// -tags whisper_cpp and a compiled whisper.cpp to enable local decoding.
func New(cfg Config) (asr.Decoder, error) {
	return nil, asr.ErrNotBuilt
}
