// Package audio decodes WAV and MP3 files into the mono float64 samples the
// fingerprinting pipeline consumes, and probes embedded tags.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for file extensions the decoder does not
// handle.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Clip holds decoded audio: mono samples normalized to [-1, 1]. Channels
// records the source channel count before downmixing.
type Clip struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Decode reads an audio file, dispatching on its extension (.wav, .mp3).
func Decode(path string) (*Clip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(path)
	case ".mp3":
		return DecodeMP3(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// DecodeWAV reads a PCM WAV file, scales samples by the source bit depth
// and averages the channels down to mono.
func DecodeWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%s: missing format information", path)
	}

	channels := buf.Format.NumChannels
	scale := float64(int(1) << (buf.SourceBitDepth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float64(channels)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   channels,
	}, nil
}

// DecodeMP3 reads an MP3 file. go-mp3 always emits 16-bit little-endian
// stereo, which is averaged to mono.
func DecodeMP3(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading MP3 stream: %w", err)
	}

	const scale = 1.0 / 32768.0
	frames := len(raw) / 4 // 2 channels x 2 bytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(raw[4*i]) | uint16(raw[4*i+1])<<8)
		right := int16(uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8)
		samples[i] = (float64(left) + float64(right)) * 0.5 * scale
	}

	return &Clip{
		Samples:    samples,
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}
