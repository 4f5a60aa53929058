package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV renders a 16-bit PCM sine into a temporary WAV file.
func writeTestWAV(t *testing.T, channels, sampleRate int, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	frames := int(seconds * float64(sampleRate))
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for ch := 0; ch < channels; ch++ {
			data[i*channels+ch] = v
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           data,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing WAV: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	return path
}

func TestDecodeWAVMono(t *testing.T) {
	const sampleRate = 8000
	path := writeTestWAV(t, 1, sampleRate, 0.5)

	clip, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != sampleRate {
		t.Errorf("SampleRate = %d, want %d", clip.SampleRate, sampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Channels = %d, want 1", clip.Channels)
	}
	wantFrames := int(0.5 * sampleRate)
	if len(clip.Samples) != wantFrames {
		t.Errorf("got %d samples, want %d", len(clip.Samples), wantFrames)
	}
	if d := clip.Duration(); math.Abs(d-0.5) > 1e-6 {
		t.Errorf("Duration = %v, want 0.5", d)
	}
	for i, s := range clip.Samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d = %v, outside [-1, 1]", i, s)
		}
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	path := writeTestWAV(t, 2, 8000, 0.25)

	clip, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Channels != 2 {
		t.Errorf("Channels = %d, want 2", clip.Channels)
	}
	wantFrames := int(0.25 * 8000)
	if len(clip.Samples) != wantFrames {
		t.Errorf("got %d mono samples, want %d", len(clip.Samples), wantFrames)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	if _, err := Decode("clip.ogg"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("got err %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeMissingFile(t *testing.T) {
	if _, err := Decode(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Error("decoding a missing file succeeded")
	}
}

func TestProbeNoTags(t *testing.T) {
	// A bare PCM WAV has no tag chunk; Probe returns empty metadata, not an
	// error.
	path := writeTestWAV(t, 1, 8000, 0.1)
	meta := Probe(path)
	if meta.Title != "" || meta.Artist != "" || meta.Album != "" {
		t.Errorf("Probe = %+v, want empty metadata", meta)
	}
}

func TestProbeMissingFile(t *testing.T) {
	meta := Probe(filepath.Join(t.TempDir(), "absent.mp3"))
	if meta != (Meta{}) {
		t.Errorf("Probe on missing file = %+v, want zero value", meta)
	}
}
