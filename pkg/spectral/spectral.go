// Package spectral is the spectrogram provider: it turns mono PCM samples
// into the magnitude-in-dB grid the fingerprint package consumes. The FFT
// runs through a single gonum plan reused across frames.
package spectral

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/audionautics/wavemark/pkg/fingerprint"
)

// ErrShortSignal is returned when the input holds fewer samples than one
// STFT frame.
var ErrShortSignal = errors.New("signal shorter than one frame")

// Floor applied to spectral power before the dB conversion, matching the
// reference pipeline's amin.
const powerFloor = 1e-10

// Compute runs a Hann-windowed STFT over samples and returns the
// spectrogram. frameSize and hopSize must be positive powers of two;
// sampleRate is in Hz. The grid holds frameSize/2+1 frequency bins (Nyquist
// inclusive) with Freqs[k] = k*sampleRate/frameSize, frame-start times
// Times[i] = i*hopSize/sampleRate, and amplitudes 10*log10 of spectral
// power.
func Compute(samples []float64, sampleRate, frameSize, hopSize int) (*fingerprint.Spectrogram, error) {
	if err := checkParams(sampleRate, frameSize, hopSize); err != nil {
		return nil, err
	}
	return stft(samples, sampleRate, frameSize, hopSize, window.Hann(frameSize))
}

// ComputeWindowed is Compute with a caller-supplied window vector (for
// example window.Hamming from go-dsp). len(win) must equal frameSize.
func ComputeWindowed(samples []float64, sampleRate, frameSize, hopSize int, win []float64) (*fingerprint.Spectrogram, error) {
	if err := checkParams(sampleRate, frameSize, hopSize); err != nil {
		return nil, err
	}
	if len(win) != frameSize {
		return nil, fmt.Errorf("%w: window length %d does not match frame size %d",
			fingerprint.ErrInvalidConfiguration, len(win), frameSize)
	}
	return stft(samples, sampleRate, frameSize, hopSize, win)
}

func checkParams(sampleRate, frameSize, hopSize int) error {
	if frameSize <= 0 || frameSize&(frameSize-1) != 0 {
		return fmt.Errorf("%w: frame size must be a positive power of two, got %d",
			fingerprint.ErrInvalidConfiguration, frameSize)
	}
	if hopSize <= 0 || hopSize&(hopSize-1) != 0 {
		return fmt.Errorf("%w: hop size must be a positive power of two, got %d",
			fingerprint.ErrInvalidConfiguration, hopSize)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d",
			fingerprint.ErrInvalidConfiguration, sampleRate)
	}
	return nil
}

func stft(samples []float64, sampleRate, frameSize, hopSize int, win []float64) (*fingerprint.Spectrogram, error) {
	if len(samples) < frameSize {
		return nil, fmt.Errorf("%w: %d samples for frame size %d",
			ErrShortSignal, len(samples), frameSize)
	}

	frames := 1 + (len(samples)-frameSize)/hopSize
	bins := frameSize/2 + 1

	times := make([]float64, frames)
	for i := range times {
		times[i] = float64(i*hopSize) / float64(sampleRate)
	}
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(frameSize)
	}

	amps := make([][]float64, bins)
	for k := range amps {
		amps[k] = make([]float64, frames)
	}

	fft := fourier.NewFFT(frameSize)
	buf := make([]float64, frameSize)
	var coeff []complex128
	for i := 0; i < frames; i++ {
		start := i * hopSize
		for k := 0; k < frameSize; k++ {
			buf[k] = samples[start+k] * win[k]
		}
		coeff = fft.Coefficients(coeff, buf)
		for k := 0; k < bins; k++ {
			power := math.Pow(cmplx.Abs(coeff[k]), 2)
			if power < powerFloor {
				power = powerFloor
			}
			amps[k][i] = 10 * math.Log10(power)
		}
	}

	return &fingerprint.Spectrogram{Times: times, Freqs: freqs, Amps: amps}, nil
}
