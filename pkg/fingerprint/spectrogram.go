// Package fingerprint implements the core of a Shazam-style audio
// identification engine: landmark (peak) extraction from a magnitude
// spectrogram, combinatorial hashing of landmark pairs, an append-only
// inverted index of hash occurrences, and time-offset consensus matching.
//
// The package is pure computation: it performs no I/O, reads no clocks and
// uses no randomness, so every operation is deterministic for fixed inputs.
// Spectrogram computation, audio decoding and persistence live elsewhere and
// feed this package through its exported types.
package fingerprint

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpectrogram is returned when a spectrogram violates its
	// structural invariants (mismatched dimensions, non-increasing axes).
	ErrInvalidSpectrogram = errors.New("invalid spectrogram")

	// ErrInvalidConfiguration is returned when a tuning parameter is out of
	// its documented range. It is reported at the boundary where the
	// parameter is first used, before any processing begins.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Spectrogram is a time-frequency-amplitude representation of an audio
// signal. Amps is indexed [frequency bin][time frame] and holds magnitudes
// in dB. Times and Freqs carry the physical coordinates of the grid and must
// be strictly increasing. A Spectrogram is never mutated by this package.
type Spectrogram struct {
	Times []float64   // frame times in seconds, length T
	Freqs []float64   // bin frequencies in Hz, length F
	Amps  [][]float64 // F x T grid of magnitudes in dB
}

// Validate checks the structural invariants of the spectrogram. All
// violations are reported as ErrInvalidSpectrogram.
func (s *Spectrogram) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil spectrogram", ErrInvalidSpectrogram)
	}
	if len(s.Amps) != len(s.Freqs) {
		return fmt.Errorf("%w: %d amplitude rows for %d frequency bins",
			ErrInvalidSpectrogram, len(s.Amps), len(s.Freqs))
	}
	for i, row := range s.Amps {
		if len(row) != len(s.Times) {
			return fmt.Errorf("%w: row %d has %d columns, want %d",
				ErrInvalidSpectrogram, i, len(row), len(s.Times))
		}
	}
	for i := 1; i < len(s.Times); i++ {
		if s.Times[i] <= s.Times[i-1] {
			return fmt.Errorf("%w: times not strictly increasing at index %d",
				ErrInvalidSpectrogram, i)
		}
	}
	for i := 1; i < len(s.Freqs); i++ {
		if s.Freqs[i] <= s.Freqs[i-1] {
			return fmt.Errorf("%w: frequencies not strictly increasing at index %d",
				ErrInvalidSpectrogram, i)
		}
	}
	return nil
}
