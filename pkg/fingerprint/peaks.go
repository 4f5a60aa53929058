package fingerprint

import (
	"fmt"
	"sort"
)

// Landmark is a salient time-frequency peak used as a robust feature.
type Landmark struct {
	Time float64 // seconds
	Freq float64 // Hz
}

// ConstellationMap is the full set of landmarks for a recording, ordered by
// ascending time with ties broken by ascending frequency. The ordering is
// load-bearing: GenerateHashes iterates anchors in this order and scans
// forward for targets.
type ConstellationMap []Landmark

// ExtractPeaks scans the spectrogram and returns the constellation map using
// the default 3x3 (8-connected) neighborhood.
func ExtractPeaks(sp *Spectrogram, threshold float64) (ConstellationMap, error) {
	return ExtractPeaksWindow(sp, threshold, 3)
}

// ExtractPeaksWindow returns the landmarks of sp: the grid points whose
// amplitude is at least threshold dB and which are strict local maxima over
// a square neighborhood of odd side window. At grid borders the window is
// clipped, so border points compare only against the neighbors that exist.
//
// Equal-amplitude ties are broken deterministically: within a tied
// neighborhood only the first point in row-major scan order (frequency bin,
// then time frame) survives. A threshold above the grid's global maximum
// yields an empty map, not an error.
func ExtractPeaksWindow(sp *Spectrogram, threshold float64, window int) (ConstellationMap, error) {
	if err := sp.Validate(); err != nil {
		return nil, err
	}
	if window < 3 || window%2 == 0 {
		return nil, fmt.Errorf("%w: peak window must be odd and >= 3, got %d",
			ErrInvalidConfiguration, window)
	}

	nf := len(sp.Freqs)
	nt := len(sp.Times)
	half := window / 2

	cm := make(ConstellationMap, 0, 64)
	for i := 0; i < nf; i++ {
		for j := 0; j < nt; j++ {
			amp := sp.Amps[i][j]
			if amp < threshold {
				continue
			}
			if !isLocalMax(sp.Amps, i, j, half, nf, nt) {
				continue
			}
			cm = append(cm, Landmark{Time: sp.Times[j], Freq: sp.Freqs[i]})
		}
	}

	sort.Slice(cm, func(a, b int) bool {
		if cm[a].Time == cm[b].Time {
			return cm[a].Freq < cm[b].Freq
		}
		return cm[a].Time < cm[b].Time
	})
	return cm, nil
}

// isLocalMax reports whether (i, j) dominates its clipped neighborhood.
// A neighbor with strictly greater amplitude disqualifies the point; a
// neighbor with equal amplitude disqualifies it only when that neighbor
// precedes (i, j) in row-major order, which suppresses all but the first
// point of a tied plateau.
func isLocalMax(amps [][]float64, i, j, half, nf, nt int) bool {
	amp := amps[i][j]
	for di := -half; di <= half; di++ {
		ni := i + di
		if ni < 0 || ni >= nf {
			continue
		}
		for dj := -half; dj <= half; dj++ {
			nj := j + dj
			if nj < 0 || nj >= nt || (di == 0 && dj == 0) {
				continue
			}
			a := amps[ni][nj]
			if a > amp {
				return false
			}
			if a == amp && (ni < i || (ni == i && nj < j)) {
				return false
			}
		}
	}
	return true
}
