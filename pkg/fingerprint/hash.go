package fingerprint

import (
	"fmt"
	"math"
	"sort"
)

// Bit layout of a packed hash: 15 bits anchor frequency, 15 bits target
// frequency, 22 bits delta time in milliseconds.
const (
	packFreqBits  = 15
	packDeltaBits = 22
	packFreqMask  = (1 << packFreqBits) - 1
	packDeltaMask = (1 << packDeltaBits) - 1
)

// Hash is the combinatorial key binding an anchor landmark to a target-zone
// landmark. The fields are quantized to an integer grid (whole Hz, whole
// milliseconds) so that hashes computed from slightly perturbed recordings
// of the same audio still collide exactly. Hash is comparable and can be
// used directly as a map key.
type Hash struct {
	AnchorFreq int // Hz
	TargetFreq int // Hz
	DeltaMs    int // target time minus anchor time, milliseconds
}

// Validate reports whether the hash fits the packed bit layout: frequencies
// in [0, 32767] Hz and a delta in [0, 4194303] ms. GenerateHashes rejects
// anything outside these ranges, so stored hashes always round-trip.
func (h Hash) Validate() error {
	if h.AnchorFreq < 0 || h.AnchorFreq > packFreqMask ||
		h.TargetFreq < 0 || h.TargetFreq > packFreqMask {
		return fmt.Errorf("%w: hash frequency outside packable range [0, %d]: %+v",
			ErrInvalidConfiguration, packFreqMask, h)
	}
	if h.DeltaMs < 0 || h.DeltaMs > packDeltaMask {
		return fmt.Errorf("%w: hash delta outside packable range [0, %d]: %+v",
			ErrInvalidConfiguration, packDeltaMask, h)
	}
	return nil
}

// Pack encodes the hash into a stable 64-bit value for storage backends.
// The hash must satisfy Validate; out-of-range fields would alias another
// hash identity.
func (h Hash) Pack() uint64 {
	return uint64(h.AnchorFreq&packFreqMask)<<(packFreqBits+packDeltaBits) |
		uint64(h.TargetFreq&packFreqMask)<<packDeltaBits |
		uint64(h.DeltaMs&packDeltaMask)
}

// UnpackHash reverses Pack.
func UnpackHash(v uint64) Hash {
	return Hash{
		AnchorFreq: int(v >> (packFreqBits + packDeltaBits) & packFreqMask),
		TargetFreq: int(v >> packDeltaBits & packFreqMask),
		DeltaMs:    int(v & packDeltaMask),
	}
}

// HashEntry couples a hash key with the anchor's absolute time. The hash is
// the lookup key; AnchorTime is the payload retrieved during matching.
// TrackID is empty for query-side entries and stamped during ingestion.
type HashEntry struct {
	Hash       Hash
	AnchorTime float64 // seconds
	TrackID    string
}

// TargetZone describes the rectangle, relative to each anchor, in which
// partner landmarks are sought, plus the fan-out cap on pairs per anchor.
// The zone spans (anchor.Time+OffsetTime, anchor.Time+OffsetTime+DeltaTime)
// in time and (anchor.Freq+OffsetFreq, anchor.Freq+OffsetFreq+DeltaFreq) in
// frequency, all four bounds exclusive.
type TargetZone struct {
	OffsetTime float64 // seconds
	OffsetFreq float64 // Hz
	DeltaTime  float64 // seconds, zone width
	DeltaFreq  float64 // Hz, zone height
	FanOut     int     // max pairs per anchor
}

// Validate reports ErrInvalidConfiguration for a zero-area zone or a
// negative fan-out. A fan-out of zero is legal and yields no hashes.
func (z TargetZone) Validate() error {
	if z.DeltaTime <= 0 || z.DeltaFreq <= 0 {
		return fmt.Errorf("%w: target zone must have positive area, got delta time %v and delta freq %v",
			ErrInvalidConfiguration, z.DeltaTime, z.DeltaFreq)
	}
	if z.FanOut < 0 {
		return fmt.Errorf("%w: fan-out must not be negative, got %d",
			ErrInvalidConfiguration, z.FanOut)
	}
	return nil
}

// GenerateHashes produces the combinatorial hash entries of a constellation
// map. Every landmark acts as an anchor in map order; among the landmarks
// falling strictly inside its target zone, the first FanOut in map order are
// paired with it. Each pair emits one entry whose hash encodes the two
// frequencies and the time delta, and whose payload is the anchor's own
// time. Output volume is O(len(cm) * zone.FanOut).
//
// Anchor-target pairs are invariant to a constant time shift of the whole
// recording: the key holds only relative quantities, so a cropped recording
// generates the same keys with shifted anchor times.
func GenerateHashes(cm ConstellationMap, zone TargetZone) ([]HashEntry, error) {
	if err := zone.Validate(); err != nil {
		return nil, err
	}

	entries := make([]HashEntry, 0, len(cm)*zone.FanOut)
	for _, anchor := range cm {
		loTime := anchor.Time + zone.OffsetTime
		hiTime := loTime + zone.DeltaTime
		loFreq := anchor.Freq + zone.OffsetFreq
		hiFreq := loFreq + zone.DeltaFreq

		// The map is time-ordered, so the zone occupies a contiguous span:
		// jump to its first candidate and stop past its end.
		start := sort.Search(len(cm), func(k int) bool { return cm[k].Time > loTime })
		taken := 0
		for k := start; k < len(cm) && taken < zone.FanOut; k++ {
			target := cm[k]
			if target.Time >= hiTime {
				break
			}
			if target.Freq <= loFreq || target.Freq >= hiFreq {
				continue
			}
			h := quantizeHash(anchor, target)
			if err := h.Validate(); err != nil {
				return nil, err
			}
			entries = append(entries, HashEntry{
				Hash:       h,
				AnchorTime: anchor.Time,
			})
			taken++
		}
	}
	return entries, nil
}

// quantizeHash rounds the pair onto the integer grid (whole Hz, whole ms,
// half away from zero) that makes perturbed recordings collide.
func quantizeHash(anchor, target Landmark) Hash {
	return Hash{
		AnchorFreq: int(math.Round(anchor.Freq)),
		TargetFreq: int(math.Round(target.Freq)),
		DeltaMs:    int(math.Round((target.Time - anchor.Time) * 1000)),
	}
}
