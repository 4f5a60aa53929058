package fingerprint

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Source is the lookup surface the Matcher consults. *Index satisfies it;
// storage-backed views can satisfy it too.
type Source interface {
	Lookup(Hash) []Occurrence
}

// MatchResult reports one candidate track of a query. OffsetSeconds is the
// estimated start offset of the query within the track (database anchor time
// minus query anchor time, at the dominant histogram bucket). Score is the
// dominant bucket's count; TotalHashes is the candidate's hit count across
// all buckets, used as the tie-break evidence.
type MatchResult struct {
	TrackID       string
	OffsetSeconds float64
	Score         int
	TotalHashes   int
}

// Matcher ranks candidate tracks by time-offset consensus: every query hit
// votes for (track, offset) where offset is the database anchor time minus
// the query anchor time, and a track's score is the tallest bucket of its
// offset histogram. True matches concentrate in one bucket because all
// landmark pairs shift by the same real offset; false matches scatter.
type Matcher struct {
	src         Source
	bucketWidth float64
}

// NewMatcher wires a matcher to src. bucketWidth quantizes offsets before
// voting, absorbing the timing jitter of independent STFT framing between
// the ingested and queried recordings; it must be positive.
func NewMatcher(src Source, bucketWidth float64) (*Matcher, error) {
	if bucketWidth <= 0 {
		return nil, fmt.Errorf("%w: bucket width must be positive, got %v",
			ErrInvalidConfiguration, bucketWidth)
	}
	return &Matcher{src: src, bucketWidth: bucketWidth}, nil
}

// Match scores the query entries against the source and returns candidates
// best first. Ranking is by descending score, then descending total hit
// count, then ascending track ID. A query with zero index hits returns an
// empty slice and no error: an unknown recording is a normal outcome.
func (m *Matcher) Match(ctx context.Context, entries []HashEntry) ([]MatchResult, error) {
	votes := make(map[string]map[int]int)
	totals := make(map[string]int)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, occ := range m.src.Lookup(e.Hash) {
			offset := occ.AnchorTime - e.AnchorTime
			bucket := int(math.Round(offset / m.bucketWidth))
			hist := votes[occ.TrackID]
			if hist == nil {
				hist = make(map[int]int)
				votes[occ.TrackID] = hist
			}
			hist[bucket]++
			totals[occ.TrackID]++
		}
	}

	results := make([]MatchResult, 0, len(votes))
	for trackID, hist := range votes {
		bucket, count := dominantBucket(hist)
		results = append(results, MatchResult{
			TrackID:       trackID,
			OffsetSeconds: float64(bucket) * m.bucketWidth,
			Score:         count,
			TotalHashes:   totals[trackID],
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].TotalHashes != results[j].TotalHashes {
			return results[i].TotalHashes > results[j].TotalHashes
		}
		return results[i].TrackID < results[j].TrackID
	})
	return results, nil
}

// dominantBucket picks the tallest bucket; ties go to the lowest bucket
// index for determinism.
func dominantBucket(hist map[int]int) (bucket, count int) {
	first := true
	for b, c := range hist {
		if first || c > count || (c == count && b < bucket) {
			bucket, count = b, c
			first = false
		}
	}
	return bucket, count
}
