package fingerprint

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestMatcherRecoversShiftedQuery(t *testing.T) {
	// Ingest one hash for track A at anchor time 1.0, then query the same
	// key observed 10 seconds later: the matcher must report the -10 s
	// offset.
	ix := NewIndex()
	h := Hash{AnchorFreq: 1000, TargetFreq: 1500, DeltaMs: 2000}
	if err := ix.Ingest(context.Background(), "A", []HashEntry{{Hash: h, AnchorTime: 1.0}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	m, err := NewMatcher(ix, 0.2)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	results, err := m.Match(context.Background(), []HashEntry{{Hash: h, AnchorTime: 11.0}})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.TrackID != "A" || r.Score != 1 || r.TotalHashes != 1 {
		t.Errorf("result = %+v, want track A with score 1 of 1", r)
	}
	if math.Abs(r.OffsetSeconds-(-10.0)) > 1e-9 {
		t.Errorf("OffsetSeconds = %v, want -10.0", r.OffsetSeconds)
	}
}

func TestMatcherNoEvidenceNoMatch(t *testing.T) {
	ix := NewIndex()
	if err := ix.Ingest(context.Background(), "A", []HashEntry{
		{Hash: Hash{AnchorFreq: 100, TargetFreq: 200, DeltaMs: 300}, AnchorTime: 0},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	m, err := NewMatcher(ix, 0.2)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	results, err := m.Match(context.Background(), []HashEntry{
		{Hash: Hash{AnchorFreq: 999, TargetFreq: 888, DeltaMs: 777}, AnchorTime: 0},
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestMatcherOffsetConsensus(t *testing.T) {
	// Track A: three hits agreeing on one offset plus a stray. Track B:
	// four hits scattered across offsets. A must win on its dominant
	// bucket even though B has equal total evidence.
	ix := NewIndex()
	ctx := context.Background()
	mk := func(i int) Hash { return Hash{AnchorFreq: 100 + i, TargetFreq: 200, DeltaMs: 300} }

	for i := 0; i < 4; i++ {
		entry := []HashEntry{{Hash: mk(i), AnchorTime: float64(i)}}
		if err := ix.Ingest(ctx, "A", entry); err != nil {
			t.Fatalf("Ingest A: %v", err)
		}
		if err := ix.Ingest(ctx, "B", []HashEntry{{Hash: mk(i), AnchorTime: float64(i) * 3}}); err != nil {
			t.Fatalf("Ingest B: %v", err)
		}
	}

	// Query anchors shifted by -5 from A's anchors: offsets versus A are a
	// constant +5 except for the last entry, which is perturbed out of the
	// consensus bucket. Offsets versus B vary with i.
	query := []HashEntry{
		{Hash: mk(0), AnchorTime: -5.0},
		{Hash: mk(1), AnchorTime: -4.0},
		{Hash: mk(2), AnchorTime: -3.0},
		{Hash: mk(3), AnchorTime: 2.5},
	}

	m, err := NewMatcher(ix, 0.2)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	results, err := m.Match(ctx, query)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].TrackID != "A" {
		t.Fatalf("best match = %+v, want track A", results[0])
	}
	if results[0].Score != 3 {
		t.Errorf("score = %d, want 3 (dominant bucket)", results[0].Score)
	}
	if results[0].TotalHashes != 4 {
		t.Errorf("TotalHashes = %d, want 4", results[0].TotalHashes)
	}
	if math.Abs(results[0].OffsetSeconds-5.0) > 1e-9 {
		t.Errorf("OffsetSeconds = %v, want 5.0", results[0].OffsetSeconds)
	}
}

func TestMatcherRankingTieBreaks(t *testing.T) {
	// Equal scores: more total evidence ranks higher; equal evidence falls
	// back to track ID order.
	ix := NewIndex()
	ctx := context.Background()
	h1 := Hash{AnchorFreq: 1, TargetFreq: 2, DeltaMs: 3}
	h2 := Hash{AnchorFreq: 4, TargetFreq: 5, DeltaMs: 6}

	// "rich" scores 1 in its best bucket but has 2 total hits; "poor" and
	// "zed" have 1 each.
	if err := ix.Ingest(ctx, "rich", []HashEntry{
		{Hash: h1, AnchorTime: 0},
		{Hash: h2, AnchorTime: 50},
	}); err != nil {
		t.Fatalf("Ingest rich: %v", err)
	}
	if err := ix.Ingest(ctx, "poor", []HashEntry{{Hash: h1, AnchorTime: 10}}); err != nil {
		t.Fatalf("Ingest poor: %v", err)
	}
	if err := ix.Ingest(ctx, "zed", []HashEntry{{Hash: h1, AnchorTime: 20}}); err != nil {
		t.Fatalf("Ingest zed: %v", err)
	}

	m, err := NewMatcher(ix, 0.2)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	results, err := m.Match(ctx, []HashEntry{
		{Hash: h1, AnchorTime: 0},
		{Hash: h2, AnchorTime: 0},
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].TrackID != "rich" {
		t.Errorf("rank 0 = %s, want rich (more total evidence)", results[0].TrackID)
	}
	if results[1].TrackID != "poor" || results[2].TrackID != "zed" {
		t.Errorf("ranks 1,2 = %s,%s, want poor,zed (track ID order)",
			results[1].TrackID, results[2].TrackID)
	}
}

func TestMatcherDeterminism(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()
	var query []HashEntry
	for i := 0; i < 10; i++ {
		h := Hash{AnchorFreq: i, TargetFreq: i * 2, DeltaMs: 100}
		for _, track := range []string{"a", "b", "c"} {
			if err := ix.Ingest(ctx, track, []HashEntry{{Hash: h, AnchorTime: float64(i)}}); err != nil {
				t.Fatalf("Ingest: %v", err)
			}
		}
		query = append(query, HashEntry{Hash: h, AnchorTime: float64(i) / 2})
	}

	m, err := NewMatcher(ix, 0.2)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	first, err := m.Match(ctx, query)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := m.Match(ctx, query)
		if err != nil {
			t.Fatalf("Match run %d: %v", run, err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: %d results, want %d", run, len(again), len(first))
		}
		for i := range again {
			if again[i] != first[i] {
				t.Fatalf("run %d: result %d = %+v, want %+v", run, i, again[i], first[i])
			}
		}
	}
}

func TestNewMatcherInvalidBucketWidth(t *testing.T) {
	for _, width := range []float64{0, -0.5} {
		if _, err := NewMatcher(NewIndex(), width); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("bucket width %v: got err %v, want ErrInvalidConfiguration", width, err)
		}
	}
}

func TestMatcherCancellation(t *testing.T) {
	ix := NewIndex()
	m, err := NewMatcher(ix, 0.2)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Match(ctx, []HashEntry{{Hash: Hash{AnchorFreq: 1}, AnchorTime: 0}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Match err = %v, want context.Canceled", err)
	}
}
