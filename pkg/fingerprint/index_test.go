package fingerprint

import (
	"context"
	"errors"
	"testing"
)

func TestIndexIngestAndLookup(t *testing.T) {
	ix := NewIndex()
	h := Hash{AnchorFreq: 1000, TargetFreq: 1500, DeltaMs: 2000}
	entries := []HashEntry{
		{Hash: h, AnchorTime: 1.0},
		{Hash: h, AnchorTime: 4.5},
	}

	if err := ix.Ingest(context.Background(), "track-a", entries); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	occ := ix.Lookup(h)
	if len(occ) != 2 {
		t.Fatalf("Lookup returned %d occurrences, want 2", len(occ))
	}
	if occ[0].TrackID != "track-a" || occ[0].AnchorTime != 1.0 {
		t.Errorf("occ[0] = %+v, want {track-a 1.0}", occ[0])
	}
	if occ[1].AnchorTime != 4.5 {
		t.Errorf("occ[1] = %+v, want anchor time 4.5 (insertion order)", occ[1])
	}
}

func TestIndexLookupUnseenHash(t *testing.T) {
	ix := NewIndex()
	if occ := ix.Lookup(Hash{AnchorFreq: 1, TargetFreq: 2, DeltaMs: 3}); occ != nil {
		t.Errorf("Lookup on empty index returned %v, want nil", occ)
	}
}

func TestIndexDuplicateEvidencePreserved(t *testing.T) {
	// The same (hash, anchor) from the same track counts twice: score stays
	// a faithful count.
	ix := NewIndex()
	h := Hash{AnchorFreq: 440, TargetFreq: 880, DeltaMs: 500}
	entry := []HashEntry{{Hash: h, AnchorTime: 2.0}}

	ctx := context.Background()
	if err := ix.Ingest(ctx, "track-a", entry); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if err := ix.Ingest(ctx, "track-a", entry); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if occ := ix.Lookup(h); len(occ) != 2 {
		t.Errorf("Lookup returned %d occurrences, want 2", len(occ))
	}
}

func TestIndexEmptyIngestIsNoOp(t *testing.T) {
	ix := NewIndex()
	if err := ix.Ingest(context.Background(), "track-a", nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	stats := ix.Stats()
	if stats.Occurrences != 0 || stats.Tracks != 0 {
		t.Errorf("stats after empty ingest = %+v, want all zero", stats)
	}
}

func TestIndexCancelledIngestPublishesNothing(t *testing.T) {
	ix := NewIndex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := Hash{AnchorFreq: 1000, TargetFreq: 1500, DeltaMs: 2000}
	err := ix.Ingest(ctx, "track-a", []HashEntry{{Hash: h, AnchorTime: 1.0}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ingest err = %v, want context.Canceled", err)
	}
	if occ := ix.Lookup(h); occ != nil {
		t.Errorf("cancelled ingest published %v", occ)
	}
	if stats := ix.Stats(); stats.Occurrences != 0 {
		t.Errorf("cancelled ingest left %d occurrences", stats.Occurrences)
	}
}

func TestIndexStats(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()
	h1 := Hash{AnchorFreq: 100, TargetFreq: 200, DeltaMs: 300}
	h2 := Hash{AnchorFreq: 400, TargetFreq: 500, DeltaMs: 600}

	if err := ix.Ingest(ctx, "a", []HashEntry{{Hash: h1, AnchorTime: 0}, {Hash: h2, AnchorTime: 1}}); err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	if err := ix.Ingest(ctx, "b", []HashEntry{{Hash: h1, AnchorTime: 2}}); err != nil {
		t.Fatalf("Ingest b: %v", err)
	}

	stats := ix.Stats()
	if stats.Hashes != 2 {
		t.Errorf("Hashes = %d, want 2", stats.Hashes)
	}
	if stats.Occurrences != 3 {
		t.Errorf("Occurrences = %d, want 3", stats.Occurrences)
	}
	if stats.Tracks != 2 {
		t.Errorf("Tracks = %d, want 2", stats.Tracks)
	}
}
