package fingerprint

import (
	"context"
	"sync"
)

// Occurrence records one sighting of a hash: which track produced it and at
// what anchor time.
type Occurrence struct {
	TrackID    string
	AnchorTime float64 // seconds
}

// Index is the append-only inverted index mapping hashes to their
// occurrences. Occurrences live in a single arena slice; the map holds
// per-hash lists of arena positions, so duplicate evidence from the same
// track is preserved rather than overwritten. Ingestion is serialized by a
// write lock; lookups take a read lock and may run concurrently without
// limit. A reader never observes a partially appended track.
type Index struct {
	mu     sync.RWMutex
	arena  []Occurrence
	byHash map[Hash][]int32
	tracks map[string]int // occurrence count per track
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byHash: make(map[Hash][]int32),
		tracks: make(map[string]int),
	}
}

// Ingest appends one occurrence per entry under that entry's hash, stamping
// trackID. The append is all-or-nothing: entries are staged outside the lock
// and committed in one critical section, so a cancelled context publishes
// nothing. Ingesting the same track twice simply adds more occurrences; no
// deduplication is performed.
func (ix *Index) Ingest(ctx context.Context, trackID string, entries []HashEntry) error {
	staged := make([]Occurrence, 0, len(entries))
	hashes := make([]Hash, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		staged = append(staged, Occurrence{TrackID: trackID, AnchorTime: e.AnchorTime})
		hashes = append(hashes, e.Hash)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	base := int32(len(ix.arena))
	ix.arena = append(ix.arena, staged...)
	for i, h := range hashes {
		ix.byHash[h] = append(ix.byHash[h], base+int32(i))
	}
	ix.tracks[trackID] += len(staged)
	return nil
}

// Lookup returns the occurrences of h in insertion order, or nil when the
// hash was never ingested. Absence is a normal outcome, not an error.
func (ix *Index) Lookup(h Hash) []Occurrence {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	positions := ix.byHash[h]
	if len(positions) == 0 {
		return nil
	}
	out := make([]Occurrence, len(positions))
	for i, p := range positions {
		out[i] = ix.arena[p]
	}
	return out
}

// IndexStats summarizes the index contents.
type IndexStats struct {
	Hashes      int // distinct hash keys
	Occurrences int
	Tracks      int
}

// Stats returns a snapshot of the index size.
func (ix *Index) Stats() IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return IndexStats{
		Hashes:      len(ix.byHash),
		Occurrences: len(ix.arena),
		Tracks:      len(ix.tracks),
	}
}
