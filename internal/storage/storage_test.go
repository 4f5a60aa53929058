package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/audionautics/wavemark/pkg/fingerprint"
	"github.com/audionautics/wavemark/pkg/wavemark"
)

// openBackends builds one fresh store per backend under test.
func openBackends(t *testing.T) map[string]wavemark.Store {
	t.Helper()

	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.sqlite3"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	badgerStore, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]wavemark.Store{
		"sqlite": sqliteStore,
		"badger": badgerStore,
	}
}

func sampleTrack(id string) wavemark.Track {
	return wavemark.Track{
		ID:        id,
		Title:     "Title " + id,
		Artist:    "Artist",
		Album:     "Album",
		Duration:  180,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStoreTrackRoundTrip(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleTrack("track-1")
			if err := store.RegisterTrack(ctx, want); err != nil {
				t.Fatalf("RegisterTrack: %v", err)
			}

			got, err := store.GetTrack(ctx, "track-1")
			if err != nil {
				t.Fatalf("GetTrack: %v", err)
			}
			if got.ID != want.ID || got.Title != want.Title || got.Artist != want.Artist ||
				got.Album != want.Album || got.Duration != want.Duration {
				t.Errorf("GetTrack = %+v, want %+v", got, want)
			}

			tracks, err := store.ListTracks(ctx)
			if err != nil {
				t.Fatalf("ListTracks: %v", err)
			}
			if len(tracks) != 1 || tracks[0].ID != "track-1" {
				t.Errorf("ListTracks = %+v, want one entry for track-1", tracks)
			}
		})
	}
}

func TestStoreGetTrackMissing(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetTrack(context.Background(), "absent")
			if !errors.Is(err, wavemark.ErrTrackNotFound) {
				t.Errorf("got err %v, want ErrTrackNotFound", err)
			}
		})
	}
}

func TestStoreEntriesRoundTrip(t *testing.T) {
	h1 := fingerprint.Hash{AnchorFreq: 1000, TargetFreq: 1500, DeltaMs: 2000}
	h2 := fingerprint.Hash{AnchorFreq: 700, TargetFreq: 900, DeltaMs: 450}

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.RegisterTrack(ctx, sampleTrack("track-1")); err != nil {
				t.Fatalf("RegisterTrack: %v", err)
			}
			// h1 appears twice: duplicate evidence must survive the round
			// trip in insertion order.
			entries := []fingerprint.HashEntry{
				{Hash: h1, AnchorTime: 1.0},
				{Hash: h2, AnchorTime: 2.0},
				{Hash: h1, AnchorTime: 3.5},
			}
			if err := store.SaveEntries(ctx, "track-1", entries); err != nil {
				t.Fatalf("SaveEntries: %v", err)
			}

			got := make(map[fingerprint.Hash][]fingerprint.Occurrence)
			err := store.ForEachEntry(ctx, func(h fingerprint.Hash, occ fingerprint.Occurrence) error {
				got[h] = append(got[h], occ)
				return nil
			})
			if err != nil {
				t.Fatalf("ForEachEntry: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d distinct hashes, want 2", len(got))
			}
			h1occ := got[h1]
			if len(h1occ) != 2 {
				t.Fatalf("hash h1 has %d occurrences, want 2", len(h1occ))
			}
			if h1occ[0].AnchorTime != 1.0 || h1occ[1].AnchorTime != 3.5 {
				t.Errorf("h1 occurrences out of insertion order: %+v", h1occ)
			}
			if h1occ[0].TrackID != "track-1" {
				t.Errorf("occurrence track = %s, want track-1", h1occ[0].TrackID)
			}
		})
	}
}

func TestStoreDeleteTrack(t *testing.T) {
	h := fingerprint.Hash{AnchorFreq: 1000, TargetFreq: 1500, DeltaMs: 2000}

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"keep", "drop"} {
				if err := store.RegisterTrack(ctx, sampleTrack(id)); err != nil {
					t.Fatalf("RegisterTrack %s: %v", id, err)
				}
				if err := store.SaveEntries(ctx, id, []fingerprint.HashEntry{{Hash: h, AnchorTime: 1}}); err != nil {
					t.Fatalf("SaveEntries %s: %v", id, err)
				}
			}

			if err := store.DeleteTrack(ctx, "drop"); err != nil {
				t.Fatalf("DeleteTrack: %v", err)
			}
			if _, err := store.GetTrack(ctx, "drop"); !errors.Is(err, wavemark.ErrTrackNotFound) {
				t.Errorf("deleted track still present, err = %v", err)
			}

			var remaining []fingerprint.Occurrence
			err := store.ForEachEntry(ctx, func(_ fingerprint.Hash, occ fingerprint.Occurrence) error {
				remaining = append(remaining, occ)
				return nil
			})
			if err != nil {
				t.Fatalf("ForEachEntry: %v", err)
			}
			if len(remaining) != 1 || remaining[0].TrackID != "keep" {
				t.Errorf("remaining entries = %+v, want only track keep", remaining)
			}

			if err := store.DeleteTrack(ctx, "drop"); !errors.Is(err, wavemark.ErrTrackNotFound) {
				t.Errorf("double delete err = %v, want ErrTrackNotFound", err)
			}
		})
	}
}

func TestStoreStats(t *testing.T) {
	h := fingerprint.Hash{AnchorFreq: 10, TargetFreq: 20, DeltaMs: 30}

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.RegisterTrack(ctx, sampleTrack("track-1")); err != nil {
				t.Fatalf("RegisterTrack: %v", err)
			}
			entries := []fingerprint.HashEntry{
				{Hash: h, AnchorTime: 0},
				{Hash: h, AnchorTime: 1},
				{Hash: h, AnchorTime: 2},
			}
			if err := store.SaveEntries(ctx, "track-1", entries); err != nil {
				t.Fatalf("SaveEntries: %v", err)
			}

			stats, err := store.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Tracks != 1 {
				t.Errorf("Tracks = %d, want 1", stats.Tracks)
			}
			if stats.Entries != 3 {
				t.Errorf("Entries = %d, want 3", stats.Entries)
			}
		})
	}
}

func TestOccurrenceRecordRoundTrip(t *testing.T) {
	want := []fingerprint.Occurrence{
		{TrackID: "track-1", AnchorTime: 1.5},
		{TrackID: "another-track", AnchorTime: 0},
		{TrackID: "", AnchorTime: -2.25},
	}
	var buf []byte
	for _, occ := range want {
		buf = appendOccurrence(buf, occ)
	}

	got, err := decodeOccurrences(buf)
	if err != nil {
		t.Fatalf("decodeOccurrences: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("occurrence %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeOccurrencesCorrupt(t *testing.T) {
	huge := binary.AppendUvarint(nil, math.MaxUint64)
	huge = append(huge, make([]byte, 16)...)

	tests := []struct {
		name string
		val  []byte
	}{
		{"truncated uvarint", []byte{0x80}},
		{"length past buffer", append(binary.AppendUvarint(nil, 50), 'x')},
		{"huge length", huge},
		{"missing anchor bytes", append(binary.AppendUvarint(nil, 1), 'a', 1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeOccurrences(tt.val); err == nil {
				t.Error("decoding a corrupt record succeeded, want error")
			}
		})
	}
}

func TestEngineRestoreFromStore(t *testing.T) {
	// A synthetic provider keeps the pipeline deterministic and cheap: two
	// non-adjacent peaks two seconds apart produce exactly one hash.
	provider := func(samples []float64, sampleRate, frameSize, hopSize int) (*fingerprint.Spectrogram, error) {
		return &fingerprint.Spectrogram{
			Times: []float64{0, 1, 2},
			Freqs: []float64{1000, 1400, 1800},
			Amps: [][]float64{
				{50, 10, 10},
				{10, 10, 10},
				{10, 10, 60},
			},
		}, nil
	}

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			engine, err := wavemark.New(
				wavemark.WithStore(store),
				wavemark.WithSpectrogram(provider),
			)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			track, err := engine.IngestSamples(ctx, wavemark.Track{Title: "Alpha"}, make([]float64, 4096), 8192)
			if err != nil {
				t.Fatalf("IngestSamples: %v", err)
			}

			// A second engine over the same store starts empty, restores,
			// and then matches the same clip.
			restored, err := wavemark.New(
				wavemark.WithStore(store),
				wavemark.WithSpectrogram(provider),
			)
			if err != nil {
				t.Fatalf("New restored: %v", err)
			}
			if err := restored.Restore(ctx); err != nil {
				t.Fatalf("Restore: %v", err)
			}

			matches, err := restored.IdentifySamples(ctx, make([]float64, 4096), 8192)
			if err != nil {
				t.Fatalf("IdentifySamples: %v", err)
			}
			if len(matches) == 0 {
				t.Fatal("restored engine found no matches")
			}
			if matches[0].Track.ID != track.ID {
				t.Errorf("best match = %s, want %s", matches[0].Track.ID, track.ID)
			}
		})
	}
}
