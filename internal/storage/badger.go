package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/audionautics/wavemark/pkg/fingerprint"
	"github.com/audionautics/wavemark/pkg/wavemark"
)

// Key layout: "t:" + track ID holds the track row as JSON; "h:" + 8-byte
// big-endian packed hash holds the concatenated occurrence records for that
// hash (uvarint track ID length, track ID bytes, 8-byte anchor time bits).
var (
	trackPrefix = []byte("t:")
	hashPrefix  = []byte("h:")
)

// BadgerStore implements wavemark.Store on a Badger key-value directory.
type BadgerStore struct {
	db *badger.DB
}

var _ wavemark.Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the store under dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func trackKey(id string) []byte {
	return append(append([]byte{}, trackPrefix...), id...)
}

func hashKey(h fingerprint.Hash) []byte {
	key := make([]byte, len(hashPrefix)+8)
	copy(key, hashPrefix)
	binary.BigEndian.PutUint64(key[len(hashPrefix):], h.Pack())
	return key
}

func appendOccurrence(buf []byte, occ fingerprint.Occurrence) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(occ.TrackID)))
	buf = append(buf, occ.TrackID...)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(occ.AnchorTime))
	return buf
}

func decodeOccurrences(val []byte) ([]fingerprint.Occurrence, error) {
	var out []fingerprint.Occurrence
	for len(val) > 0 {
		idLen, n := binary.Uvarint(val)
		if n <= 0 {
			return nil, errors.New("corrupt occurrence record")
		}
		val = val[n:]
		// Compare in uint64: a corrupt length near MaxUint64 must not
		// overflow into a passing bounds check.
		if idLen > uint64(len(val)) || uint64(len(val))-idLen < 8 {
			return nil, errors.New("corrupt occurrence record")
		}
		trackID := string(val[:idLen])
		val = val[idLen:]
		anchor := math.Float64frombits(binary.BigEndian.Uint64(val[:8]))
		val = val[8:]
		out = append(out, fingerprint.Occurrence{TrackID: trackID, AnchorTime: anchor})
	}
	return out, nil
}

func (s *BadgerStore) RegisterTrack(ctx context.Context, t wavemark.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding track: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(trackKey(t.ID), val)
	})
}

// SaveEntries groups the entries per hash and read-modify-appends each
// hash's record list. Writes go through a manually renewed transaction so a
// large batch survives Badger's per-transaction size limit.
func (s *BadgerStore) SaveEntries(ctx context.Context, trackID string, entries []fingerprint.HashEntry) error {
	if len(entries) == 0 {
		return nil
	}
	grouped := make(map[fingerprint.Hash][]byte)
	var order []fingerprint.Hash
	for _, e := range entries {
		if _, seen := grouped[e.Hash]; !seen {
			order = append(order, e.Hash)
		}
		grouped[e.Hash] = appendOccurrence(grouped[e.Hash], fingerprint.Occurrence{
			TrackID:    trackID,
			AnchorTime: e.AnchorTime,
		})
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()
	for _, h := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := hashKey(h)
		var val []byte
		item, err := txn.Get(key)
		switch {
		case err == nil:
			val, err = item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("reading hash records: %w", err)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first sighting of this hash
		default:
			return fmt.Errorf("looking up hash records: %w", err)
		}
		val = append(val, grouped[h]...)

		if err := txn.Set(key, val); err != nil {
			if !errors.Is(err, badger.ErrTxnTooBig) {
				return fmt.Errorf("writing hash records: %w", err)
			}
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("committing partial batch: %w", err)
			}
			txn = s.db.NewTransaction(true)
			if err := txn.Set(key, val); err != nil {
				return fmt.Errorf("writing hash records: %w", err)
			}
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing entries: %w", err)
	}
	return nil
}

func (s *BadgerStore) ForEachEntry(ctx context.Context, fn func(fingerprint.Hash, fingerprint.Occurrence) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = hashPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			h := fingerprint.UnpackHash(binary.BigEndian.Uint64(item.Key()[len(hashPrefix):]))
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("reading hash records: %w", err)
			}
			occs, err := decodeOccurrences(val)
			if err != nil {
				return err
			}
			for _, occ := range occs {
				if err := fn(h, occ); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *BadgerStore) GetTrack(ctx context.Context, id string) (wavemark.Track, error) {
	if err := ctx.Err(); err != nil {
		return wavemark.Track{}, err
	}
	var t wavemark.Track
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(trackKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("track %s: %w", id, wavemark.ErrTrackNotFound)
		}
		if err != nil {
			return fmt.Errorf("looking up track: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	return t, err
}

func (s *BadgerStore) ListTracks(ctx context.Context) ([]wavemark.Track, error) {
	var tracks []wavemark.Track
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = trackPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var t wavemark.Track
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			})
			if err != nil {
				return fmt.Errorf("decoding track: %w", err)
			}
			tracks = append(tracks, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tracks, func(i, j int) bool {
		if !tracks[i].CreatedAt.Equal(tracks[j].CreatedAt) {
			return tracks[i].CreatedAt.Before(tracks[j].CreatedAt)
		}
		return tracks[i].ID < tracks[j].ID
	})
	return tracks, nil
}

// DeleteTrack drops the track row and rewrites every hash value that
// references the track. The rewrites are collected under a read snapshot
// first, then applied in a write pass.
func (s *BadgerStore) DeleteTrack(ctx context.Context, id string) error {
	if _, err := s.GetTrack(ctx, id); err != nil {
		return err
	}

	type rewrite struct {
		key []byte
		val []byte // nil means delete the key
	}
	var rewrites []rewrite
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = hashPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("reading hash records: %w", err)
			}
			occs, err := decodeOccurrences(val)
			if err != nil {
				return err
			}
			kept := val[:0:0]
			touched := false
			for _, occ := range occs {
				if occ.TrackID == id {
					touched = true
					continue
				}
				kept = appendOccurrence(kept, occ)
			}
			if !touched {
				continue
			}
			key := item.KeyCopy(nil)
			if len(kept) == 0 {
				rewrites = append(rewrites, rewrite{key: key})
			} else {
				rewrites = append(rewrites, rewrite{key: key, val: kept})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()
	apply := func(rw rewrite) error {
		if rw.val == nil {
			return txn.Delete(rw.key)
		}
		return txn.Set(rw.key, rw.val)
	}
	for _, rw := range rewrites {
		if err := apply(rw); err != nil {
			if !errors.Is(err, badger.ErrTxnTooBig) {
				return fmt.Errorf("rewriting hash records: %w", err)
			}
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("committing partial delete: %w", err)
			}
			txn = s.db.NewTransaction(true)
			if err := apply(rw); err != nil {
				return fmt.Errorf("rewriting hash records: %w", err)
			}
		}
	}
	if err := txn.Delete(trackKey(id)); err != nil {
		return fmt.Errorf("deleting track row: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

func (s *BadgerStore) Stats(ctx context.Context) (wavemark.StoreStats, error) {
	var stats wavemark.StoreStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			switch {
			case bytes.HasPrefix(item.Key(), trackPrefix):
				stats.Tracks++
			case bytes.HasPrefix(item.Key(), hashPrefix):
				val, err := item.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("reading hash records: %w", err)
				}
				occs, err := decodeOccurrences(val)
				if err != nil {
					return err
				}
				stats.Entries += len(occs)
			}
		}
		return nil
	})
	return stats, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
