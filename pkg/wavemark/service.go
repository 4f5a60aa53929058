// Package wavemark is the SDK tying the fingerprinting pipeline together:
// audio in, ranked matches out. The Engine keeps a live in-memory index that
// all matching runs against; an optional Store persists the catalog and can
// rebuild the index on startup.
package wavemark

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/audionautics/wavemark/internal/audio"
	"github.com/audionautics/wavemark/pkg/fingerprint"
	"github.com/audionautics/wavemark/pkg/logger"
	"github.com/audionautics/wavemark/pkg/spectral"
)

// Service is the recognition surface the commands program against.
type Service interface {
	IngestFile(ctx context.Context, path, title, artist string) (Track, error)
	IngestSamples(ctx context.Context, track Track, samples []float64, sampleRate int) (Track, error)
	IdentifyFile(ctx context.Context, path string) ([]Match, error)
	IdentifySamples(ctx context.Context, samples []float64, sampleRate int) ([]Match, error)
	GetTrack(ctx context.Context, id string) (Track, error)
	ListTracks(ctx context.Context) ([]Track, error)
	DeleteTrack(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Restore(ctx context.Context) error
	Close() error
}

// Engine is the default Service implementation. The Index is internally
// synchronized, but Restore swaps the pointer itself, so every access goes
// through mu.
type Engine struct {
	cfg         fingerprint.Config
	store       Store // optional
	spectrogram SpectrogramFunc
	log         *logrus.Logger

	mu    sync.RWMutex
	index *fingerprint.Index
}

var _ Service = (*Engine)(nil)

// New builds an Engine. The configuration is validated up front so a bad
// tuning fails at construction, not mid-pipeline.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:         fingerprint.DefaultConfig(),
		index:       fingerprint.NewIndex(),
		spectrogram: spectral.Compute,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Default()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// liveIndex returns the current index pointer under the read lock.
func (e *Engine) liveIndex() *fingerprint.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

// fingerprintSamples runs the spectrogram, peak and hash stages shared by
// ingestion and querying.
func (e *Engine) fingerprintSamples(samples []float64, sampleRate int) ([]fingerprint.HashEntry, error) {
	sp, err := e.spectrogram(samples, sampleRate, e.cfg.FrameSize, e.cfg.HopSize)
	if err != nil {
		return nil, fmt.Errorf("computing spectrogram: %w", err)
	}
	cm, err := fingerprint.ExtractPeaksWindow(sp, e.cfg.AmplitudeThreshold, e.cfg.PeakWindow)
	if err != nil {
		return nil, fmt.Errorf("extracting peaks: %w", err)
	}
	entries, err := fingerprint.GenerateHashes(cm, e.cfg.Zone)
	if err != nil {
		return nil, fmt.Errorf("generating hashes: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"peaks":  len(cm),
		"hashes": len(entries),
	}).Debug("fingerprinted samples")
	return entries, nil
}

// IngestSamples fingerprints the samples and registers them under the given
// track. An empty track ID gets a fresh UUID. The store write (if a store is
// configured) precedes the index publish, so a storage failure leaves the
// live index untouched.
func (e *Engine) IngestSamples(ctx context.Context, track Track, samples []float64, sampleRate int) (Track, error) {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.Duration == 0 && sampleRate > 0 {
		track.Duration = float64(len(samples)) / float64(sampleRate)
	}

	entries, err := e.fingerprintSamples(samples, sampleRate)
	if err != nil {
		return Track{}, err
	}
	for i := range entries {
		entries[i].TrackID = track.ID
	}

	if e.store != nil {
		if err := e.store.RegisterTrack(ctx, track); err != nil {
			return Track{}, fmt.Errorf("registering track %s: %w", track.ID, err)
		}
		if err := e.store.SaveEntries(ctx, track.ID, entries); err != nil {
			return Track{}, fmt.Errorf("saving entries for track %s: %w", track.ID, err)
		}
	}
	if err := e.liveIndex().Ingest(ctx, track.ID, entries); err != nil {
		return Track{}, fmt.Errorf("indexing track %s: %w", track.ID, err)
	}

	e.log.WithFields(logrus.Fields{
		"track":  track.ID,
		"title":  track.Title,
		"hashes": len(entries),
	}).Info("ingested track")
	return track, nil
}

// IngestFile decodes an audio file and ingests it. Empty title or artist
// fall back to the file's embedded tags, then to the file name.
func (e *Engine) IngestFile(ctx context.Context, path, title, artist string) (Track, error) {
	clip, err := audio.Decode(path)
	if err != nil {
		return Track{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	meta := audio.Probe(path)
	if title == "" {
		title = meta.Title
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if artist == "" {
		artist = meta.Artist
	}

	track := Track{
		Title:    title,
		Artist:   artist,
		Album:    meta.Album,
		Duration: clip.Duration(),
	}
	return e.IngestSamples(ctx, track, clip.Samples, clip.SampleRate)
}

// IdentifySamples fingerprints an unknown clip and matches it against the
// live index. An empty result is a normal outcome: the recording is simply
// not in the library.
func (e *Engine) IdentifySamples(ctx context.Context, samples []float64, sampleRate int) ([]Match, error) {
	entries, err := e.fingerprintSamples(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	matcher, err := fingerprint.NewMatcher(e.liveIndex(), e.cfg.BucketWidth)
	if err != nil {
		return nil, err
	}
	results, err := matcher.Match(ctx, entries)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		e.log.WithField("hashes", len(entries)).Debug("no index hits for query")
		return nil, nil
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = float64(r.Score)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Track:         e.trackOrStub(ctx, r.TrackID),
			OffsetSeconds: r.OffsetSeconds,
			Score:         r.Score,
			TotalHashes:   r.TotalHashes,
			Confidence:    confidence(r.Score, len(entries)),
			Margin:        margin(scores[0], scores),
		}
	}
	return matches, nil
}

// IdentifyFile decodes an audio file and identifies it.
func (e *Engine) IdentifyFile(ctx context.Context, path string) ([]Match, error) {
	clip, err := audio.Decode(path)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return e.IdentifySamples(ctx, clip.Samples, clip.SampleRate)
}

// trackOrStub resolves catalog metadata when a store is configured, falling
// back to a bare ID otherwise.
func (e *Engine) trackOrStub(ctx context.Context, id string) Track {
	if e.store != nil {
		if t, err := e.store.GetTrack(ctx, id); err == nil {
			return t
		}
	}
	return Track{ID: id}
}

func confidence(score, queryHashes int) float64 {
	if queryHashes == 0 {
		return 0
	}
	c := float64(score) / float64(queryHashes)
	return math.Min(c, 1)
}

// margin is (best - mean) / stddev over the candidate scores; 0 when the
// field is too small or flat to measure.
func margin(best float64, scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(scores, nil)
	if std == 0 {
		return 0
	}
	return (best - mean) / std
}

// GetTrack fetches catalog metadata for one track.
func (e *Engine) GetTrack(ctx context.Context, id string) (Track, error) {
	if e.store == nil {
		return Track{}, fmt.Errorf("get track %s: %w", id, ErrTrackNotFound)
	}
	return e.store.GetTrack(ctx, id)
}

// ListTracks lists the catalog; without a store the list is empty.
func (e *Engine) ListTracks(ctx context.Context) ([]Track, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListTracks(ctx)
}

// DeleteTrack removes a track from the store and rebuilds the live index,
// since the index itself is append-only.
func (e *Engine) DeleteTrack(ctx context.Context, id string) error {
	if e.store == nil {
		return fmt.Errorf("delete track %s: no persistent store configured", id)
	}
	if err := e.store.DeleteTrack(ctx, id); err != nil {
		return err
	}
	if err := e.Restore(ctx); err != nil {
		return fmt.Errorf("rebuilding index after delete: %w", err)
	}
	e.log.WithField("track", id).Info("deleted track")
	return nil
}

// Restore replaces the live index with one rebuilt from the store. Without a
// store it resets the index to empty.
func (e *Engine) Restore(ctx context.Context) error {
	index := fingerprint.NewIndex()
	if e.store != nil {
		perTrack := make(map[string][]fingerprint.HashEntry)
		var order []string
		err := e.store.ForEachEntry(ctx, func(h fingerprint.Hash, occ fingerprint.Occurrence) error {
			if _, seen := perTrack[occ.TrackID]; !seen {
				order = append(order, occ.TrackID)
			}
			perTrack[occ.TrackID] = append(perTrack[occ.TrackID], fingerprint.HashEntry{
				Hash:       h,
				AnchorTime: occ.AnchorTime,
				TrackID:    occ.TrackID,
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("restoring index: %w", err)
		}
		for _, trackID := range order {
			if err := index.Ingest(ctx, trackID, perTrack[trackID]); err != nil {
				return fmt.Errorf("restoring track %s: %w", trackID, err)
			}
		}
	}
	e.mu.Lock()
	e.index = index
	e.mu.Unlock()
	stats := index.Stats()
	e.log.WithFields(logrus.Fields{
		"tracks": stats.Tracks,
		"hashes": stats.Hashes,
	}).Info("restored index")
	return nil
}

// Stats reports the live index and, when configured, the store.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Index: e.liveIndex().Stats()}
	if e.store != nil {
		ss, err := e.store.Stats(ctx)
		if err != nil {
			return Stats{}, err
		}
		s.Store = &ss
	}
	return s, nil
}

// Close releases the store, if any.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
