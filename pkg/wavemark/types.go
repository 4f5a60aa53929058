package wavemark

import (
	"context"
	"errors"
	"time"

	"github.com/audionautics/wavemark/internal/audio"
	"github.com/audionautics/wavemark/pkg/fingerprint"
)

var (
	// ErrTrackNotFound is returned when a track ID is not in the catalog.
	ErrTrackNotFound = errors.New("track not found")

	// ErrUnsupportedFormat mirrors the audio decoder's sentinel for files
	// with an extension the engine cannot decode.
	ErrUnsupportedFormat = audio.ErrUnsupportedFormat
)

// Track is a catalog entry.
type Track struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album,omitempty"`
	Duration  float64   `json:"duration_seconds"`
	CreatedAt time.Time `json:"created_at"`
}

// Match is one ranked identification result. Confidence is the dominant
// bucket's share of the query hashes, clamped to [0, 1]. Margin measures how
// far the winner stands above the candidate field in standard deviations;
// it is 0 when fewer than two candidates voted.
type Match struct {
	Track         Track   `json:"track"`
	OffsetSeconds float64 `json:"offset_seconds"`
	Score         int     `json:"score"`
	TotalHashes   int     `json:"total_hashes"`
	Confidence    float64 `json:"confidence"`
	Margin        float64 `json:"margin"`
}

// StoreStats summarizes a persistent catalog.
type StoreStats struct {
	Tracks  int `json:"tracks"`
	Entries int `json:"entries"`
}

// Stats combines the live index and the optional store view.
type Stats struct {
	Index fingerprint.IndexStats `json:"index"`
	Store *StoreStats            `json:"store,omitempty"`
}

// SpectrogramFunc is the spectrogram provider boundary. spectral.Compute
// satisfies it; tests may substitute synthetic providers.
type SpectrogramFunc func(samples []float64, sampleRate, frameSize, hopSize int) (*fingerprint.Spectrogram, error)

// Store is the persistent catalog boundary. Implementations must preserve
// per-hash insertion order so a restored index votes identically to the
// original. DeleteTrack removes the track's entries as well. GetTrack and
// DeleteTrack report a missing ID with ErrTrackNotFound.
type Store interface {
	RegisterTrack(ctx context.Context, t Track) error
	SaveEntries(ctx context.Context, trackID string, entries []fingerprint.HashEntry) error
	ForEachEntry(ctx context.Context, fn func(fingerprint.Hash, fingerprint.Occurrence) error) error
	GetTrack(ctx context.Context, id string) (Track, error)
	ListTracks(ctx context.Context) ([]Track, error)
	DeleteTrack(ctx context.Context, id string) error
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}
