package fingerprint

import "fmt"

// Config gathers every tunable of the pipeline. It is threaded explicitly
// through each call; there is no ambient package state, so ingestion and
// querying stay independently reproducible.
type Config struct {
	// FrameSize and HopSize shape the STFT the spectrogram provider runs:
	// larger frames trade time resolution for frequency resolution. Both
	// must be positive powers of two.
	FrameSize int
	HopSize   int

	// AmplitudeThreshold is the minimum dB a grid point needs to become a
	// landmark. Raising it never increases the peak count.
	AmplitudeThreshold float64

	// PeakWindow is the odd side length of the local-maximum neighborhood
	// (3 = 8-connected).
	PeakWindow int

	// Zone controls hash distinctiveness versus recall: a larger zone pairs
	// more distant landmarks; FanOut bounds hash volume per anchor.
	Zone TargetZone

	// BucketWidth quantizes match offsets, absorbing STFT framing jitter
	// between ingestion and query recordings.
	BucketWidth float64 // seconds
}

// DefaultConfig returns the tuning used by the reference pipeline.
func DefaultConfig() Config {
	return Config{
		FrameSize:          2048,
		HopSize:            512,
		AmplitudeThreshold: 35,
		PeakWindow:         3,
		Zone: TargetZone{
			OffsetTime: 1,
			OffsetFreq: 500,
			DeltaTime:  10,
			DeltaFreq:  1000,
			FanOut:     10,
		},
		BucketWidth: 0.2,
	}
}

// Validate fails fast on any out-of-range parameter, before processing.
func (c Config) Validate() error {
	if !isPowerOfTwo(c.FrameSize) {
		return fmt.Errorf("%w: frame size must be a positive power of two, got %d",
			ErrInvalidConfiguration, c.FrameSize)
	}
	if !isPowerOfTwo(c.HopSize) {
		return fmt.Errorf("%w: hop size must be a positive power of two, got %d",
			ErrInvalidConfiguration, c.HopSize)
	}
	if c.PeakWindow < 3 || c.PeakWindow%2 == 0 {
		return fmt.Errorf("%w: peak window must be odd and >= 3, got %d",
			ErrInvalidConfiguration, c.PeakWindow)
	}
	if err := c.Zone.Validate(); err != nil {
		return err
	}
	if c.BucketWidth <= 0 {
		return fmt.Errorf("%w: bucket width must be positive, got %v",
			ErrInvalidConfiguration, c.BucketWidth)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
