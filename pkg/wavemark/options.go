package wavemark

import (
	"github.com/sirupsen/logrus"

	"github.com/audionautics/wavemark/pkg/fingerprint"
)

// Option configures an Engine at construction.
type Option func(*Engine)

// WithConfig replaces the default fingerprint tuning. The config is
// validated by New.
func WithConfig(cfg fingerprint.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithStore attaches a persistent catalog. Ingestion writes through to it
// and Restore rebuilds the live index from it.
func WithStore(store Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLogger replaces the default process logger.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithSpectrogram replaces the spectrogram provider.
func WithSpectrogram(fn SpectrogramFunc) Option {
	return func(e *Engine) {
		e.spectrogram = fn
	}
}
