package stream

import (
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/roman-kulish/wapp-stream/internal/lags"
)

const (
	// PadValue fills points synthesized for timing gaps
	PadValue byte = 128

	DefaultPointsPerBlock = 64
	DefaultMaxFiles       = 1000
)

type options struct {
	pointsPerBlock int
	maxFiles       int
	logger         *slog.Logger
	order          binary.ByteOrder
	scaleMin       float64
	scaleMax       float64
}

func defaultOptions() options {
	return options{
		pointsPerBlock: DefaultPointsPerBlock,
		maxFiles:       DefaultMaxFiles,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		scaleMin:       lags.DefaultScaleMin,
		scaleMax:       lags.DefaultScaleMax,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures planning and reading of a stream
type Option func(*options)

// WithPointsPerBlock sets the number of time samples per decoded block
func WithPointsPerBlock(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pointsPerBlock = n
		}
	}
}

// WithMaxFiles sets the largest number of files a stream may span
func WithMaxFiles(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFiles = n
		}
	}
}

// WithLogger sets the logger for planning warnings and reader diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithByteOrder forces the byte order of every file, bypassing header detection
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) {
		o.order = order
	}
}

// WithScale sets the power range mapped onto output bytes 0..255
func WithScale(lo, hi float64) Option {
	return func(o *options) {
		o.scaleMin = lo
		o.scaleMax = hi
	}
}
