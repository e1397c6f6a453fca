// Package bench drives the reindex benchmark: it populates a bucket with
// concurrency-bounded waves of writes, upgrades the bucket schema, and times
// the chunked reindex that follows.
//
// All drivers are explicit loops. Waves and reindex chunks are strictly
// sequential; only the writes inside one wave run concurrently, and the
// counters they feed are only touched after the wave has settled.
package bench

import (
	"log/slog"

	"github.com/arkilian/reindexbench/internal/observability"
	"github.com/arkilian/reindexbench/pkg/types"
)

// WaveOutcome describes one settled insertion wave.
type WaveOutcome struct {
	// Index is the zero-based wave number
	Index int
	// Size is the number of writes issued in the wave
	Size int
	// Created is the number of writes that succeeded
	Created int
	// Transient is the number of writes dropped as transient failures
	Transient int
	// Total is the number of records created so far, this wave included
	Total int
}

// Option configures the inserter, the reindexer and the pipeline.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	stats        *observability.RunStats
	writeRate    float64
	newKey       func() string
	waveObserver func(WaveOutcome)
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.DiscardHandler),
		newKey: types.NewRecordKey,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStats records wave, chunk and stage statistics into stats.
func WithStats(stats *observability.RunStats) Option {
	return func(o *options) {
		o.stats = stats
	}
}

// WithWriteRate caps record writes per second. Zero means unlimited.
func WithWriteRate(perSecond float64) Option {
	return func(o *options) {
		o.writeRate = perSecond
	}
}

// WithKeyFunc overrides record key generation. Keys must be unique.
func WithKeyFunc(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newKey = fn
		}
	}
}

// WithWaveObserver registers a callback invoked after every settled wave.
// It runs on the driver goroutine, between waves.
func WithWaveObserver(fn func(WaveOutcome)) Option {
	return func(o *options) {
		o.waveObserver = fn
	}
}
