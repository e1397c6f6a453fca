package store

import (
	"context"
	"sync/atomic"

	"github.com/spaolacci/murmur3"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
)

// faultBuckets is the resolution of the injected failure rate.
const faultBuckets = 10000

// FaultConfig controls transient write failure injection.
type FaultConfig struct {
	// TransientRate is the fraction of PutRecord calls (0..1) that fail with OVERLOADED
	TransientRate float64

	// Seed selects which keys fail for a given rate
	Seed uint32
}

// FaultInjector wraps a Client and fails a deterministic subset of writes with
// a transient error before they reach the store. The subset is chosen by
// hashing the record key, so a given key always gets the same outcome.
type FaultInjector struct {
	Client
	threshold uint32
	seed      uint32
	injected  atomic.Int64
}

// NewFaultInjector wraps inner. A rate of zero or less returns a pass-through injector.
func NewFaultInjector(inner Client, cfg FaultConfig) *FaultInjector {
	rate := cfg.TransientRate
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &FaultInjector{
		Client:    inner,
		threshold: uint32(rate * faultBuckets),
		seed:      cfg.Seed,
	}
}

// PutRecord fails with a transient OVERLOADED error when the key falls in the
// configured fraction, otherwise it delegates to the wrapped client.
func (f *FaultInjector) PutRecord(ctx context.Context, bucket, key string, value map[string]interface{}) error {
	if f.shouldFail(key) {
		f.injected.Add(1)
		return rberrors.NewWriteError(rberrors.CodeOverloaded, "injected overload for key "+key, nil)
	}
	return f.Client.PutRecord(ctx, bucket, key, value)
}

// Injected returns the number of failures injected so far.
func (f *FaultInjector) Injected() int64 {
	return f.injected.Load()
}

func (f *FaultInjector) shouldFail(key string) bool {
	if f.threshold == 0 {
		return false
	}
	return murmur3.Sum32WithSeed([]byte(key), f.seed)%faultBuckets < f.threshold
}
