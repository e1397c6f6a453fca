package bench

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/internal/store"
)

// InsertResult summarizes a bulk insert.
type InsertResult struct {
	// Created is the number of records successfully written
	Created int
	// TransientFailures is the number of writes dropped and compensated with fresh keys
	TransientFailures int
	// Waves is the number of waves issued
	Waves int
}

// Inserter creates records in waves of at most concurrency parallel writes.
type Inserter struct {
	writer      store.RecordWriter
	concurrency int
	limiter     *rate.Limiter
	opts        options
}

// NewInserter creates an inserter. concurrency must be at least 1.
func NewInserter(writer store.RecordWriter, concurrency int, opts ...Option) (*Inserter, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("bench: concurrency must be at least 1, got %d", concurrency)
	}

	o := applyOptions(opts)
	in := &Inserter{
		writer:      writer,
		concurrency: concurrency,
		opts:        o,
	}
	if o.writeRate > 0 {
		burst := int(math.Ceil(o.writeRate))
		if burst < concurrency {
			burst = concurrency
		}
		in.limiter = rate.NewLimiter(rate.Limit(o.writeRate), burst)
	}
	return in, nil
}

// Insert writes n records carrying value into bucket.
//
// Each wave issues min(remaining, concurrency) writes under fresh keys and
// waits for all of them. A write failing with a non-transient error
// (uniqueness violation or index type mismatch) ends the insert after its
// wave settles; the error is returned unchanged. Any other failure is dropped
// and made up for by the next wave. value is shared by all writes and must
// not be modified while Insert runs.
func (in *Inserter) Insert(ctx context.Context, bucket string, n int, value map[string]interface{}) (InsertResult, error) {
	var res InsertResult
	if n < 0 {
		return res, fmt.Errorf("bench: record count must not be negative, got %d", n)
	}

	for {
		remaining := n - res.Created
		if remaining == 0 {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		size := min(remaining, in.concurrency)
		if in.limiter != nil {
			if err := in.limiter.WaitN(ctx, size); err != nil {
				return res, err
			}
		}

		keys := make([]string, size)
		for i := range keys {
			keys[i] = in.opts.newKey()
		}

		outcomes := make([]error, size)
		var g errgroup.Group
		for i, key := range keys {
			g.Go(func() error {
				err := in.writer.PutRecord(ctx, bucket, key, value)
				outcomes[i] = err
				if rberrors.IsNonTransientWrite(err) {
					return err
				}
				return nil
			})
		}
		fatal := g.Wait()

		created, transient := 0, 0
		for _, err := range outcomes {
			switch {
			case err == nil:
				created++
			case !rberrors.IsNonTransientWrite(err):
				transient++
			}
		}

		res.Created += created
		res.TransientFailures += transient
		res.Waves++

		in.opts.stats.RecordWave(size, created, transient)
		in.opts.logger.Debug("wave settled",
			"bucket", bucket, "wave", res.Waves, "size", size,
			"created", created, "transient", transient, "total", res.Created)
		if created == 0 && fatal == nil {
			in.opts.logger.Warn("wave created no records",
				"bucket", bucket, "wave", res.Waves, "size", size,
				"error", firstError(outcomes))
		}
		if in.opts.waveObserver != nil {
			in.opts.waveObserver(WaveOutcome{
				Index:     res.Waves - 1,
				Size:      size,
				Created:   created,
				Transient: transient,
				Total:     res.Created,
			})
		}

		if fatal != nil {
			return res, fatal
		}
	}
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
