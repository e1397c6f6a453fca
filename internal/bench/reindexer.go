package bench

import (
	"context"
	"fmt"

	"github.com/arkilian/reindexbench/internal/store"
)

// ReindexSummary summarizes a reindex drive.
type ReindexSummary struct {
	// Requests is the number of reindex requests issued, including the final one
	Requests int
	// Chunks is the number of requests that reindexed at least one record
	Chunks int
	// Processed is the total number of records reindexed
	Processed int
}

// Reindexer drives a server-side reindex one chunk at a time.
type Reindexer struct {
	client    store.ChunkReindexer
	chunkSize int
	opts      options
}

// NewReindexer creates a reindexer. chunkSize must be at least 1.
func NewReindexer(client store.ChunkReindexer, chunkSize int, opts ...Option) (*Reindexer, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("bench: reindex chunk size must be at least 1, got %d", chunkSize)
	}
	return &Reindexer{
		client:    client,
		chunkSize: chunkSize,
		opts:      applyOptions(opts),
	}, nil
}

// Run requests reindex chunks until the store reports nothing remaining.
// At most one request is outstanding at a time. The first failure is
// returned as is; nothing is retried.
//
// The pending count is only known from a response, so a successful Run
// always issues at least one request: Requests is at least 1 even when
// nothing was pending, in which case Chunks is 0.
func (r *Reindexer) Run(ctx context.Context, bucket string) (ReindexSummary, error) {
	var sum ReindexSummary
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := r.client.ReindexRecords(ctx, bucket, r.chunkSize)
		if err != nil {
			return sum, err
		}

		sum.Requests++
		sum.Processed += res.Processed
		if res.Processed > 0 {
			sum.Chunks++
		}
		r.opts.stats.RecordChunk(res.Processed, res.Remaining)
		r.opts.logger.Debug("reindex chunk done",
			"bucket", bucket, "processed", res.Processed, "remaining", res.Remaining)

		if res.Remaining == 0 {
			return sum, nil
		}
	}
}
