// Package store defines the client capability the benchmark drives.
package store

import (
	"context"

	"github.com/arkilian/reindexbench/pkg/types"
)

// Client is a connection to a bucket store.
// Implementations include an embedded SQLite store and a gRPC client.
type Client interface {
	// CreateBucket creates a bucket with the given schema.
	CreateBucket(ctx context.Context, name string, schema types.BucketSchema) error

	// UpdateBucket replaces the bucket schema with a newer version.
	// Records written under older versions become pending for reindex.
	UpdateBucket(ctx context.Context, name string, schema types.BucketSchema) error

	// PutRecord writes a new record under key.
	PutRecord(ctx context.Context, bucket, key string, value map[string]interface{}) error

	// ReindexRecords reindexes up to count pending records and reports how many remain.
	ReindexRecords(ctx context.Context, bucket string, count int) (types.ReindexResult, error)

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// RecordWriter is the subset of Client used to populate a bucket.
type RecordWriter interface {
	PutRecord(ctx context.Context, bucket, key string, value map[string]interface{}) error
}

// ChunkReindexer is the subset of Client used to drive a reindex.
type ChunkReindexer interface {
	ReindexRecords(ctx context.Context, bucket string, count int) (types.ReindexResult, error)
}
