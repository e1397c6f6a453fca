package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/arkilian/reindexbench/internal/observability"
	"github.com/arkilian/reindexbench/internal/store"
	"github.com/arkilian/reindexbench/pkg/types"
)

// BucketPrefix prefixes generated bucket names.
const BucketPrefix = "reindex_benchmark_"

// Config holds the parameters of one benchmark run.
type Config struct {
	// BucketName is the bucket to create. Empty generates a unique name.
	BucketName string

	// Records is the number of records to insert before the upgrade.
	Records int

	// Concurrency caps the number of writes in flight.
	Concurrency int

	// ChunkSize is the maximum number of records reindexed per request.
	ChunkSize int

	// Template is the value written for every record.
	Template map[string]interface{}

	// IndexField is the field added to the index by the upgrade.
	IndexField string

	// IndexFieldType is the declared type of IndexField.
	IndexFieldType types.FieldType

	// WriteRate caps writes per second. Zero means unlimited.
	WriteRate float64
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Records < 0 {
		return fmt.Errorf("bench: records must not be negative, got %d", c.Records)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("bench: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("bench: chunk size must be at least 1, got %d", c.ChunkSize)
	}
	if c.IndexField == "" {
		return fmt.Errorf("bench: index field is required")
	}
	if !c.IndexFieldType.Valid() {
		return fmt.Errorf("bench: invalid index field type %q", c.IndexFieldType)
	}
	if c.WriteRate < 0 {
		return fmt.Errorf("bench: write rate must not be negative, got %v", c.WriteRate)
	}
	return nil
}

// StageError reports the pipeline stage that failed. The cause is kept
// unchanged and is reachable through errors.Is and errors.As.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a pipeline run. ReindexDuration is only set when
// the run succeeded.
type Result struct {
	Bucket          string
	Insert          InsertResult
	Reindex         ReindexSummary
	ReindexDuration time.Duration
	FailedStage     string
}

// Succeeded reports whether every stage completed.
func (r *Result) Succeeded() bool {
	return r.FailedStage == ""
}

// Pipeline runs create, insert, upgrade and a timed reindex against one
// store connection, which it owns and closes.
type Pipeline struct {
	client store.Client
	cfg    Config
	opts   []Option
	o      options
}

// NewPipeline creates a pipeline over client. The pipeline takes ownership
// of client only once Run is called.
func NewPipeline(client store.Client, cfg Config, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("bench: store client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BucketName == "" {
		cfg.BucketName = types.NewBucketName(BucketPrefix)
	}
	// options passed by the caller override the configured write rate
	opts = append([]Option{WithWriteRate(cfg.WriteRate)}, opts...)
	return &Pipeline{
		client: client,
		cfg:    cfg,
		opts:   opts,
		o:      applyOptions(opts),
	}, nil
}

// Bucket returns the name of the bucket the pipeline works on.
func (p *Pipeline) Bucket() string {
	return p.cfg.BucketName
}

// Run executes the stages in order and stops at the first failure. The
// store connection is closed exactly once before Run returns. On failure the
// returned Result carries the failed stage and the error is a *StageError.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	defer func() {
		if err := p.client.Close(); err != nil {
			p.o.logger.Warn("failed to close store connection", "error", err)
		}
	}()

	bucket := p.cfg.BucketName
	res := &Result{Bucket: bucket}
	log := p.o.logger.With("bucket", bucket)

	v0 := types.BucketSchema{Index: map[string]types.IndexField{}, Version: 0}

	log.Info("creating bucket")
	err := p.stage(observability.StageCreateBucket, func() error {
		return p.client.CreateBucket(ctx, bucket, v0)
	})
	if err != nil {
		return p.fail(res, observability.StageCreateBucket, err)
	}

	log.Info("adding test records", "records", p.cfg.Records, "concurrency", p.cfg.Concurrency)
	err = p.stage(observability.StageInsertRecords, func() error {
		ins, err := NewInserter(p.client, p.cfg.Concurrency, p.opts...)
		if err != nil {
			return err
		}
		res.Insert, err = ins.Insert(ctx, bucket, p.cfg.Records, p.cfg.Template)
		return err
	})
	if err != nil {
		return p.fail(res, observability.StageInsertRecords, err)
	}
	log.Info("records added", "created", res.Insert.Created,
		"transient_failures", res.Insert.TransientFailures, "waves", res.Insert.Waves)

	v1 := v0.WithField(p.cfg.IndexField, types.IndexField{Type: p.cfg.IndexFieldType}, 1)

	log.Info("updating bucket", "version", v1.Version, "field", p.cfg.IndexField)
	err = p.stage(observability.StageUpgradeBucket, func() error {
		return p.client.UpdateBucket(ctx, bucket, v1)
	})
	if err != nil {
		return p.fail(res, observability.StageUpgradeBucket, err)
	}

	log.Info("reindexing bucket", "chunk_size", p.cfg.ChunkSize)
	start := time.Now()
	err = p.stage(observability.StageReindex, func() error {
		rx, err := NewReindexer(p.client, p.cfg.ChunkSize, p.opts...)
		if err != nil {
			return err
		}
		res.Reindex, err = rx.Run(ctx, bucket)
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		return p.fail(res, observability.StageReindex, err)
	}

	res.ReindexDuration = elapsed
	log.Info("reindex completed", "duration", elapsed,
		"requests", res.Reindex.Requests, "processed", res.Reindex.Processed)
	return res, nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.o.stats.RecordStage(name, time.Since(start))
	return err
}

func (p *Pipeline) fail(res *Result, stage string, err error) (*Result, error) {
	res.FailedStage = stage
	p.o.logger.Error("benchmark stage failed", "bucket", res.Bucket, "stage", stage, "error", err)
	return res, &StageError{Stage: stage, Err: err}
}
