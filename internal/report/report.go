// Package report archives benchmark results as JSON documents.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/reindexbench/internal/bench"
	"github.com/arkilian/reindexbench/internal/bucketstore"
	"github.com/arkilian/reindexbench/internal/observability"
	"github.com/arkilian/reindexbench/internal/storage"
)

// Prefix is the object path prefix reports are stored under.
const Prefix = "reports"

// Params records the parameters a run was started with.
type Params struct {
	Records       int     `json:"records"`
	Concurrency   int     `json:"concurrency"`
	ChunkSize     int     `json:"chunk_size"`
	IndexField    string  `json:"index_field"`
	WriteRate     float64 `json:"write_rate,omitempty"`
	Store         string  `json:"store"`
	TransientRate float64 `json:"transient_rate,omitempty"`
}

// Report is the archived outcome of one benchmark run.
type Report struct {
	RunID      string    `json:"run_id"`
	Bucket     string    `json:"bucket"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Params     Params    `json:"params"`

	Succeeded   bool   `json:"succeeded"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`

	RecordsCreated    int `json:"records_created"`
	TransientFailures int `json:"transient_failures"`
	Waves             int `json:"waves"`
	ReindexRequests   int `json:"reindex_requests"`
	ReindexChunks     int `json:"reindex_chunks"`
	RecordsReindexed  int `json:"records_reindexed"`

	// ReindexDurationMs is only present for successful runs.
	ReindexDurationMs *float64 `json:"reindex_duration_ms,omitempty"`

	Stats observability.Snapshot `json:"stats"`

	// Verification is the post-run bucket check, only for embedded stores.
	Verification *bucketstore.Verification `json:"verification,omitempty"`
}

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// New builds a report from a pipeline result. runErr is the error returned
// by the pipeline, if any.
func New(res *bench.Result, runErr error, params Params, stats observability.Snapshot, startedAt time.Time) *Report {
	r := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Params:     params,
		Succeeded:  runErr == nil,
		Stats:      stats,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if res == nil {
		return r
	}

	r.Bucket = res.Bucket
	r.FailedStage = res.FailedStage
	r.RecordsCreated = res.Insert.Created
	r.TransientFailures = res.Insert.TransientFailures
	r.Waves = res.Insert.Waves
	r.ReindexRequests = res.Reindex.Requests
	r.ReindexChunks = res.Reindex.Chunks
	r.RecordsReindexed = res.Reindex.Processed
	if r.Succeeded {
		ms := float64(res.ReindexDuration) / float64(time.Millisecond)
		r.ReindexDurationMs = &ms
	}
	return r
}

// ObjectPath returns where the report is stored.
func (r *Report) ObjectPath() string {
	name := r.Bucket
	if name == "" {
		name = r.RunID
	}
	return path.Join(Prefix, name+".json")
}

// Write stores the report and returns its object path.
func Write(ctx context.Context, store storage.ObjectStorage, r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	objectPath := r.ObjectPath()
	if err := store.PutObject(ctx, objectPath, data); err != nil {
		return "", fmt.Errorf("failed to store report %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// Read loads a stored report.
func Read(ctx context.Context, store storage.ObjectStorage, objectPath string) (*Report, error) {
	data, err := store.GetObject(ctx, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectPath)
		}
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", objectPath, err)
	}
	return &r, nil
}

// List returns the object paths of all stored reports, sorted by name.
func List(ctx context.Context, store storage.ObjectStorage) ([]string, error) {
	objects, err := store.ListObjects(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	var paths []string
	for _, p := range objects {
		if strings.HasSuffix(p, ".json") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Delete removes a stored report.
func Delete(ctx context.Context, store storage.ObjectStorage, objectPath string) error {
	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("failed to check report %s: %w", objectPath, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, objectPath)
	}
	if err := store.Delete(ctx, objectPath); err != nil {
		return fmt.Errorf("failed to delete report %s: %w", objectPath, err)
	}
	return nil
}
