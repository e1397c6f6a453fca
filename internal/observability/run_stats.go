// Package observability provides run statistics for benchmark reporting.
package observability

import (
	"sync"
	"time"
)

// Stage names used for per-stage timings.
const (
	StageCreateBucket  = "create_bucket"
	StageInsertRecords = "insert_records"
	StageUpgradeBucket = "upgrade_bucket"
	StageReindex       = "reindex"
)

// RunStats accumulates counters for one benchmark run.
// It is safe for concurrent use.
type RunStats struct {
	mu sync.Mutex

	waves             int64
	writesIssued      int64
	recordsCreated    int64
	transientFailures int64
	largestWave       int

	reindexRequests  int64
	recordsReindexed int64
	lastRemaining    int64

	stages map[string]time.Duration
}

// Snapshot is a point-in-time copy of RunStats.
type Snapshot struct {
	Waves             int64                    `json:"waves"`
	WritesIssued      int64                    `json:"writes_issued"`
	RecordsCreated    int64                    `json:"records_created"`
	TransientFailures int64                    `json:"transient_failures"`
	LargestWave       int                      `json:"largest_wave"`
	ReindexRequests   int64                    `json:"reindex_requests"`
	RecordsReindexed  int64                    `json:"records_reindexed"`
	LastRemaining     int64                    `json:"last_remaining"`
	Stages            map[string]time.Duration `json:"stages"`
}

// NewRunStats creates an empty statistics tracker.
func NewRunStats() *RunStats {
	return &RunStats{stages: make(map[string]time.Duration)}
}

// RecordWave records the outcome of one insertion wave.
// A nil receiver is a no-op so callers can leave stats unset.
func (r *RunStats) RecordWave(size, created, transient int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.waves++
	r.writesIssued += int64(size)
	r.recordsCreated += int64(created)
	r.transientFailures += int64(transient)
	if size > r.largestWave {
		r.largestWave = size
	}
}

// RecordChunk records one successful reindex request.
func (r *RunStats) RecordChunk(processed, remaining int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reindexRequests++
	r.recordsReindexed += int64(processed)
	r.lastRemaining = int64(remaining)
}

// RecordStage records how long a pipeline stage took.
func (r *RunStats) RecordStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage] = d
}

// Snapshot returns a copy of the current statistics.
func (r *RunStats) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{Stages: map[string]time.Duration{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stages := make(map[string]time.Duration, len(r.stages))
	for k, v := range r.stages {
		stages[k] = v
	}

	return Snapshot{
		Waves:             r.waves,
		WritesIssued:      r.writesIssued,
		RecordsCreated:    r.recordsCreated,
		TransientFailures: r.transientFailures,
		LargestWave:       r.largestWave,
		ReindexRequests:   r.reindexRequests,
		RecordsReindexed:  r.recordsReindexed,
		LastRemaining:     r.lastRemaining,
		Stages:            stages,
	}
}
