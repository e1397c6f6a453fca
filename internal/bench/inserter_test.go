package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/internal/observability"
)

var template = map[string]interface{}{"indexed_field_string_1": "foo"}

func TestInserter_WaveSizes(t *testing.T) {
	fake := newFakeStore()
	var sizes []int
	ins, err := NewInserter(fake, 3, WithWaveObserver(func(w WaveOutcome) {
		sizes = append(sizes, w.Size)
	}))
	if err != nil {
		t.Fatalf("NewInserter failed: %v", err)
	}

	res, err := ins.Insert(context.Background(), "b", 10, template)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	want := []int{3, 3, 3, 1}
	if fmt.Sprint(sizes) != fmt.Sprint(want) {
		t.Errorf("wave sizes = %v, want %v", sizes, want)
	}
	if res.Created != 10 || res.Waves != 4 || res.TransientFailures != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if fake.recordCount() != 10 {
		t.Errorf("store holds %d records, want 10", fake.recordCount())
	}
	if got := fake.maxPuts.Load(); got > 3 {
		t.Errorf("observed %d concurrent writes, limit is 3", got)
	}
}

func TestInserter_NonTransientAbortsInsert(t *testing.T) {
	fake := newFakeStore()
	fake.putFn = func(n int, key string) error {
		if n == 2 {
			return uniqueErr()
		}
		return nil
	}
	ins, err := NewInserter(fake, 10)
	if err != nil {
		t.Fatalf("NewInserter failed: %v", err)
	}

	res, err := ins.Insert(context.Background(), "b", 5, template)
	if !rberrors.IsNonTransientWrite(err) {
		t.Fatalf("expected non-transient error, got %v", err)
	}
	if rberrors.GetCode(err) != rberrors.CodeUniqueAttribute {
		t.Errorf("expected the original cause, got %v", err)
	}
	if res.Created >= 5 {
		t.Errorf("created %d, want fewer than 5", res.Created)
	}
	if res.Waves != 1 || fake.putCount() != 5 {
		t.Errorf("expected a single wave of 5 writes, got %d waves and %d writes", res.Waves, fake.putCount())
	}
}

func TestInserter_TransientFailuresAreCompensated(t *testing.T) {
	fake := newFakeStore()
	fake.putFn = func(n int, key string) error {
		if n%3 == 0 {
			return transientErr()
		}
		return nil
	}
	stats := observability.NewRunStats()
	ins, err := NewInserter(fake, 4, WithStats(stats))
	if err != nil {
		t.Fatalf("NewInserter failed: %v", err)
	}

	res, err := ins.Insert(context.Background(), "b", 20, template)
	if err != nil {
		t.Fatalf("transient failures must not surface: %v", err)
	}
	if res.Created != 20 || fake.recordCount() != 20 {
		t.Errorf("created %d (store %d), want 20", res.Created, fake.recordCount())
	}
	if res.TransientFailures == 0 || res.Created+res.TransientFailures != fake.putCount() {
		t.Errorf("unexpected accounting: %+v with %d writes", res, fake.putCount())
	}

	snap := stats.Snapshot()
	if snap.TransientFailures != int64(res.TransientFailures) || snap.Waves != int64(res.Waves) {
		t.Errorf("stats do not match result: %+v vs %+v", snap, res)
	}
}

func TestInserter_UntypedErrorsAreTransient(t *testing.T) {
	fake := newFakeStore()
	fake.putFn = func(n int, key string) error {
		if n == 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	ins, _ := NewInserter(fake, 2)

	res, err := ins.Insert(context.Background(), "b", 3, template)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 3 || res.TransientFailures != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestInserter_ZeroRecords(t *testing.T) {
	fake := newFakeStore()
	ins, _ := NewInserter(fake, 5)

	res, err := ins.Insert(context.Background(), "b", 0, template)
	if err != nil || res.Waves != 0 || fake.putCount() != 0 {
		t.Errorf("expected an immediate no-op, got %+v, %v", res, err)
	}
}

func TestInserter_RejectsBadArguments(t *testing.T) {
	if _, err := NewInserter(newFakeStore(), 0); err == nil {
		t.Error("expected error for zero concurrency")
	}
	ins, _ := NewInserter(newFakeStore(), 1)
	if _, err := ins.Insert(context.Background(), "b", -1, template); err == nil {
		t.Error("expected error for negative record count")
	}
}

func TestInserter_StopsOnCancelledContext(t *testing.T) {
	fake := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	ins, _ := NewInserter(fake, 2, WithWaveObserver(func(w WaveOutcome) {
		if w.Index == 1 {
			cancel()
		}
	}))

	res, err := ins.Insert(ctx, "b", 100, template)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Waves != 2 || res.Created != 4 {
		t.Errorf("unexpected result after cancel: %+v", res)
	}
}

func TestInserter_WarnsWhenWaveCreatesNothing(t *testing.T) {
	fake := newFakeStore()
	fake.putFn = func(n int, key string) error {
		if n <= 4 {
			return rberrors.NewBucketError(rberrors.CodeBucketNotFound, "no such bucket", nil)
		}
		return nil
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ins, err := NewInserter(fake, 2, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewInserter failed: %v", err)
	}

	res, err := ins.Insert(context.Background(), "b", 2, template)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if res.Created != 2 || res.Waves != 3 || res.TransientFailures != 4 {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := strings.Count(logs.String(), "wave created no records"); got != 2 {
		t.Errorf("expected 2 stall warnings, got %d:\n%s", got, logs.String())
	}
	if !strings.Contains(logs.String(), "BUCKET_NOT_FOUND") {
		t.Errorf("warning should carry the failure:\n%s", logs.String())
	}
}

func TestInserter_WriteRateLimit(t *testing.T) {
	fake := newFakeStore()
	ins, err := NewInserter(fake, 10, WithWriteRate(1000))
	if err != nil {
		t.Fatalf("NewInserter failed: %v", err)
	}
	if ins.limiter == nil || ins.limiter.Burst() < 10 {
		t.Fatalf("limiter burst must cover a full wave")
	}

	res, err := ins.Insert(context.Background(), "b", 25, template)
	if err != nil || res.Created != 25 {
		t.Errorf("unexpected result: %+v, %v", res, err)
	}
}

func TestProperty_AllSuccessCreatesExactlyN(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("n distinct records in ceil(n/c) waves", prop.ForAll(
		func(n, c int) bool {
			fake := newFakeStore()
			ins, err := NewInserter(fake, c, WithKeyFunc(sequentialKeys()))
			if err != nil {
				return false
			}
			res, err := ins.Insert(context.Background(), "b", n, template)
			if err != nil {
				return false
			}
			wantWaves := (n + c - 1) / c
			return res.Created == n && fake.recordCount() == n && res.Waves == wantWaves &&
				int(fake.maxPuts.Load()) <= c
		},
		gen.IntRange(1, 400),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestProperty_TransientFailuresStillReachN(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("compensation yields exactly n records", prop.ForAll(
		func(n, c, every int) bool {
			fake := newFakeStore()
			fake.putFn = func(i int, key string) error {
				if i%every == 0 {
					return transientErr()
				}
				return nil
			}
			ins, _ := NewInserter(fake, c)
			res, err := ins.Insert(context.Background(), "b", n, template)
			return err == nil && res.Created == n && fake.recordCount() == n &&
				res.Created+res.TransientFailures == fake.putCount()
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 30),
		gen.IntRange(2, 7),
	))

	properties.TestingRun(t)
}

func TestProperty_NonTransientStopsFurtherWaves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("no wave after a non-transient failure", prop.ForAll(
		func(n, c, failAt int) bool {
			if failAt > n {
				failAt = n
			}
			fake := newFakeStore()
			fake.putFn = func(i int, key string) error {
				if i == failAt {
					return rberrors.NewWriteError(rberrors.CodeInvalidIndexType, "bad type", nil)
				}
				return nil
			}
			ins, _ := NewInserter(fake, c)
			res, err := ins.Insert(context.Background(), "b", n, template)
			if !rberrors.IsNonTransientWrite(err) {
				return false
			}
			// writes stop at the end of the wave holding the failure
			waveEnd := min(((failAt+c-1)/c)*c, n)
			return res.Created <= n && res.Created < n && fake.putCount() == waveEnd
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 30),
		gen.IntRange(1, 300),
	))

	properties.TestingRun(t)
}
