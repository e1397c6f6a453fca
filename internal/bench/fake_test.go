package bench

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/pkg/types"
)

// fakeStore is a scripted store.Client for driver tests.
type fakeStore struct {
	mu sync.Mutex

	createErr error
	updateErr error

	// putFn decides the outcome of the n-th put (1-based). Nil means success.
	putFn func(n int, key string) error
	puts  int
	keys  map[string]bool

	// remaining is consumed one value per reindex call; reindexErr fails
	// the call with the matching 1-based index.
	remaining    []int
	reindexErrAt int
	reindexErr   error
	reindexCalls int
	chunkSizes   []int

	created  []string
	updated  []types.BucketSchema
	closes   atomic.Int32
	inFlight atomic.Int32
	maxPuts  atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]bool)}
}

func (f *fakeStore) CreateBucket(ctx context.Context, name string, schema types.BucketSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return f.createErr
}

func (f *fakeStore) UpdateBucket(ctx context.Context, name string, schema types.BucketSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, schema)
	return f.updateErr
}

func (f *fakeStore) PutRecord(ctx context.Context, bucket, key string, value map[string]interface{}) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxPuts.Load()
		if n <= cur || f.maxPuts.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putFn != nil {
		if err := f.putFn(f.puts, key); err != nil {
			return err
		}
	}
	if f.keys[key] {
		return rberrors.NewWriteError(rberrors.CodeUniqueAttribute, "duplicate key "+key, nil)
	}
	f.keys[key] = true
	return nil
}

func (f *fakeStore) ReindexRecords(ctx context.Context, bucket string, count int) (types.ReindexResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexCalls++
	f.chunkSizes = append(f.chunkSizes, count)
	if f.reindexErrAt == f.reindexCalls {
		return types.ReindexResult{}, f.reindexErr
	}
	if len(f.remaining) == 0 {
		return types.ReindexResult{}, fmt.Errorf("unscripted reindex call %d", f.reindexCalls)
	}
	rem := f.remaining[0]
	f.remaining = f.remaining[1:]
	return types.ReindexResult{Processed: count, Remaining: rem}, nil
}

func (f *fakeStore) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func (f *fakeStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// pendingStore decrements a pending counter by exactly the chunk size.
type pendingStore struct {
	pending int
	calls   int
	failAt  int
}

func (p *pendingStore) ReindexRecords(ctx context.Context, bucket string, count int) (types.ReindexResult, error) {
	p.calls++
	if p.failAt == p.calls {
		return types.ReindexResult{}, rberrors.NewReindexError(rberrors.CodeReindexFailed, "boom", nil)
	}
	n := min(count, p.pending)
	p.pending -= n
	return types.ReindexResult{Processed: n, Remaining: p.pending}, nil
}

func transientErr() error {
	return rberrors.NewWriteError(rberrors.CodeOverloaded, "overloaded", nil)
}

func uniqueErr() error {
	return rberrors.NewWriteError(rberrors.CodeUniqueAttribute, "unique attribute", nil)
}

func sequentialKeys() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("key-%06d", n.Add(1))
	}
}
