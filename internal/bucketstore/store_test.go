package bucketstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/pkg/types"
)

const testField = "indexed_field_string_1"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func schemaV1() types.BucketSchema {
	return types.BucketSchema{Version: 0}.WithField(testField, types.IndexField{Type: types.FieldString}, 1)
}

func TestSQLiteStore_CreateAndGetBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, "b1", types.BucketSchema{Version: 0}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	b, err := s.GetBucket(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to get bucket: %v", err)
	}
	if b.Schema.Version != 0 || len(b.Schema.Index) != 0 {
		t.Errorf("unexpected schema: %+v", b.Schema)
	}

	err = s.CreateBucket(ctx, "b1", types.BucketSchema{Version: 0})
	if rberrors.GetCode(err) != rberrors.CodeBucketExists {
		t.Errorf("expected BUCKET_EXISTS, got %v", err)
	}

	_, err = s.GetBucket(ctx, "missing")
	if rberrors.GetCode(err) != rberrors.CodeBucketNotFound {
		t.Errorf("expected BUCKET_NOT_FOUND, got %v", err)
	}
}

func TestSQLiteStore_CreateBucketRejectsInvalidSchema(t *testing.T) {
	s := newTestStore(t)
	bad := types.BucketSchema{Index: map[string]types.IndexField{"x": {Type: "blob"}}}

	err := s.CreateBucket(context.Background(), "b1", bad)
	if rberrors.GetCode(err) != rberrors.CodeInvalidSchema {
		t.Errorf("expected INVALID_SCHEMA, got %v", err)
	}
}

func TestSQLiteStore_UpdateBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, "b1", types.BucketSchema{Version: 0}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if err := s.UpdateBucket(ctx, "b1", schemaV1()); err != nil {
		t.Fatalf("failed to update bucket: %v", err)
	}

	// Same version again is rejected
	err := s.UpdateBucket(ctx, "b1", schemaV1())
	if rberrors.GetCode(err) != rberrors.CodeBucketVersion {
		t.Errorf("expected BUCKET_VERSION, got %v", err)
	}

	// Dropping a field is rejected
	err = s.UpdateBucket(ctx, "b1", types.BucketSchema{Version: 2})
	if rberrors.GetCode(err) != rberrors.CodeBucketVersion {
		t.Errorf("expected BUCKET_VERSION for non-additive upgrade, got %v", err)
	}

	err = s.UpdateBucket(ctx, "missing", schemaV1())
	if rberrors.GetCode(err) != rberrors.CodeBucketNotFound {
		t.Errorf("expected BUCKET_NOT_FOUND, got %v", err)
	}

	versions, err := s.ListSchemaVersions(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 0 || versions[1].Version != 1 {
		t.Errorf("unexpected schema history: %+v", versions)
	}
	if _, ok := versions[1].Schema.Index[testField]; !ok {
		t.Errorf("version 1 should index %s", testField)
	}
}

func TestSQLiteStore_PutRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, "b1", schemaV1()); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	if err := s.PutRecord(ctx, "b1", "k1", map[string]interface{}{testField: "foo"}); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	keys, err := s.FindByIndex(ctx, "b1", testField, "foo")
	if err != nil {
		t.Fatalf("failed to query index: %v", err)
	}
	if len(keys) != 1 || keys[0] != "k1" {
		t.Errorf("expected [k1], got %v", keys)
	}

	// Duplicate key
	err = s.PutRecord(ctx, "b1", "k1", map[string]interface{}{testField: "bar"})
	if rberrors.GetCode(err) != rberrors.CodeUniqueAttribute {
		t.Errorf("expected UNIQUE_ATTRIBUTE, got %v", err)
	}
	if !rberrors.IsNonTransientWrite(err) {
		t.Error("duplicate key must be a non-transient write failure")
	}

	// Wrong type for indexed field
	err = s.PutRecord(ctx, "b1", "k2", map[string]interface{}{testField: 42})
	if rberrors.GetCode(err) != rberrors.CodeInvalidIndexType {
		t.Errorf("expected INVALID_INDEX_TYPE, got %v", err)
	}

	// Unknown bucket
	err = s.PutRecord(ctx, "missing", "k3", map[string]interface{}{})
	if rberrors.GetCode(err) != rberrors.CodeBucketNotFound {
		t.Errorf("expected BUCKET_NOT_FOUND, got %v", err)
	}

	n, err := s.CountRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestSQLiteStore_UniqueIndexedField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	schema := types.BucketSchema{Version: 0}.WithField("email", types.IndexField{Type: types.FieldString, Unique: true}, 0)
	if err := s.CreateBucket(ctx, "users", schema); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	if err := s.PutRecord(ctx, "users", "u1", map[string]interface{}{"email": "a@example.com"}); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}
	err := s.PutRecord(ctx, "users", "u2", map[string]interface{}{"email": "a@example.com"})
	if rberrors.GetCode(err) != rberrors.CodeUniqueAttribute {
		t.Errorf("expected UNIQUE_ATTRIBUTE, got %v", err)
	}
}

func TestSQLiteStore_ReindexRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, "b1", types.BucketSchema{Version: 0}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	for i := 0; i < 62; i++ {
		if err := s.PutRecord(ctx, "b1", fmt.Sprintf("k%02d", i), map[string]interface{}{testField: "foo"}); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
	}

	// Nothing pending before the upgrade
	res, err := s.ReindexRecords(ctx, "b1", 25)
	if err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	if res.Processed != 0 || res.Remaining != 0 {
		t.Errorf("expected empty reindex before upgrade, got %+v", res)
	}

	if err := s.UpdateBucket(ctx, "b1", schemaV1()); err != nil {
		t.Fatalf("failed to update bucket: %v", err)
	}
	pending, err := s.CountPending(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if pending != 62 {
		t.Errorf("expected 62 pending, got %d", pending)
	}

	keys, _ := s.FindByIndex(ctx, "b1", testField, "foo")
	if len(keys) != 0 {
		t.Errorf("expected no index entries before reindex, got %d", len(keys))
	}

	var remaining []int
	for {
		res, err := s.ReindexRecords(ctx, "b1", 25)
		if err != nil {
			t.Fatalf("reindex failed: %v", err)
		}
		remaining = append(remaining, res.Remaining)
		if res.Remaining == 0 {
			break
		}
	}

	want := []int{37, 12, 0}
	if fmt.Sprint(remaining) != fmt.Sprint(want) {
		t.Errorf("remaining sequence = %v, want %v", remaining, want)
	}

	keys, err = s.FindByIndex(ctx, "b1", testField, "foo")
	if err != nil {
		t.Fatalf("failed to query index: %v", err)
	}
	if len(keys) != 62 {
		t.Errorf("expected 62 indexed records, got %d", len(keys))
	}
}

func TestSQLiteStore_ReindexSkipsMismatchedValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, "b1", types.BucketSchema{Version: 0}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if err := s.PutRecord(ctx, "b1", "k1", map[string]interface{}{testField: 7}); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}
	if err := s.UpdateBucket(ctx, "b1", schemaV1()); err != nil {
		t.Fatalf("failed to update bucket: %v", err)
	}

	res, err := s.ReindexRecords(ctx, "b1", 10)
	if err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	if res.Processed != 1 || res.Remaining != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSQLiteStore_ReindexRejectsNonPositiveCount(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReindexRecords(context.Background(), "b1", 0)
	if rberrors.GetCode(err) != rberrors.CodeInvalidArgument {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestSQLiteStore_ConcurrentPuts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateBucket(ctx, "b1", schemaV1()); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.PutRecord(ctx, "b1", types.NewRecordKey(), map[string]interface{}{testField: "foo"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent put failed: %v", err)
	}

	n, err := s.CountRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 100 {
		t.Errorf("expected 100 records, got %d", n)
	}
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
