package bucketstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/pkg/types"
)

// PutRecord inserts a new record and its index entries for the bucket's current schema.
//
// Errors:
//   - INVALID_INDEX_TYPE when an indexed field holds a value of the wrong type
//   - UNIQUE_ATTRIBUTE when the key exists or a unique indexed value is taken
//   - UNAVAILABLE when the database is locked
func (s *SQLiteStore) PutRecord(ctx context.Context, bucket, key string, value map[string]interface{}) error {
	if key == "" {
		return rberrors.NewValidationError(rberrors.CodeInvalidArgument, "record key is required", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, rberrors.ErrCategoryWrite, "failed to begin transaction")
	}
	defer tx.Rollback()

	schema, err := loadSchema(ctx, tx, bucket)
	if err != nil {
		return err
	}

	entries, err := indexEntries(schema, value, true)
	if err != nil {
		var fte *fieldTypeError
		if errors.As(err, &fte) {
			return rberrors.NewWriteError(rberrors.CodeInvalidIndexType, "invalid index type", err).
				WithDetails(map[string]interface{}{"field": fte.field, "type": string(fte.want)})
		}
		return rberrors.NewInternalError("failed to compute index entries", err)
	}

	if err := checkUnique(ctx, tx, bucket, key, entries, rberrors.ErrCategoryWrite); err != nil {
		return err
	}

	data, err := encodeValue(value)
	if err != nil {
		return rberrors.NewValidationError(rberrors.CodeInvalidArgument, "record value is not serializable", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO records (bucket, key, value, index_version, created_at) VALUES (?, ?, ?, ?, ?)",
		bucket, key, data, schema.Version, time.Now().Unix(),
	)
	if err != nil {
		if isConstraint(err) {
			return rberrors.NewWriteError(rberrors.CodeUniqueAttribute, fmt.Sprintf("key %s already exists in bucket %s", key, bucket), err)
		}
		return classify(err, rberrors.ErrCategoryWrite, "failed to insert record")
	}

	if err := insertEntries(ctx, tx, bucket, key, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, rberrors.ErrCategoryWrite, "failed to commit record")
	}
	return nil
}

// ReindexRecords recomputes index entries for up to count records written under
// an older schema version, then reports the number still pending. The chunk is
// processed in a single transaction.
func (s *SQLiteStore) ReindexRecords(ctx context.Context, bucket string, count int) (types.ReindexResult, error) {
	if count < 1 {
		return types.ReindexResult{}, rberrors.NewValidationError(rberrors.CodeInvalidArgument,
			fmt.Sprintf("reindex count must be positive, got %d", count), nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.ReindexResult{}, classify(err, rberrors.ErrCategoryReindex, "failed to begin transaction")
	}
	defer tx.Rollback()

	schema, err := loadSchema(ctx, tx, bucket)
	if err != nil {
		return types.ReindexResult{}, err
	}

	pending, err := selectPending(ctx, tx, bucket, schema.Version, count)
	if err != nil {
		return types.ReindexResult{}, err
	}

	for _, rec := range pending {
		value, err := decodeValue(rec.data)
		if err != nil {
			return types.ReindexResult{}, rberrors.NewReindexError(rberrors.CodeReindexFailed,
				fmt.Sprintf("corrupt record %s", rec.key), err)
		}

		// Values that do not fit the new index type stay unindexed.
		entries, _ := indexEntries(schema, value, false)

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM index_entries WHERE bucket = ? AND key = ?", bucket, rec.key,
		); err != nil {
			return types.ReindexResult{}, classify(err, rberrors.ErrCategoryReindex, "failed to clear index entries")
		}
		if err := checkUnique(ctx, tx, bucket, rec.key, entries, rberrors.ErrCategoryReindex); err != nil {
			return types.ReindexResult{}, err
		}
		if err := insertEntries(ctx, tx, bucket, rec.key, entries); err != nil {
			return types.ReindexResult{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE records SET index_version = ? WHERE bucket = ? AND key = ?", schema.Version, bucket, rec.key,
		); err != nil {
			return types.ReindexResult{}, classify(err, rberrors.ErrCategoryReindex, "failed to mark record reindexed")
		}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE bucket = ? AND index_version < ?", bucket, schema.Version,
	).Scan(&remaining); err != nil {
		return types.ReindexResult{}, classify(err, rberrors.ErrCategoryReindex, "failed to count pending records")
	}

	if err := tx.Commit(); err != nil {
		return types.ReindexResult{}, classify(err, rberrors.ErrCategoryReindex, "failed to commit reindex chunk")
	}

	return types.ReindexResult{Processed: len(pending), Remaining: remaining}, nil
}

// CountRecords returns the number of records in a bucket.
func (s *SQLiteStore) CountRecords(ctx context.Context, bucket string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE bucket = ?", bucket).Scan(&n); err != nil {
		return 0, classify(err, rberrors.ErrCategoryBucket, "failed to count records")
	}
	return n, nil
}

// CountPending returns the number of records awaiting reindex.
func (s *SQLiteStore) CountPending(ctx context.Context, bucket string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records r
		JOIN buckets b ON b.name = r.bucket
		WHERE r.bucket = ? AND r.index_version < b.version`, bucket,
	).Scan(&n)
	if err != nil {
		return 0, classify(err, rberrors.ErrCategoryBucket, "failed to count pending records")
	}
	return n, nil
}

// FindByIndex returns the keys of records whose indexed field equals value, in key order.
func (s *SQLiteStore) FindByIndex(ctx context.Context, bucket, field string, value interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM index_entries WHERE bucket = ? AND field = ? AND value = ? ORDER BY key",
		bucket, field, indexKey(value),
	)
	if err != nil {
		return nil, classify(err, rberrors.ErrCategoryBucket, "failed to query index")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, classify(err, rberrors.ErrCategoryBucket, "failed to scan index entry")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, rberrors.ErrCategoryBucket, "error iterating index entries")
	}
	return keys, nil
}

type pendingRecord struct {
	key  string
	data []byte
}

func selectPending(ctx context.Context, tx *sql.Tx, bucket string, version, limit int) ([]pendingRecord, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT key, value FROM records WHERE bucket = ? AND index_version < ? ORDER BY key LIMIT ?",
		bucket, version, limit,
	)
	if err != nil {
		return nil, classify(err, rberrors.ErrCategoryReindex, "failed to select pending records")
	}
	defer rows.Close()

	var pending []pendingRecord
	for rows.Next() {
		var rec pendingRecord
		if err := rows.Scan(&rec.key, &rec.data); err != nil {
			return nil, classify(err, rberrors.ErrCategoryReindex, "failed to scan pending record")
		}
		pending = append(pending, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, rberrors.ErrCategoryReindex, "error iterating pending records")
	}
	return pending, nil
}

// checkUnique rejects entries of unique fields whose value already belongs to another key.
func checkUnique(ctx context.Context, tx *sql.Tx, bucket, key string, entries []indexEntry, category rberrors.ErrorCategory) error {
	for _, e := range entries {
		if !e.unique {
			continue
		}
		var owner string
		err := tx.QueryRowContext(ctx,
			"SELECT key FROM index_entries WHERE bucket = ? AND field = ? AND value = ? AND key != ? LIMIT 1",
			bucket, e.field, e.value, key,
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return classify(err, category, "failed to check unique index")
		}
		return rberrors.Wrap(category, rberrors.CodeUniqueAttribute,
			fmt.Sprintf("value %q of unique field %s already used by key %s", e.value, e.field, owner), nil)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, bucket, key string, entries []indexEntry) error {
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO index_entries (bucket, field, value, key) VALUES (?, ?, ?, ?)",
			bucket, e.field, e.value, key,
		); err != nil {
			return classify(err, rberrors.ErrCategoryWrite, "failed to insert index entry")
		}
	}
	return nil
}
