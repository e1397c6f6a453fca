package bucketstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/pkg/types"
)

// SQLiteStore implements store.Client on a local SQLite database.
// All statements go through a single connection, so concurrent writers are
// serialized by the connection pool the same way a single-writer server would.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	closeOnce sync.Once
	closeErr  error
}

// SchemaVersionRecord is one entry of a bucket's schema history.
type SchemaVersionRecord struct {
	Version   int
	Schema    types.BucketSchema
	CreatedAt time.Time
}

// Open opens (or creates) the store at dbPath.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("bucketstore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bucketstore: failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database. Subsequent calls return the first result.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// CreateBucket creates a bucket at the given schema.
func (s *SQLiteStore) CreateBucket(ctx context.Context, name string, schema types.BucketSchema) error {
	if name == "" {
		return rberrors.NewValidationError(rberrors.CodeInvalidArgument, "bucket name is required", nil)
	}
	if err := schema.Validate(); err != nil {
		return rberrors.NewValidationError(rberrors.CodeInvalidSchema, "invalid bucket schema", err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return rberrors.NewInternalError("failed to marshal schema", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, rberrors.ErrCategoryBucket, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO buckets (name, version, schema_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		name, schema.Version, string(schemaJSON), now, now,
	)
	if err != nil {
		if isConstraint(err) {
			return rberrors.NewBucketError(rberrors.CodeBucketExists, fmt.Sprintf("bucket %s already exists", name), nil)
		}
		return classify(err, rberrors.ErrCategoryBucket, "failed to insert bucket")
	}

	if err := insertSchemaVersion(ctx, tx, name, schema, schemaJSON, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, rberrors.ErrCategoryBucket, "failed to commit bucket")
	}
	return nil
}

// UpdateBucket upgrades a bucket to a newer schema. The upgrade must bump the
// version and keep every existing field with its type.
func (s *SQLiteStore) UpdateBucket(ctx context.Context, name string, schema types.BucketSchema) error {
	if err := schema.Validate(); err != nil {
		return rberrors.NewValidationError(rberrors.CodeInvalidSchema, "invalid bucket schema", err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return rberrors.NewInternalError("failed to marshal schema", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, rberrors.ErrCategoryBucket, "failed to begin transaction")
	}
	defer tx.Rollback()

	current, err := loadSchema(ctx, tx, name)
	if err != nil {
		return err
	}
	if err := current.CheckUpgrade(schema); err != nil {
		return rberrors.NewBucketError(rberrors.CodeBucketVersion, fmt.Sprintf("cannot upgrade bucket %s", name), err)
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		"UPDATE buckets SET version = ?, schema_json = ?, updated_at = ? WHERE name = ?",
		schema.Version, string(schemaJSON), now, name,
	)
	if err != nil {
		return classify(err, rberrors.ErrCategoryBucket, "failed to update bucket")
	}

	if err := insertSchemaVersion(ctx, tx, name, schema, schemaJSON, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, rberrors.ErrCategoryBucket, "failed to commit bucket update")
	}
	return nil
}

// GetBucket returns the bucket and its current schema.
func (s *SQLiteStore) GetBucket(ctx context.Context, name string) (*types.Bucket, error) {
	var schemaJSON string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT schema_json, created_at, updated_at FROM buckets WHERE name = ?", name,
	).Scan(&schemaJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bucketNotFound(name)
		}
		return nil, classify(err, rberrors.ErrCategoryBucket, "failed to get bucket")
	}

	var schema types.BucketSchema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, rberrors.NewInternalError("failed to unmarshal schema", err)
	}

	return &types.Bucket{
		Name:      name,
		Schema:    schema,
		CreatedAt: time.Unix(createdAt, 0),
		UpdatedAt: time.Unix(updatedAt, 0),
	}, nil
}

// ListSchemaVersions returns the schema history of a bucket ordered by version.
func (s *SQLiteStore) ListSchemaVersions(ctx context.Context, name string) ([]SchemaVersionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version, schema_json, created_at FROM bucket_schemas WHERE bucket = ? ORDER BY version ASC", name,
	)
	if err != nil {
		return nil, classify(err, rberrors.ErrCategoryBucket, "failed to list schema versions")
	}
	defer rows.Close()

	var records []SchemaVersionRecord
	for rows.Next() {
		var version int
		var schemaJSON string
		var createdAt int64

		if err := rows.Scan(&version, &schemaJSON, &createdAt); err != nil {
			return nil, classify(err, rberrors.ErrCategoryBucket, "failed to scan schema version")
		}

		var schema types.BucketSchema
		if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
			return nil, rberrors.NewInternalError("failed to unmarshal schema", err)
		}

		records = append(records, SchemaVersionRecord{
			Version:   version,
			Schema:    schema,
			CreatedAt: time.Unix(createdAt, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, rberrors.ErrCategoryBucket, "error iterating schema versions")
	}
	if len(records) == 0 {
		return nil, bucketNotFound(name)
	}
	return records, nil
}

func insertSchemaVersion(ctx context.Context, tx *sql.Tx, name string, schema types.BucketSchema, schemaJSON []byte, now int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO bucket_schemas (bucket, version, schema_json, created_at) VALUES (?, ?, ?, ?)",
		name, schema.Version, string(schemaJSON), now,
	)
	if err != nil {
		return classify(err, rberrors.ErrCategoryBucket, "failed to record schema version")
	}
	return nil
}

// loadSchema reads the current schema of a bucket inside tx.
func loadSchema(ctx context.Context, tx *sql.Tx, name string) (types.BucketSchema, error) {
	var schemaJSON string
	err := tx.QueryRowContext(ctx, "SELECT schema_json FROM buckets WHERE name = ?", name).Scan(&schemaJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.BucketSchema{}, bucketNotFound(name)
		}
		return types.BucketSchema{}, classify(err, rberrors.ErrCategoryBucket, "failed to load bucket schema")
	}

	var schema types.BucketSchema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return types.BucketSchema{}, rberrors.NewInternalError("failed to unmarshal schema", err)
	}
	return schema, nil
}

func bucketNotFound(name string) error {
	return rberrors.NewBucketError(rberrors.CodeBucketNotFound, fmt.Sprintf("bucket %s does not exist", name), nil)
}

// isConstraint reports whether err is a primary key or unique constraint violation.
func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// classify converts a database error into a StoreError. Lock contention is
// reported as a retryable UNAVAILABLE error, cancellation as TIMEOUT.
func classify(err error, category rberrors.ErrorCategory, message string) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return rberrors.NewTransportError(rberrors.CodeUnavailable, message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return rberrors.NewTransportError(rberrors.CodeTimeout, message, err)
	}
	return rberrors.Wrap(category, rberrors.CodeUnexpected, message, err)
}
