// Package bucketstore provides an embedded bucket store backed by SQLite.
package bucketstore

// CreateBucketsTableSQL creates the buckets table holding the current schema of each bucket.
const CreateBucketsTableSQL = `
CREATE TABLE IF NOT EXISTS buckets (
    name TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    schema_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateBucketSchemasTableSQL creates the schema history table.
// One row is written per bucket version, including version 0.
const CreateBucketSchemasTableSQL = `
CREATE TABLE IF NOT EXISTS bucket_schemas (
    bucket TEXT NOT NULL,
    version INTEGER NOT NULL,
    schema_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (bucket, version),
    FOREIGN KEY (bucket) REFERENCES buckets(name) ON DELETE CASCADE
)`

// CreateRecordsTableSQL creates the records table.
// value holds snappy-compressed JSON; index_version is the bucket version the
// record's index entries were computed for. Records with an index_version below
// the bucket version are pending reindex.
const CreateRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS records (
    bucket TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    index_version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (bucket, key),
    FOREIGN KEY (bucket) REFERENCES buckets(name) ON DELETE CASCADE
) WITHOUT ROWID`

// CreateIndexEntriesTableSQL creates the secondary index table.
const CreateIndexEntriesTableSQL = `
CREATE TABLE IF NOT EXISTS index_entries (
    bucket TEXT NOT NULL,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    key TEXT NOT NULL,
    PRIMARY KEY (bucket, field, value, key)
) WITHOUT ROWID`

// CreateIndexesSQL creates the lookup indexes used by reindexing.
var CreateIndexesSQL = []string{
	// Pending records scan
	`CREATE INDEX IF NOT EXISTS idx_records_pending ON records(bucket, index_version)`,

	// Index entry removal by record
	`CREATE INDEX IF NOT EXISTS idx_index_entries_key ON index_entries(bucket, key)`,
}

// AllSchemaSQL returns every DDL statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateBucketsTableSQL,
		CreateBucketSchemasTableSQL,
		CreateRecordsTableSQL,
		CreateIndexEntriesTableSQL,
	}
	return append(stmts, CreateIndexesSQL...)
}
