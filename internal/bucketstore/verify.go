package bucketstore

import (
	"context"
)

// Verification describes a bucket after a benchmark run.
type Verification struct {
	Bucket         string      `json:"bucket"`
	SchemaVersion  int         `json:"schema_version"`
	SchemaVersions []int       `json:"schema_versions"`
	Records        int         `json:"records"`
	Pending        int         `json:"pending"`
	IndexField     string      `json:"index_field"`
	IndexValue     interface{} `json:"index_value,omitempty"`
	Indexed        int         `json:"indexed"`
}

// Complete reports whether no record is waiting for reindex and, when an
// index value was looked up, every record is reachable through it.
func (v *Verification) Complete() bool {
	if v.Pending != 0 {
		return false
	}
	return v.IndexValue == nil || v.Indexed == v.Records
}

// Verify inspects bucket: its schema history, record count, records still
// pending reindex, and how many records the index returns for field=value.
// A nil value skips the index lookup.
func (s *SQLiteStore) Verify(ctx context.Context, bucket, field string, value interface{}) (*Verification, error) {
	b, err := s.GetBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	history, err := s.ListSchemaVersions(ctx, bucket)
	if err != nil {
		return nil, err
	}

	v := &Verification{
		Bucket:        bucket,
		SchemaVersion: b.Schema.Version,
		IndexField:    field,
		IndexValue:    value,
	}
	for _, rec := range history {
		v.SchemaVersions = append(v.SchemaVersions, rec.Version)
	}

	if v.Records, err = s.CountRecords(ctx, bucket); err != nil {
		return nil, err
	}
	if v.Pending, err = s.CountPending(ctx, bucket); err != nil {
		return nil, err
	}

	if value != nil {
		keys, err := s.FindByIndex(ctx, bucket, field, value)
		if err != nil {
			return nil, err
		}
		v.Indexed = len(keys)
	}
	return v, nil
}
