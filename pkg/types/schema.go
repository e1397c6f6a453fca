package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FieldType is the type of an indexed field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Valid reports whether t is a supported index type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean:
		return true
	default:
		return false
	}
}

// Matches reports whether value can be stored in an index of type t.
// A nil value matches every type and is simply not indexed.
func (t FieldType) Matches(value interface{}) bool {
	if value == nil {
		return true
	}
	switch t {
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldNumber:
		switch value.(type) {
		case float64, float32, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, json.Number:
			return true
		}
		return false
	case FieldBoolean:
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}

// IndexField describes one indexed field of a bucket.
type IndexField struct {
	// Type is the value type accepted by the index
	Type FieldType `json:"type" yaml:"type"`

	// Unique rejects a second record carrying the same value
	Unique bool `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// BucketSchema defines which fields of a bucket's records are indexed.
type BucketSchema struct {
	// Index maps field name to index definition
	Index map[string]IndexField `json:"index"`

	// Version tracks schema evolution; it strictly increases on upgrade
	Version int `json:"version"`
}

// Validate checks the schema for unsupported index types and negative versions.
func (s BucketSchema) Validate() error {
	if s.Version < 0 {
		return fmt.Errorf("%w: version %d", ErrNegativeVersion, s.Version)
	}
	for name, field := range s.Index {
		if name == "" {
			return ErrEmptyFieldName
		}
		if !field.Type.Valid() {
			return fmt.Errorf("%w: field %q has type %q", ErrInvalidFieldType, name, field.Type)
		}
	}
	return nil
}

// Clone returns a deep copy of the schema.
func (s BucketSchema) Clone() BucketSchema {
	out := BucketSchema{Version: s.Version, Index: make(map[string]IndexField, len(s.Index))}
	for name, field := range s.Index {
		out.Index[name] = field
	}
	return out
}

// WithField returns a copy of the schema at the given version with one more indexed field.
func (s BucketSchema) WithField(name string, field IndexField, version int) BucketSchema {
	out := s.Clone()
	out.Index[name] = field
	out.Version = version
	return out
}

// FieldNames returns the indexed field names in sorted order.
func (s BucketSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Index))
	for name := range s.Index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckUpgrade verifies that next is a valid successor of s: the version must
// strictly increase and every field of s must survive with the same type.
func (s BucketSchema) CheckUpgrade(next BucketSchema) error {
	if next.Version <= s.Version {
		return fmt.Errorf("%w: %d -> %d", ErrVersionNotIncreasing, s.Version, next.Version)
	}
	for name, field := range s.Index {
		nf, ok := next.Index[name]
		if !ok {
			return fmt.Errorf("%w: field %q removed", ErrNonAdditiveUpgrade, name)
		}
		if nf.Type != field.Type {
			return fmt.Errorf("%w: field %q changes type %s -> %s", ErrNonAdditiveUpgrade, name, field.Type, nf.Type)
		}
	}
	return nil
}

// Bucket is a named collection of records with its current schema.
type Bucket struct {
	Name      string
	Schema    BucketSchema
	CreatedAt time.Time
	UpdatedAt time.Time
}
