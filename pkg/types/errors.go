package types

import "errors"

// Schema validation errors
var (
	// ErrNegativeVersion is returned when a schema carries a version below zero
	ErrNegativeVersion = errors.New("negative schema version")

	// ErrEmptyFieldName is returned when an index declares an empty field name
	ErrEmptyFieldName = errors.New("empty index field name")

	// ErrInvalidFieldType is returned when an index declares an unsupported type
	ErrInvalidFieldType = errors.New("invalid index field type")

	// ErrVersionNotIncreasing is returned when an upgrade does not bump the version
	ErrVersionNotIncreasing = errors.New("schema version must increase")

	// ErrNonAdditiveUpgrade is returned when an upgrade drops or retypes a field
	ErrNonAdditiveUpgrade = errors.New("schema upgrade must be additive")
)
