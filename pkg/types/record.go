// Package types provides core data types for the reindex benchmark.
package types

import (
	"github.com/google/uuid"
)

// Record is a single object stored in a bucket.
type Record struct {
	// Key uniquely identifies the record within its bucket (random UUID)
	Key string `json:"key"`

	// Value is the record body; indexed fields are read from its top level
	Value map[string]interface{} `json:"value"`
}

// ReindexResult is the store's answer to one reindex chunk request.
type ReindexResult struct {
	// Processed is the number of records reindexed by this request
	Processed int `json:"processed"`

	// Remaining is the number of records still waiting to be reindexed
	Remaining int `json:"remaining"`
}

// NewRecordKey returns a fresh random record key.
func NewRecordKey() string {
	return uuid.NewString()
}

// NewBucketName returns prefix followed by a short random suffix.
func NewBucketName(prefix string) string {
	return prefix + uuid.NewString()[:7]
}
