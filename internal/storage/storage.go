// Package storage provides object storage for benchmark reports.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3, MinIO and the local filesystem.
type ObjectStorage interface {
	// PutObject writes data to objectPath, replacing any existing object.
	PutObject(ctx context.Context, objectPath string, data []byte) error

	// GetObject reads the object at objectPath.
	// Returns ErrObjectNotFound if it does not exist.
	GetObject(ctx context.Context, objectPath string) ([]byte, error)

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
