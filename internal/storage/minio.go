package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds configuration for MinIO and other S3-compatible servers.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	// Prefix is prepended to all object paths.
	Prefix string
}

// MinIOStorage implements ObjectStorage for MinIO.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOStorage connects to a MinIO server. The bucket must exist.
func NewMinIOStorage(bucket string, cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewMinIOStorageWithClient(client, bucket, cfg.Prefix), nil
}

// NewMinIOStorageWithClient creates a MinIO storage with a pre-configured client.
func NewMinIOStorageWithClient(client *minio.Client, bucket, prefix string) *MinIOStorage {
	return &MinIOStorage{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (m *MinIOStorage) key(objectPath string) string {
	return path.Join(m.prefix, objectPath)
}

// PutObject uploads data to MinIO.
func (m *MinIOStorage) PutObject(ctx context.Context, objectPath string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key(objectPath), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(objectPath)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// GetObject downloads an object from MinIO.
func (m *MinIOStorage) GetObject(ctx context.Context, objectPath string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.key(objectPath), minio.GetObjectOptions{})
	if err != nil {
		return nil, m.readError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.readError(err)
	}
	return data, nil
}

// Exists checks if an object exists in MinIO.
func (m *MinIOStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, m.key(objectPath), minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an object from MinIO.
func (m *MinIOStorage) Delete(ctx context.Context, objectPath string) error {
	err := m.client.RemoveObject(ctx, m.bucket, m.key(objectPath), minio.RemoveObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// ListObjects returns all object paths under the given prefix.
func (m *MinIOStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    m.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, m.prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *MinIOStorage) readError(err error) error {
	if isMinIONotFound(err) {
		return ErrObjectNotFound
	}
	return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
}

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func contentType(objectPath string) string {
	if strings.HasSuffix(objectPath, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
