package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrWrongResourceKind signals that a destroy was attempted with a kind hint
// that does not match how the blob was stored. It is retryable with another
// kind; any other destroy error is not.
var ErrWrongResourceKind = errors.New("wrong resource kind")

// PutResult carries blob metadata returned by the store on upload.
type PutResult struct {
	ETag      string
	VersionID string
}

// BlobStore provides access to object storage, addressed by resource kind
// and an opaque public ID.
type BlobStore interface {
	Put(ctx context.Context, kind ResourceKind, publicID string, r io.Reader, size int64, contentType string) (PutResult, error)
	Get(ctx context.Context, kind ResourceKind, publicID string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, kind ResourceKind, publicID, filename string, expiry time.Duration) (string, error)
	Destroy(ctx context.Context, kind ResourceKind, publicID string) error
}

// MinioStore implements BlobStore for MinIO/S3 compatible storage. Objects
// are keyed "<kind>/<publicID>" so the kind hint must match on destroy.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put uploads a blob under its kind prefix.
func (m *MinioStore) Put(ctx context.Context, kind ResourceKind, publicID string, r io.Reader, size int64, contentType string) (PutResult, error) {
	info, err := m.client.PutObject(ctx, m.bucket, objectKey(kind, publicID), r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return PutResult{}, fmt.Errorf("put object: %w", err)
	}
	return PutResult{ETag: info.ETag, VersionID: info.VersionID}, nil
}

// Get opens a blob for reading.
func (m *MinioStore) Get(ctx context.Context, kind ResourceKind, publicID string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey(kind, publicID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// PresignGet generates a pre-signed GET URL with a download filename.
func (m *MinioStore) PresignGet(ctx context.Context, kind ResourceKind, publicID, filename string, expiry time.Duration) (string, error) {
	params := make(url.Values)
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey(kind, publicID), expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// Destroy removes a blob. The kind must match the kind it was stored with;
// a miss is reported as ErrWrongResourceKind so the caller can retry with
// the next candidate kind.
func (m *MinioStore) Destroy(ctx context.Context, kind ResourceKind, publicID string) error {
	key := objectKey(kind, publicID)
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return ErrWrongResourceKind
		}
		return fmt.Errorf("stat object: %w", err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func objectKey(kind ResourceKind, publicID string) string {
	return path.Join(string(kind), publicID)
}
