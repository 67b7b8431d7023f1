package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"bookportal/pkg/domain"
)

// ListPageLimit bounds a single listing call. Objects beyond it are not returned.
const ListPageLimit = 1000

// BlobStore provides access to the book-file bucket.
// Every call is committed independently; there is no transaction spanning calls.
type BlobStore interface {
	// List returns up to ListPageLimit objects whose name starts with prefix,
	// sorted by name ascending. An error means the bucket state is unknown.
	List(ctx context.Context, prefix string) ([]domain.StorageObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// MinioStore implements BlobStore for MinIO/S3 compatible storage.
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

// List enumerates objects recursively, stopping at ListPageLimit.
func (m *MinioStore) List(ctx context.Context, prefix string) ([]domain.StorageObject, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make([]domain.StorageObject, 0, 64)
	for info := range m.client.ListObjects(ctx, m.bucket, listOptions(prefix)) {
		if info.Err != nil {
			return nil, &domain.StoreError{Op: "list", Key: prefix, Err: info.Err}
		}
		out = append(out, domain.StorageObject{
			Name:         info.Key,
			Size:         info.Size,
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
		})
		if len(out) >= ListPageLimit {
			break
		}
	}
	sortObjects(out)
	return out, nil
}

// listOptions walks the whole tree under prefix with a plain ListObjectsV2;
// user metadata is not requested.
func listOptions(prefix string) minio.ListObjectsOptions {
	return minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
}

// Get opens an object for reading.
func (m *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			err = domain.ErrFileNotFound
		}
		return nil, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	return obj, nil
}

// Put uploads an object.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return &domain.StoreError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", &domain.StoreError{Op: "presign", Key: key, Err: err}
	}
	return url.String(), nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &domain.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func sortObjects(objs []domain.StorageObject) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
}
