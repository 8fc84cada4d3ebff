package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"waveline/internal/config"
)

// ErrObjectMissing indicates the requested key does not exist in the bucket.
var ErrObjectMissing = errors.New("object missing")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is the object-storage surface the pipeline depends on.
type Store interface {
	UploadFile(ctx context.Context, key, localPath, contentType string) error
	DownloadFile(ctx context.Context, key, localPath string) error
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key, downloadName string) (string, error)
}

// MinioStore implements Store against any S3-compatible endpoint.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
}

// New connects to the configured endpoint and ensures the bucket exists.
func New(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.BlobStore.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.BlobStore.AccessKey, cfg.BlobStore.SecretKey, ""),
		Secure: cfg.BlobStore.UseSSL,
		Region: cfg.BlobStore.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}

	store := &MinioStore{
		client:        client,
		bucket:        cfg.BlobStore.Bucket,
		presignExpiry: cfg.PresignExpiry(),
	}
	if err := store.ensureBucket(ctx, cfg.BlobStore.Region); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		// Another instance may have raced the creation.
		if recheck, recheckErr := s.client.BucketExists(ctx, s.bucket); recheckErr == nil && recheck {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// UploadFile stores a local file under the given key.
func (s *MinioStore) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// DownloadFile fetches an object to a local path.
func (s *MinioStore) DownloadFile(ctx context.Context, key, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return wrapObjectErr("download", key, err)
	}
	return nil
}

// Open returns a streaming reader for the object along with its metadata.
// The caller owns closing the reader.
func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, wrapObjectErr("open", key, err)
	}
	return obj, info, nil
}

// Stat reports object metadata, or ErrObjectMissing.
func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, wrapObjectErr("stat", key, err)
	}
	return ObjectInfo{Key: key, Size: info.Size, ContentType: info.ContentType}, nil
}

// Remove deletes an object. Removing an absent key is not an error.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited URL for direct download, with a
// Content-Disposition hint so browsers save the file under downloadName.
func (s *MinioStore) PresignGet(ctx context.Context, key, downloadName string) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return presigned.String(), nil
}

func wrapObjectErr(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s %s: %w", op, key, ErrObjectMissing)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
