package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements Storage against an S3-compatible endpoint.
type MinioStorage struct {
	client        *minio.Client
	resultsBucket string
}

// MinioConfig holds the connection settings for the storage endpoint.
type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	ResultsBucket string
}

// NewMinio connects to the endpoint and ensures the results bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.ResultsBucket)
	if err != nil {
		return nil, fmt.Errorf("checking results bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.ResultsBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating results bucket: %w", err)
		}
	}

	return &MinioStorage{client: client, resultsBucket: cfg.ResultsBucket}, nil
}

// List returns the object keys under the bucket URL's prefix.
func (s *MinioStorage) List(ctx context.Context, bucketURL string) ([]string, error) {
	bucket, prefix, ok := ParseBucketURL(bucketURL)
	if !ok {
		return nil, fmt.Errorf("not a bucket URL: %s", bucketURL)
	}

	var keys []string
	for object := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", bucketURL, object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// Upload writes data into the results bucket under key.
func (s *MinioStorage) Upload(ctx context.Context, key string, data []byte) (UploadResult, error) {
	_, err := s.client.PutObject(ctx, s.resultsBucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("uploading %s: %w", key, err)
	}
	return UploadResult{
		URL:  fmt.Sprintf("s3://%s/%s", s.resultsBucket, key),
		Hash: fmt.Sprintf("%x", sha256.Sum256(data)),
	}, nil
}

// Download reads the object at the URL.
func (s *MinioStorage) Download(ctx context.Context, objectURL string) ([]byte, error) {
	bucket, key, ok := ParseBucketURL(objectURL)
	if !ok {
		return nil, fmt.Errorf("not a bucket URL: %s", objectURL)
	}
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", objectURL, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", objectURL, err)
	}
	return data, nil
}
