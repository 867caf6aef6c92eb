// Package objectstore implements the storage contract used for dataset
// listings, moderation results, and audit artifacts.
package objectstore

import (
	"context"
	"net/url"
	"strings"
)

// UploadResult identifies an uploaded object.
type UploadResult struct {
	URL  string
	Hash string
}

// Storage lists bucket contents and moves blobs. Listings return object keys;
// downloads and uploads address whole objects.
type Storage interface {
	List(ctx context.Context, bucketURL string) ([]string, error)
	Upload(ctx context.Context, key string, data []byte) (UploadResult, error)
	Download(ctx context.Context, objectURL string) ([]byte, error)
}

// ParseBucketURL splits an s3://bucket/prefix URL into bucket and prefix.
func ParseBucketURL(rawURL string) (bucket, prefix string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", false
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), true
}

// IsBucketURL reports whether the URL names a bucket this system can list.
// Datasets living elsewhere are outside moderation scope.
func IsBucketURL(rawURL string) bool {
	_, _, ok := ParseBucketURL(rawURL)
	return ok
}
