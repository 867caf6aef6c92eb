package objectstore

import "testing"

func TestParseBucketURL(t *testing.T) {
	tests := []struct {
		url        string
		wantBucket string
		wantPrefix string
		wantOK     bool
	}{
		{"s3://datasets/images", "datasets", "images", true},
		{"s3://datasets", "datasets", "", true},
		{"s3://datasets/a/b/", "datasets", "a/b/", true},
		{"https://example.com/file", "", "", false},
		{"not a url", "", "", false},
		{"s3://", "", "", false},
	}
	for _, tt := range tests {
		bucket, prefix, ok := ParseBucketURL(tt.url)
		if bucket != tt.wantBucket || prefix != tt.wantPrefix || ok != tt.wantOK {
			t.Errorf("ParseBucketURL(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.url, bucket, prefix, ok, tt.wantBucket, tt.wantPrefix, tt.wantOK)
		}
	}
}

func TestIsBucketURL(t *testing.T) {
	if !IsBucketURL("s3://datasets/images") {
		t.Error("IsBucketURL(s3://datasets/images) = false, want true")
	}
	if IsBucketURL("https://cdn.example.com/dataset.zip") {
		t.Error("IsBucketURL(https URL) = true, want false")
	}
}
