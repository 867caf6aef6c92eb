package moderation

import "context"

// Annotator is the asynchronous image-annotation provider. SubmitBatch kicks
// off a classification job for the given images; the provider writes its
// result files under outputLocation, where ParseRequests later reads them.
type Annotator interface {
	SubmitBatch(ctx context.Context, imageURLs []string, outputLocation string) error
}
