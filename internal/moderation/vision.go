package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// VisionAnnotator implements Annotator against a SafeSearch-style async
// batch-annotation HTTP API. The provider classifies each image and writes
// JSON result files under the requested output location.
type VisionAnnotator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewVisionAnnotator creates a VisionAnnotator for the given API endpoint.
func NewVisionAnnotator(endpoint, apiKey string) *VisionAnnotator {
	return &VisionAnnotator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   http.DefaultClient,
	}
}

type annotateRequest struct {
	Image struct {
		Source struct {
			ImageURI string `json:"imageUri"`
		} `json:"source"`
	} `json:"image"`
	Features []struct {
		Type string `json:"type"`
	} `json:"features"`
}

type batchRequest struct {
	Requests     []annotateRequest `json:"requests"`
	OutputConfig struct {
		Destination struct {
			URI string `json:"uri"`
		} `json:"gcsDestination"`
	} `json:"outputConfig"`
}

// SubmitBatch starts one asynchronous classification batch. The call returns
// once the provider accepts the batch; results appear at outputLocation
// later.
func (v *VisionAnnotator) SubmitBatch(ctx context.Context, imageURLs []string, outputLocation string) error {
	var batch batchRequest
	for _, u := range imageURLs {
		var r annotateRequest
		r.Image.Source.ImageURI = u
		r.Features = []struct {
			Type string `json:"type"`
		}{{Type: "SAFE_SEARCH_DETECTION"}}
		batch.Requests = append(batch.Requests, r)
	}
	batch.OutputConfig.Destination.URI = outputLocation

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding annotation batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building annotation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("submitting annotation batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("annotation provider rejected batch: %s", resp.Status)
	}
	return nil
}
