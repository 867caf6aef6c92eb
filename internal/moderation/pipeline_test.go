package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/objectstore"
	"github.com/crowdforge/launcher/internal/store"
)

type fakeStorage struct {
	mu            sync.Mutex
	objects       map[string][]byte // full s3:// URL -> content
	resultsBucket string
	listCalls     int
	uploads       []string
	failList      bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects:       make(map[string][]byte),
		resultsBucket: "results",
	}
}

func (f *fakeStorage) put(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[url] = data
}

func (f *fakeStorage) List(_ context.Context, bucketURL string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, fmt.Errorf("listing unavailable")
	}
	f.listCalls++

	bucket, prefix, ok := objectstore.ParseBucketURL(bucketURL)
	if !ok {
		return nil, fmt.Errorf("not a bucket URL: %s", bucketURL)
	}
	base := "s3://" + bucket + "/"
	var keys []string
	for url := range f.objects {
		if !strings.HasPrefix(url, base) {
			continue
		}
		key := strings.TrimPrefix(url, base)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStorage) Upload(_ context.Context, key string, data []byte) (objectstore.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "s3://" + f.resultsBucket + "/" + key
	f.objects[url] = data
	f.uploads = append(f.uploads, key)
	return objectstore.UploadResult{URL: url, Hash: "fakehash"}, nil
}

func (f *fakeStorage) Download(_ context.Context, objectURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectURL]
	if !ok {
		return nil, fmt.Errorf("no object at %s", objectURL)
	}
	return data, nil
}

type fakeAnnotator struct {
	mu      sync.Mutex
	batches map[string][]string // outputLocation -> image URLs
	failFor string              // fail any batch containing this substring in the location
}

func newFakeAnnotator() *fakeAnnotator {
	return &fakeAnnotator{batches: make(map[string][]string)}
}

func (a *fakeAnnotator) SubmitBatch(_ context.Context, imageURLs []string, outputLocation string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failFor != "" && strings.Contains(outputLocation, a.failFor) {
		return fmt.Errorf("annotation provider unavailable")
	}
	a.batches[outputLocation] = imageURLs
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type pipelineEnv struct {
	svc       *Service
	jobs      *store.JobRepository
	requests  *store.ModerationRepository
	storage   *fakeStorage
	annotator *fakeAnnotator
	notifier  *fakeNotifier
}

func newPipelineEnv(t *testing.T, batchSize int) *pipelineEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	env := &pipelineEnv{
		jobs:      store.NewJobRepository(db),
		requests:  store.NewModerationRepository(db),
		storage:   newFakeStorage(),
		annotator: newFakeAnnotator(),
		notifier:  &fakeNotifier{},
	}
	env.svc = NewService(env.jobs, env.requests, env.storage, env.annotator, env.notifier, Config{
		BatchSize:     batchSize,
		Concurrency:   2,
		ResultsBucket: "results",
		ListingTTL:    time.Minute,
	})
	t.Cleanup(env.svc.Close)
	return env
}

// seedJob creates a paid job whose manifest points at a dataset with n files.
func (env *pipelineEnv) seedJob(t *testing.T, n int) *store.Job {
	t.Helper()
	for i := 1; i <= n; i++ {
		env.storage.put(fmt.Sprintf("s3://datasets/images/%03d.jpg", i), []byte("img"))
	}
	// A pseudo-directory marker must never count as a file.
	env.storage.put("s3://datasets/images/thumbs/", nil)

	manifest := []byte(`{"data":{"data_url":"s3://datasets/images"}}`)
	env.storage.put("s3://manifests/job.json", manifest)

	job := &store.Job{
		Status:      core.JobStatusPaid,
		WaitUntil:   time.Now().Add(-time.Second),
		ChainID:     137,
		ManifestURL: "s3://manifests/job.json",
		RequestType: core.RequestTypeImageBoxes,
	}
	if err := env.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seeding job: %v", err)
	}
	return job
}

func resultURL(storage *fakeStorage, jobID, requestID uint, file string) string {
	return fmt.Sprintf("s3://%s/moderation/%d/%d/%s", storage.resultsBucket, jobID, requestID, file)
}

func annotation(uri string, likelihood Likelihood) ImageAnnotation {
	var a ImageAnnotation
	a.Context.URI = uri
	a.SafeSearch = &SafeSearchAnnotation{
		Adult:    likelihood,
		Spoof:    LikelihoodVeryUnlikely,
		Medical:  LikelihoodVeryUnlikely,
		Violence: LikelihoodVeryUnlikely,
		Racy:     LikelihoodVeryUnlikely,
	}
	return a
}

func putResult(storage *fakeStorage, jobID, requestID uint, annotations ...ImageAnnotation) {
	data, _ := json.Marshal(resultFile{Responses: annotations})
	storage.put(resultURL(storage, jobID, requestID, "output-1.json"), data)
}

func TestEnsureRequests_PartitionsDataset(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	job := env.seedJob(t, 25)

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("EnsureRequests: %v", err)
	}
	if job.Status != core.JobStatusUnderModeration {
		t.Errorf("job status = %s, want under_moderation", job.Status)
	}

	requests, err := env.requests.FindByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByJob: %v", err)
	}
	wantRanges := [][2]int{{1, 10}, {11, 20}, {21, 25}}
	if len(requests) != len(wantRanges) {
		t.Fatalf("request count = %d, want %d", len(requests), len(wantRanges))
	}
	for i, r := range requests {
		if r.From != wantRanges[i][0] || r.To != wantRanges[i][1] {
			t.Errorf("range[%d] = [%d,%d], want %v", i, r.From, r.To, wantRanges[i])
		}
		if r.Status != core.ModerationStatusPending {
			t.Errorf("range[%d] status = %s, want pending", i, r.Status)
		}
	}
}

func TestEnsureRequests_Idempotent(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	job := env.seedJob(t, 25)

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("first EnsureRequests: %v", err)
	}
	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("second EnsureRequests: %v", err)
	}

	requests, err := env.requests.FindByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("FindByJob: %v", err)
	}
	if len(requests) != 3 {
		t.Errorf("request count after rerun = %d, want 3", len(requests))
	}
}

func TestEnsureRequests_ExternalDatasetPassesOutright(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()

	env.storage.put("s3://manifests/job.json", []byte(`{"data":{"data_url":"https://cdn.example.com/dataset.zip"}}`))
	job := &store.Job{
		Status:      core.JobStatusPaid,
		WaitUntil:   time.Now(),
		ManifestURL: "s3://manifests/job.json",
	}
	if err := env.jobs.Create(ctx, job); err != nil {
		t.Fatalf("seeding job: %v", err)
	}

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("EnsureRequests: %v", err)
	}
	if job.Status != core.JobStatusModerationPassed {
		t.Errorf("job status = %s, want moderation_passed: nothing to moderate", job.Status)
	}

	requests, _ := env.requests.FindByJob(ctx, job.ID)
	if len(requests) != 0 {
		t.Errorf("request count = %d, want 0", len(requests))
	}
}

func TestProcessRequests_SubmitsSlices(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	job := env.seedJob(t, 25)

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("EnsureRequests: %v", err)
	}
	if err := env.svc.ProcessRequests(ctx, job); err != nil {
		t.Fatalf("ProcessRequests: %v", err)
	}

	requests, _ := env.requests.FindByJob(ctx, job.ID)
	for _, r := range requests {
		if r.Status != core.ModerationStatusProcessed {
			t.Errorf("range [%d,%d] status = %s, want processed", r.From, r.To, r.Status)
		}
	}

	env.annotator.mu.Lock()
	defer env.annotator.mu.Unlock()
	if len(env.annotator.batches) != 3 {
		t.Fatalf("batch count = %d, want 3", len(env.annotator.batches))
	}
	last := env.annotator.batches[fmt.Sprintf("s3://results/moderation/%d/%d/", job.ID, requests[2].ID)]
	if len(last) != 5 {
		t.Fatalf("last batch size = %d, want 5", len(last))
	}
	if last[0] != "s3://datasets/images/021.jpg" || last[4] != "s3://datasets/images/025.jpg" {
		t.Errorf("last batch = %v, want files 021..025", last)
	}
}

func TestProcessRequests_IsolatesFailures(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	job := env.seedJob(t, 25)

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("EnsureRequests: %v", err)
	}
	requests, _ := env.requests.FindByJob(ctx, job.ID)
	env.annotator.failFor = fmt.Sprintf("/%d/%d/", job.ID, requests[1].ID)

	if err := env.svc.ProcessRequests(ctx, job); err != nil {
		t.Fatalf("ProcessRequests: %v", err)
	}

	requests, _ = env.requests.FindByJob(ctx, job.ID)
	wantStatuses := []core.ModerationStatus{
		core.ModerationStatusProcessed,
		core.ModerationStatusFailed,
		core.ModerationStatusProcessed,
	}
	for i, r := range requests {
		if r.Status != wantStatuses[i] {
			t.Errorf("range [%d,%d] status = %s, want %s", r.From, r.To, r.Status, wantStatuses[i])
		}
	}
}

func TestParseRequests_Verdicts(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	job := env.seedJob(t, 25)

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("EnsureRequests: %v", err)
	}
	if err := env.svc.ProcessRequests(ctx, job); err != nil {
		t.Fatalf("ProcessRequests: %v", err)
	}

	requests, _ := env.requests.FindByJob(ctx, job.ID)
	putResult(env.storage, job.ID, requests[0].ID,
		annotation("s3://datasets/images/001.jpg", LikelihoodVeryUnlikely))
	putResult(env.storage, job.ID, requests[1].ID,
		annotation("s3://datasets/images/011.jpg", LikelihoodPossible))
	putResult(env.storage, job.ID, requests[2].ID,
		annotation("s3://datasets/images/021.jpg", LikelihoodVeryLikely),
		annotation("s3://datasets/images/022.jpg", LikelihoodVeryUnlikely))

	if err := env.svc.ParseRequests(ctx, job); err != nil {
		t.Fatalf("ParseRequests: %v", err)
	}

	requests, _ = env.requests.FindByJob(ctx, job.ID)
	wantStatuses := []core.ModerationStatus{
		core.ModerationStatusPassed,
		core.ModerationStatusPossibleAbuse,
		core.ModerationStatusPositiveAbuse,
	}
	for i, r := range requests {
		if r.Status != wantStatuses[i] {
			t.Errorf("range [%d,%d] status = %s, want %s", r.From, r.To, r.Status, wantStatuses[i])
		}
	}

	// Flagged ranges leave an audit trail and ping the operator channel.
	env.storage.mu.Lock()
	audits := len(env.storage.uploads)
	env.storage.mu.Unlock()
	if audits != 2 {
		t.Errorf("audit artifact count = %d, want 2", audits)
	}
	env.notifier.mu.Lock()
	notifications := len(env.notifier.messages)
	env.notifier.mu.Unlock()
	if notifications != 2 {
		t.Errorf("notification count = %d, want 2", notifications)
	}
}

func TestParseRequests_NoResultsYetStaysProcessed(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	job := env.seedJob(t, 5)

	if err := env.svc.EnsureRequests(ctx, job); err != nil {
		t.Fatalf("EnsureRequests: %v", err)
	}
	if err := env.svc.ProcessRequests(ctx, job); err != nil {
		t.Fatalf("ProcessRequests: %v", err)
	}
	if err := env.svc.ParseRequests(ctx, job); err != nil {
		t.Fatalf("ParseRequests: %v", err)
	}

	requests, _ := env.requests.FindByJob(ctx, job.ID)
	if requests[0].Status != core.ModerationStatusProcessed {
		t.Errorf("status = %s, want processed while the provider is still working", requests[0].Status)
	}
}

func TestFinalizeJob(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []core.ModerationStatus
		wantStatus core.JobStatus
	}{
		{
			name:       "all passed",
			statuses:   []core.ModerationStatus{core.ModerationStatusPassed, core.ModerationStatusPassed},
			wantStatus: core.JobStatusModerationPassed,
		},
		{
			name:       "one positive routes to review",
			statuses:   []core.ModerationStatus{core.ModerationStatusPassed, core.ModerationStatusPositiveAbuse},
			wantStatus: core.JobStatusPossibleAbuseInReview,
		},
		{
			name:       "one possible routes to review",
			statuses:   []core.ModerationStatus{core.ModerationStatusPossibleAbuse, core.ModerationStatusPassed},
			wantStatus: core.JobStatusPossibleAbuseInReview,
		},
		{
			name:       "one failed routes to review",
			statuses:   []core.ModerationStatus{core.ModerationStatusFailed, core.ModerationStatusPassed},
			wantStatus: core.JobStatusPossibleAbuseInReview,
		},
		{
			name:       "still converging",
			statuses:   []core.ModerationStatus{core.ModerationStatusPassed, core.ModerationStatusProcessed},
			wantStatus: core.JobStatusUnderModeration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newPipelineEnv(t, 10)
			ctx := context.Background()

			job := &store.Job{Status: core.JobStatusUnderModeration, WaitUntil: time.Now()}
			if err := env.jobs.Create(ctx, job); err != nil {
				t.Fatalf("seeding job: %v", err)
			}
			var seed []*store.ModerationRequest
			for i, status := range tt.statuses {
				seed = append(seed, &store.ModerationRequest{
					JobID:   job.ID,
					DataURL: "s3://datasets/images",
					From:    i*10 + 1,
					To:      (i + 1) * 10,
					Status:  status,
				})
			}
			if err := env.requests.CreateMissing(ctx, seed); err != nil {
				t.Fatalf("seeding requests: %v", err)
			}

			if err := env.svc.FinalizeJob(ctx, job); err != nil {
				t.Fatalf("FinalizeJob: %v", err)
			}
			if job.Status != tt.wantStatus {
				t.Errorf("job status = %s, want %s", job.Status, tt.wantStatus)
			}
			if tt.wantStatus == core.JobStatusPossibleAbuseInReview && job.FailedReason == nil {
				t.Error("review outcome should record a reason")
			}
		})
	}
}

func TestGetValidFiles_CachesListing(t *testing.T) {
	env := newPipelineEnv(t, 10)
	ctx := context.Background()
	env.seedJob(t, 5)

	first, err := env.svc.getValidFiles(ctx, "s3://datasets/images")
	if err != nil {
		t.Fatalf("first getValidFiles: %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("file count = %d, want 5: directory markers must be filtered", len(first))
	}

	// A cache hit must not touch storage again.
	env.storage.mu.Lock()
	env.storage.failList = true
	env.storage.mu.Unlock()

	second, err := env.svc.getValidFiles(ctx, "s3://datasets/images")
	if err != nil {
		t.Fatalf("cached getValidFiles: %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("cached listing = %d files, want %d", len(second), len(first))
	}
}
