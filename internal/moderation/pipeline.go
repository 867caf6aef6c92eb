// Package moderation implements the content-moderation pipeline: dataset
// listings are partitioned into fixed-size request slices, fanned out to an
// asynchronous annotation provider, and the per-slice verdicts are folded
// back into a single job outcome.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdforge/launcher/internal/cache"
	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/metrics"
	"github.com/crowdforge/launcher/internal/notify"
	"github.com/crowdforge/launcher/internal/objectstore"
	"github.com/crowdforge/launcher/internal/store"
)

// manifest is the slice of the job manifest the pipeline cares about: where
// the dataset lives.
type manifest struct {
	Data struct {
		DataURL string `json:"data_url"`
	} `json:"data"`
}

// Service drives ModerationRequest rows from creation to verdict.
type Service struct {
	jobs          *store.JobRepository
	requests      *store.ModerationRepository
	storage       objectstore.Storage
	annotator     Annotator
	notifier      notify.Notifier
	listings      *cache.Cache[string, []string]
	resultsBucket string
	batchSize     int
	concurrency   int
	logger        *slog.Logger
}

// Config holds the pipeline tunables.
type Config struct {
	// BatchSize is the number of files per moderation request slice.
	BatchSize int
	// Concurrency bounds the provider fan-out per job.
	Concurrency int
	// ResultsBucket is where the provider writes its result files and where
	// audit artifacts land.
	ResultsBucket string
	// ListingTTL bounds how long a dataset listing stays cached. Indices in
	// request ranges are only stable while the listing is.
	ListingTTL time.Duration
}

// NewService creates the moderation pipeline.
func NewService(jobs *store.JobRepository, requests *store.ModerationRepository, storage objectstore.Storage, annotator Annotator, notifier notify.Notifier, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = 10 * time.Minute
	}
	return &Service{
		jobs:          jobs,
		requests:      requests,
		storage:       storage,
		annotator:     annotator,
		notifier:      notifier,
		listings:      cache.New[string, []string](cfg.ListingTTL, cfg.ListingTTL),
		resultsBucket: cfg.ResultsBucket,
		batchSize:     cfg.BatchSize,
		concurrency:   cfg.Concurrency,
		logger:        slog.With("component", "moderation"),
	}
}

// Close releases the listing cache's background sweep.
func (s *Service) Close() {
	s.listings.Close()
}

// ModerateJob runs the job through every pipeline stage it is ready for. A
// single call typically advances one stage; the sweep picks the job up again
// on the next tick.
func (s *Service) ModerateJob(ctx context.Context, job *store.Job) error {
	if err := s.EnsureRequests(ctx, job); err != nil {
		return err
	}
	if core.IsTerminalJobStatus(job.Status) || job.Status == core.JobStatusModerationPassed {
		return nil
	}
	if err := s.ProcessRequests(ctx, job); err != nil {
		return err
	}
	if err := s.ParseRequests(ctx, job); err != nil {
		return err
	}
	return s.FinalizeJob(ctx, job)
}

// EnsureRequests partitions the job's dataset into moderation request rows.
// Calling it again is a no-op once any request exists. Datasets outside our
// storage pass moderation outright.
func (s *Service) EnsureRequests(ctx context.Context, job *store.Job) error {
	existing, err := s.requests.FindByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("loading moderation requests: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	dataURL, err := s.resolveDataURL(ctx, job)
	if err != nil {
		return err
	}
	if !objectstore.IsBucketURL(dataURL) {
		job.Status = core.JobStatusModerationPassed
		return s.jobs.Update(ctx, job)
	}

	files, err := s.getValidFiles(ctx, dataURL)
	if err != nil {
		return fmt.Errorf("listing dataset %s: %w", dataURL, err)
	}
	if len(files) == 0 {
		job.Status = core.JobStatusModerationPassed
		return s.jobs.Update(ctx, job)
	}

	requests := make([]*store.ModerationRequest, 0, (len(files)+s.batchSize-1)/s.batchSize)
	for from := 1; from <= len(files); from += s.batchSize {
		to := from + s.batchSize - 1
		if to > len(files) {
			to = len(files)
		}
		requests = append(requests, &store.ModerationRequest{
			JobID:   job.ID,
			DataURL: dataURL,
			From:    from,
			To:      to,
			Status:  core.ModerationStatusPending,
		})
	}
	if err := s.requests.CreateMissing(ctx, requests); err != nil {
		return fmt.Errorf("creating moderation requests: %w", err)
	}

	job.Status = core.JobStatusUnderModeration
	return s.jobs.Update(ctx, job)
}

// ProcessRequests submits every pending request slice to the annotation
// provider. Requests fail individually; siblings are unaffected.
func (s *Service) ProcessRequests(ctx context.Context, job *store.Job) error {
	pending, err := s.requests.FindByJobAndStatus(ctx, job.ID, core.ModerationStatusPending)
	if err != nil {
		return fmt.Errorf("loading pending moderation requests: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, request := range pending {
		request := request
		g.Go(func() error {
			if err := s.processOne(ctx, job, request); err != nil {
				s.markFailed(ctx, request, err)
				return nil
			}
			request.Status = core.ModerationStatusProcessed
			if err := s.requests.Update(ctx, request); err != nil {
				s.logger.Error("failed to mark moderation request processed",
					"job_id", job.ID, "request_id", request.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) processOne(ctx context.Context, job *store.Job, request *store.ModerationRequest) error {
	files, err := s.getValidFiles(ctx, request.DataURL)
	if err != nil {
		return fmt.Errorf("listing dataset %s: %w", request.DataURL, err)
	}
	if request.From < 1 || request.To > len(files) || request.From > request.To {
		return core.NewValidationError(fmt.Sprintf("range [%d,%d] out of bounds for %d files", request.From, request.To, len(files)), nil)
	}

	bucket, _, _ := objectstore.ParseBucketURL(request.DataURL)
	urls := make([]string, 0, request.To-request.From+1)
	for _, key := range files[request.From-1 : request.To] {
		urls = append(urls, fmt.Sprintf("s3://%s/%s", bucket, key))
	}

	return s.annotator.SubmitBatch(ctx, urls, s.resultsLocation(job.ID, request.ID))
}

// ParseRequests folds provider result files into per-request verdicts.
func (s *Service) ParseRequests(ctx context.Context, job *store.Job) error {
	processed, err := s.requests.FindByJobAndStatus(ctx, job.ID, core.ModerationStatusProcessed)
	if err != nil {
		return fmt.Errorf("loading processed moderation requests: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, request := range processed {
		request := request
		g.Go(func() error {
			if err := s.parseOne(ctx, job, request); err != nil {
				s.markFailed(ctx, request, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) parseOne(ctx context.Context, job *store.Job, request *store.ModerationRequest) error {
	location := s.resultsLocation(job.ID, request.ID)
	keys, err := s.storage.List(ctx, location)
	if err != nil {
		return fmt.Errorf("listing results at %s: %w", location, err)
	}
	if len(keys) == 0 {
		// Provider has not produced output yet; stay PROCESSED and look
		// again next tick.
		return nil
	}

	var positive, possible []string
	for _, key := range keys {
		data, err := s.storage.Download(ctx, fmt.Sprintf("s3://%s/%s", s.resultsBucket, key))
		if err != nil {
			return fmt.Errorf("downloading result %s: %w", key, err)
		}
		annotations, err := decodeResultFile(data)
		if err != nil {
			return fmt.Errorf("decoding result %s: %w", key, err)
		}
		for _, a := range annotations {
			if a.Error != nil {
				return fmt.Errorf("provider error for %s: %s", a.Context.URI, a.Error.Message)
			}
			if a.SafeSearch == nil {
				continue
			}
			switch a.SafeSearch.Verdict() {
			case VerdictPositive:
				positive = append(positive, a.Context.URI)
			case VerdictPossible:
				possible = append(possible, a.Context.URI)
			}
		}
	}

	switch {
	case len(positive) > 0:
		request.Status = core.ModerationStatusPositiveAbuse
		reason := fmt.Sprintf("%d images classified as abuse", len(positive))
		request.AbuseReason = &reason
	case len(possible) > 0:
		request.Status = core.ModerationStatusPossibleAbuse
		reason := fmt.Sprintf("%d images flagged for review", len(possible))
		request.AbuseReason = &reason
	default:
		request.Status = core.ModerationStatusPassed
	}

	if len(positive)+len(possible) > 0 {
		if err := s.reportFlagged(ctx, job, request, positive, possible); err != nil {
			return err
		}
	}

	metrics.SweepItems.WithLabelValues(string(core.ProcedureModerateJobs), string(request.Status)).Inc()
	return s.requests.Update(ctx, request)
}

// reportFlagged writes the audit artifact and pings the operator channel.
func (s *Service) reportFlagged(ctx context.Context, job *store.Job, request *store.ModerationRequest, positive, possible []string) error {
	artifact, err := json.Marshal(map[string]any{
		"job_id":     job.ID,
		"request_id": request.ID,
		"range":      []int{request.From, request.To},
		"positive":   positive,
		"possible":   possible,
	})
	if err != nil {
		return fmt.Errorf("encoding audit artifact: %w", err)
	}

	key := fmt.Sprintf("moderation-audit/%d/%d.json", job.ID, request.ID)
	uploaded, err := s.storage.Upload(ctx, key, artifact)
	if err != nil {
		return fmt.Errorf("uploading audit artifact: %w", err)
	}

	message := fmt.Sprintf("Moderation flagged job %d (range %d-%d): %d positive, %d possible. Audit: %s",
		job.ID, request.From, request.To, len(positive), len(possible), uploaded.URL)
	if err := s.notifier.Notify(ctx, message); err != nil {
		// The audit artifact is durable; a missed ping is not worth failing
		// the request over.
		s.logger.Warn("moderation notification failed", "job_id", job.ID, "error", err)
	}
	return nil
}

// FinalizeJob folds the request verdicts into the job status once every
// request has reached one. Zero flagged and zero failed requests pass the
// job; anything else routes it to human review.
func (s *Service) FinalizeJob(ctx context.Context, job *store.Job) error {
	requests, err := s.requests.FindByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("loading moderation requests: %w", err)
	}
	if len(requests) == 0 {
		return nil
	}

	allPassed := true
	var reasons []string
	for _, request := range requests {
		if !core.IsTerminalModerationStatus(request.Status) {
			return nil
		}
		if request.Status != core.ModerationStatusPassed {
			allPassed = false
			if request.AbuseReason != nil {
				reasons = append(reasons, *request.AbuseReason)
			} else {
				reasons = append(reasons, fmt.Sprintf("range %d-%d ended %s", request.From, request.To, request.Status))
			}
		}
	}

	if allPassed {
		job.Status = core.JobStatusModerationPassed
	} else {
		job.Status = core.JobStatusPossibleAbuseInReview
		reason := strings.Join(reasons, "; ")
		job.FailedReason = &reason
	}

	s.logger.Info("moderation finalized", "job_id", job.ID, "status", job.Status)
	return s.jobs.Update(ctx, job)
}

// getValidFiles returns the dataset's file keys, skipping pseudo-directory
// markers. Listings are memoized so request ranges index a stable snapshot
// within the TTL.
func (s *Service) getValidFiles(ctx context.Context, dataURL string) ([]string, error) {
	if files, ok := s.listings.Get(dataURL); ok {
		return files, nil
	}

	keys, err := s.storage.List(ctx, dataURL)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		files = append(files, key)
	}

	s.listings.Set(dataURL, files)
	return files, nil
}

func (s *Service) resolveDataURL(ctx context.Context, job *store.Job) (string, error) {
	data, err := s.storage.Download(ctx, job.ManifestURL)
	if err != nil {
		return "", fmt.Errorf("downloading manifest %s: %w", job.ManifestURL, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("decoding manifest %s: %w", job.ManifestURL, err)
	}
	return m.Data.DataURL, nil
}

func (s *Service) resultsLocation(jobID, requestID uint) string {
	return fmt.Sprintf("s3://%s/moderation/%d/%d/", s.resultsBucket, jobID, requestID)
}

func (s *Service) markFailed(ctx context.Context, request *store.ModerationRequest, cause error) {
	request.Status = core.ModerationStatusFailed
	reason := cause.Error()
	request.AbuseReason = &reason
	s.logger.Error("moderation request failed",
		"job_id", request.JobID, "request_id", request.ID,
		"range_from", request.From, "range_to", request.To, "error", cause)
	metrics.SweepItems.WithLabelValues(string(core.ProcedureModerateJobs), "failed").Inc()
	if err := s.requests.Update(ctx, request); err != nil {
		s.logger.Error("failed to record moderation failure", "request_id", request.ID, "error", err)
	}
}
