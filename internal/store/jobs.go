package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/crowdforge/launcher/internal/core"
)

// JobRepository provides read-modify-write access to job rows.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID returns the job with the given id.
func (r *JobRepository) FindByID(ctx context.Context, id uint) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindEligible returns jobs in any of the given statuses whose retry budget
// is not exhausted and whose wait time has elapsed, ordered oldest-wait
// first. This is the load step of every lifecycle sweep.
func (r *JobRepository) FindEligible(ctx context.Context, statuses []core.JobStatus, maxRetries int, now time.Time) ([]*Job, error) {
	var jobs []*Job
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("retries_count <= ?", maxRetries).
		Where("wait_until <= ?", now).
		Order("wait_until ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindByChainAndEscrow returns the job owning the given escrow, or nil.
func (r *JobRepository) FindByChainAndEscrow(ctx context.Context, chainID int64, escrowAddress string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND escrow_address = ?", chainID, escrowAddress).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Update persists all fields of the job row.
func (r *JobRepository) Update(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}
