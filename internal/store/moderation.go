package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crowdforge/launcher/internal/core"
)

// ModerationRepository provides access to content-moderation request rows.
type ModerationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a ModerationRepository.
func NewModerationRepository(db *gorm.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

// CreateMissing inserts the given requests, skipping any whose
// (jobId, from, to) range already exists. Re-running request creation never
// duplicates a range.
func (r *ModerationRepository) CreateMissing(ctx context.Context, requests []*ModerationRequest) error {
	if len(requests) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(requests).Error
}

// FindByJob returns all requests belonging to the job, ordered by range.
func (r *ModerationRepository) FindByJob(ctx context.Context, jobID uint) ([]*ModerationRequest, error) {
	var requests []*ModerationRequest
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("range_from ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// FindByJobAndStatus returns the job's requests in the given status.
func (r *ModerationRepository) FindByJobAndStatus(ctx context.Context, jobID uint, status core.ModerationStatus) ([]*ModerationRequest, error) {
	var requests []*ModerationRequest
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, status).
		Order("range_from ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// Update persists all fields of the request row.
func (r *ModerationRepository) Update(ctx context.Context, request *ModerationRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}
