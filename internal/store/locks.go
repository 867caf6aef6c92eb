package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/crowdforge/launcher/internal/core"
)

// LockRepository provides access to procedure lock rows.
type LockRepository struct {
	db *gorm.DB
}

// NewLockRepository creates a LockRepository.
func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db}
}

// FindByType returns the lock row for the procedure type, or nil if the
// procedure has never run.
func (r *LockRepository) FindByType(ctx context.Context, procedureType core.ProcedureType) (*ProcedureLock, error) {
	var lock ProcedureLock
	err := r.db.WithContext(ctx).
		Where("type = ?", procedureType).
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// Create inserts a new lock row. The unique index on type makes concurrent
// first-run creation fail for all but one caller.
func (r *LockRepository) Create(ctx context.Context, lock *ProcedureLock) error {
	return r.db.WithContext(ctx).Create(lock).Error
}

// Update persists all fields of the lock row.
func (r *LockRepository) Update(ctx context.Context, lock *ProcedureLock) error {
	return r.db.WithContext(ctx).Save(lock).Error
}
