package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/store"
)

// ErrLockHeld is reported when a procedure is invoked while a previous run of
// the same type has not completed. Callers treat it as a silent no-op.
var ErrLockHeld = errors.New("procedure already running")

// LockManager is the per-procedure advisory lock, backed by one persisted row
// per procedure type. The lock is not lease-based: a crashed process holding
// it starves future ticks of that type until the row is cleared manually.
type LockManager struct {
	locks *store.LockRepository
}

// NewLockManager creates a LockManager.
func NewLockManager(locks *store.LockRepository) *LockManager {
	return &LockManager{locks: locks}
}

// IsRunning reports whether a run of the procedure type is in flight: a row
// exists and its completion time is unset.
func (m *LockManager) IsRunning(ctx context.Context, procedureType core.ProcedureType) (bool, error) {
	lock, err := m.locks.FindByType(ctx, procedureType)
	if err != nil {
		return false, err
	}
	return lock != nil && lock.CompletedAt == nil, nil
}

// TryStart acquires the lock for the procedure type. A missing row is
// created in the running state; a completed row is restarted. ErrLockHeld is
// returned while the previous run has not completed.
func (m *LockManager) TryStart(ctx context.Context, procedureType core.ProcedureType) (*store.ProcedureLock, error) {
	lock, err := m.locks.FindByType(ctx, procedureType)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if lock == nil {
		lock = &store.ProcedureLock{
			Type:      procedureType,
			StartedAt: now,
		}
		if err := m.locks.Create(ctx, lock); err != nil {
			// Lost the race against a concurrent first run.
			return nil, ErrLockHeld
		}
		return lock, nil
	}

	if lock.CompletedAt == nil {
		return nil, ErrLockHeld
	}

	lock.StartedAt = now
	lock.CompletedAt = nil
	if err := m.locks.Update(ctx, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// Complete releases the lock. Completing an already-completed lock is a logic
// error and fails loudly: completion must be exactly-once per acquisition.
func (m *LockManager) Complete(ctx context.Context, lock *store.ProcedureLock) error {
	if lock.CompletedAt != nil {
		return core.NewConflictError("procedure lock is already completed", map[string]any{
			"procedure_type": lock.Type,
		})
	}
	now := time.Now()
	lock.CompletedAt = &now
	return m.locks.Update(ctx, lock)
}
