package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic sweep procedures. Each procedure runs on its
// own fixed interval, concurrently with the others but never with itself —
// self-overlap is prevented by the procedure lock, not by the timer.
type Scheduler struct {
	cron *cron.Cron
	stop chan struct{}
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		stop: make(chan struct{}),
	}
}

// Register adds a procedure invoked every interval. The run function is
// expected to handle its own locking and error isolation; anything it
// returns is logged, never propagated.
func (s *Scheduler) Register(name string, every time.Duration, run func(context.Context) error) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		if err := run(context.Background()); err != nil {
			slog.Error("sweep failed", "procedure", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("registering procedure %s: %w", name, err)
	}
	return nil
}

// Start launches the timers.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "procedures", len(s.cron.Entries()))
}

// Stop halts the timers. Safe to call more than once; in-flight sweeps run
// to completion.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	<-s.cron.Stop().Done()
}
