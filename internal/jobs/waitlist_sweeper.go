// Package jobs holds background work scheduled with cron.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"gymbooking/internal/booking"
	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/logger"
)

// WaitlistProcessor is the slice of booking.Service the sweeper drives.
type WaitlistProcessor interface {
	ClassesWithWaitlist(ctx context.Context) ([]uuid.UUID, error)
	ProcessWaitlist(ctx context.Context, classID uuid.UUID) (*booking.WaitlistResult, error)
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Classes  int
	Promoted int
	Skipped  int
	Failed   int
}

// WaitlistSweeper periodically fills free spots from waitlists. Cancellations
// free spots without promoting anyone; the sweep picks them up.
type WaitlistSweeper struct {
	svc         WaitlistProcessor
	log         *logger.Logger
	spec        string
	concurrency int
	timeout     time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

func NewWaitlistSweeper(svc WaitlistProcessor, log *logger.Logger, spec string, concurrency int) *WaitlistSweeper {
	if log == nil {
		log = logger.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if spec == "" {
		spec = "@every 1m"
	}
	return &WaitlistSweeper{
		svc:         svc,
		log:         log,
		spec:        spec,
		concurrency: concurrency,
		timeout:     30 * time.Second,
	}
}

// Start schedules the sweep. It returns an error for an unparsable spec.
func (s *WaitlistSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("waitlist sweeper started", "schedule", s.spec, "concurrency", s.concurrency)
	return nil
}

// Stop halts scheduling and waits for a running sweep or ctx, whichever ends first.
func (s *WaitlistSweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("waitlist sweeper stopped")
}

func (s *WaitlistSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	stats, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("waitlist sweep failed", "error", err)
		return
	}
	if stats.Promoted > 0 || stats.Skipped > 0 || stats.Failed > 0 {
		s.log.Info("waitlist sweep finished",
			"classes", stats.Classes, "promoted", stats.Promoted, "skipped", stats.Skipped, "failed", stats.Failed)
	}
}

// Sweep processes every class with queued entries, promoting until each
// class is full or its queue is empty. A failure on one class is logged and
// does not stop the others.
func (s *WaitlistSweeper) Sweep(ctx context.Context) (SweepStats, error) {
	classIDs, err := s.svc.ClassesWithWaitlist(ctx)
	if err != nil {
		return SweepStats{}, fmt.Errorf("failed to list waitlisted classes: %w", err)
	}

	var (
		mu    sync.Mutex
		stats = SweepStats{Classes: len(classIDs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, classID := range classIDs {
		g.Go(func() error {
			promoted, skipped, err := s.drain(gctx, classID)
			mu.Lock()
			defer mu.Unlock()
			stats.Promoted += promoted
			stats.Skipped += skipped
			if err != nil {
				stats.Failed++
				s.log.Warn("waitlist processing failed", "class_id", classID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats, ctx.Err()
}

func (s *WaitlistSweeper) drain(ctx context.Context, classID uuid.UUID) (promoted, skipped int, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return promoted, skipped, err
		}
		res, err := s.svc.ProcessWaitlist(ctx, classID)
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				return promoted, skipped, nil
			}
			return promoted, skipped, err
		}
		skipped += len(res.Skipped)
		if res.Outcome != booking.OutcomePromoted {
			return promoted, skipped, nil
		}
		promoted++
	}
}
