package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"car-sniper/models"
	"car-sniper/utils"
)

// TickRunner is what the scheduler drives.
type TickRunner interface {
	Tick(ctx context.Context) (*models.TickReport, error)
}

// Scheduler fires a tick every interval. A trigger that arrives while a tick
// is still running is dropped, so ticks never overlap.
type Scheduler struct {
	runner     TickRunner
	interval   time.Duration
	firstDelay time.Duration
	logger     *utils.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu  sync.Mutex
	ctx context.Context
}

const defaultScanInterval = time.Minute

// NewScheduler builds a scheduler. A non-positive interval falls back to one
// minute and a negative first delay to zero.
func NewScheduler(runner TickRunner, interval, firstDelay time.Duration, logger *utils.Logger) *Scheduler {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	if interval <= 0 {
		logger.Warn("[scheduler] Interval %v is not positive, using %v", interval, defaultScanInterval)
		interval = defaultScanInterval
	}
	if firstDelay < 0 {
		firstDelay = 0
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		firstDelay: firstDelay,
		logger:     logger,
	}
}

// Run blocks until ctx is done and the in-flight tick, if any, has returned.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("[scheduler] First scan in %v, then every %v", s.firstDelay, s.interval)

	timer := time.NewTimer(s.firstDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.wg.Wait()
		return
	case <-timer.C:
		s.start(ctx, "schedule")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("[scheduler] Stopped")
			return
		case <-ticker.C:
			s.start(ctx, "schedule")
		}
	}
}

// TriggerNow starts an out-of-band tick. It returns false when a tick is
// already running or the scheduler is not running.
func (s *Scheduler) TriggerNow() bool {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return false
	}
	return s.start(ctx, "manual")
}

// Running reports whether a tick is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) start(ctx context.Context, reason string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("[scheduler] Previous tick still running, skipping %s trigger", reason)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if _, err := s.runner.Tick(ctx); err != nil {
			s.logger.Error("[scheduler] Tick failed: %v", err)
		}
	}()
	return true
}
