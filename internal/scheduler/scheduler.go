package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/internal/service"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

// cycleRunner is the minimal surface the scheduler needs from the dispatch
// engine; it keeps the package testable with a small fake.
type cycleRunner interface {
	RunCycle(ctx context.Context) (*domain.CycleResult, error)
}

// Scheduler drives dispatch cycles on a fixed interval. A tick that fires
// while a cycle is still running is skipped, never queued.
type Scheduler struct {
	dispatch cycleRunner
	interval time.Duration

	// Internal state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt    time.Time
	runsCount    int64
	skippedTicks int64
	totalSent    int64
	lastResult   *domain.CycleResult
}

func NewScheduler(dispatch cycleRunner, interval time.Duration) *Scheduler {
	return &Scheduler{
		dispatch: dispatch,
		interval: interval,
		running:  false,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	logger.Infof("Starting dispatch scheduler with interval: %v", s.interval)

	go s.run(ctx)

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Infof("Dispatch scheduler running. Next check in %v", s.interval)

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)

		case <-s.stopChan:
			logger.Warnf("Dispatch scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Dispatch scheduler context cancelled")
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	s.mu.Unlock()

	logger.Infof("[Cycle #%d] Starting absence dispatch at %s", runNumber, s.lastRunAt.Format(time.RFC3339))

	result, err := s.dispatch.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, service.ErrCycleInProgress) {
			s.mu.Lock()
			s.skippedTicks++
			s.mu.Unlock()
			logger.Warnf("[Cycle #%d] Previous cycle still running, tick skipped", runNumber)
			return
		}
		logger.Errorf("[Cycle #%d] Dispatch cycle failed: %v", runNumber, err)
		return
	}

	s.mu.Lock()
	s.totalSent += int64(result.Sent)
	s.lastResult = result
	s.mu.Unlock()

	logger.Infof("[Cycle #%d] %d classes, %d attempted, %d sent, %d failed, %d before cutoff, %d in backoff, %d classes / %d students deferred",
		runNumber, result.ClassesProcessed, result.Attempted, result.Sent, result.Failed,
		result.SkippedBeforeCutoff, result.SkippedBackoff, result.ClassesDeferred, result.StudentsDeferred)
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	// Send stop signal
	close(stopChan)

	// Wait for goroutine to finish
	<-doneChan

	logger.Infof("Dispatch scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRunAt reports the next planned cycle time. The second return is false
// when the scheduler is not running or has not ticked yet.
func (s *Scheduler) NextRunAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running || s.lastRunAt.IsZero() {
		return time.Time{}, false
	}
	return s.lastRunAt.Add(s.interval), true
}

func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Running:      s.running,
		LastRunAt:    s.lastRunAt,
		RunsCount:    s.runsCount,
		SkippedTicks: s.skippedTicks,
		TotalSent:    s.totalSent,
		Interval:     s.interval,
		LastResult:   s.lastResult,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

type Status struct {
	Running      bool                `json:"running"`
	LastRunAt    time.Time           `json:"lastRunAt,omitempty"`
	NextRunAt    time.Time           `json:"nextRunAt,omitempty"`
	RunsCount    int64               `json:"runsCount"`
	SkippedTicks int64               `json:"skippedTicks"`
	TotalSent    int64               `json:"totalSent"`
	Interval     time.Duration       `json:"interval"`
	LastResult   *domain.CycleResult `json:"lastResult,omitempty"`
}
