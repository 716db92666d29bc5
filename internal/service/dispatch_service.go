package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okulsoft/absence-dispatch/environments"
	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/internal/repository"
	"github.com/okulsoft/absence-dispatch/pkg/gateway"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

// ErrCycleInProgress is returned when RunCycle is entered while another cycle
// is still running. Overlapping entries are rejected, not queued.
var ErrCycleInProgress = errors.New("dispatch cycle already in progress")

// Small internal interfaces so the engine can be tested without a real
// database, gateway or Redis.
type notificationStore interface {
	UpsertPending(ctx context.Context, n *domain.AbsenceNotification) (*domain.AbsenceNotification, error)
	RecordAttempt(ctx context.Context, id int64, outcome domain.AttemptOutcome) error
	GetByDate(ctx context.Context, dateKey string) (map[int64]*domain.AbsenceNotification, error)
	Query(ctx context.Context, filter domain.QueryFilter, page, pageSize int) ([]domain.NotificationLogEntry, int64, error)
}

type rosterStore interface {
	GetEnabledClasses(ctx context.Context) ([]domain.ClassDispatchConfig, error)
	ListAbsentStudents(ctx context.Context, classID int64, dateKey string) ([]domain.AbsentStudent, error)
}

type smsGateway interface {
	Send(ctx context.Context, phoneNumber, message string) (string, error)
}

// SentCache is the optional Redis-backed sent-marker cache.
type SentCache interface {
	MarkSent(ctx context.Context, studentID int64, dateKey, providerMessageID string, sentAt time.Time) error
	IsSent(ctx context.Context, studentID int64, dateKey string) (bool, error)
	GetSentMarkers(ctx context.Context, dateKey string) (map[int64]*domain.SentNotificationCache, error)
}

// DispatchService is the absence SMS dispatch engine: it resolves which
// absent students are still owed a notification, gates them on the per-class
// cutoff, sends through the gateway and records every attempt in the
// dispatch log.
type DispatchService struct {
	store   notificationStore
	roster  rosterStore
	gateway smsGateway
	cache   SentCache // may be nil, cache is optional
	config  environments.DispatchConfig
	loc     *time.Location

	// now is replaceable in tests so cutoff logic can run on a synthetic
	// clock.
	now func() time.Time

	cycleRunning atomic.Bool
}

func NewDispatchService(
	store notificationStore,
	roster rosterStore,
	gw smsGateway,
	cache SentCache,
	config environments.DispatchConfig,
) (*DispatchService, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid school timezone %q: %w", config.Timezone, err)
	}

	return &DispatchService{
		store:   store,
		roster:  roster,
		gateway: gw,
		cache:   cache,
		config:  config,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// Location returns the school timezone the engine operates in.
func (s *DispatchService) Location() *time.Location {
	return s.loc
}

// TodayKey returns the current school-local date key.
func (s *DispatchService) TodayKey() string {
	return s.now().In(s.loc).Format(domain.DateKeyLayout)
}

// RunCycle executes one dispatch pass over all enabled classes. Both the
// interval scheduler and the manual trigger enter here; only one cycle may be
// in flight at a time.
func (s *DispatchService) RunCycle(ctx context.Context) (*domain.CycleResult, error) {
	if !s.cycleRunning.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.cycleRunning.Store(false)

	started := time.Now()
	now := s.now().In(s.loc)
	result := &domain.CycleResult{
		DateKey:   now.Format(domain.DateKeyLayout),
		StartedAt: now,
	}

	classes, err := s.roster.GetEnabledClasses(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load class configurations: %w", err)
	}

	if len(classes) == 0 {
		logger.Debugf("No classes with absence notifications enabled")
		return result, nil
	}

	existing, err := s.store.GetByDate(ctx, result.DateKey)
	if err != nil {
		return result, fmt.Errorf("failed to load dispatch log for %s: %w", result.DateKey, err)
	}

	// Soft deadline: classes not started before it passes are deferred to
	// the next tick so cycles cannot overlap indefinitely.
	cycleCtx, cancel := context.WithTimeout(ctx, s.config.CycleDeadline)
	defer cancel()

	workerCount := s.config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}

	jobs := make(chan domain.ClassDispatchConfig)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for class := range jobs {
				if cycleCtx.Err() != nil {
					mu.Lock()
					result.ClassesDeferred++
					mu.Unlock()
					continue
				}

				classResult := s.processClass(cycleCtx, class, result.DateKey, now, existing)

				mu.Lock()
				result.ClassesProcessed++
				result.StudentsDeferred += classResult.StudentsDeferred
				result.Attempted += classResult.Attempted
				result.Sent += classResult.Sent
				result.Failed += classResult.Failed
				result.SkippedBeforeCutoff += classResult.SkippedBeforeCutoff
				result.SkippedBackoff += classResult.SkippedBackoff
				result.AlreadyHandled += classResult.AlreadyHandled
				result.StoreErrors += classResult.StoreErrors
				result.AuthAlert = result.AuthAlert || classResult.AuthAlert
				mu.Unlock()
			}
		}()
	}

	for _, class := range classes {
		jobs <- class
	}
	close(jobs)
	wg.Wait()

	result.Duration = time.Since(started)

	if result.AuthAlert {
		logger.Errorf("ALERT: SMS gateway rejected credentials; all sends will fail until fixed")
	}

	return result, nil
}

// processClass runs eligibility, the cutoff gate and the send loop for one
// class. Each class is owned by exactly one worker per cycle, so attempts for
// a given record are never concurrent.
func (s *DispatchService) processClass(
	ctx context.Context,
	class domain.ClassDispatchConfig,
	dateKey string,
	now time.Time,
	existing map[int64]*domain.AbsenceNotification,
) domain.CycleResult {
	var result domain.CycleResult

	cutoff, err := cutoffFor(class.SendAfter, now, s.loc)
	if err != nil {
		logger.Warnf("Class %d (%s) has invalid send-after time %q, skipping", class.ClassID, class.ClassName, class.SendAfter)
		return result
	}

	absent, err := s.roster.ListAbsentStudents(ctx, class.ClassID, dateKey)
	if err != nil {
		logger.Errorf("Failed to list absent students for class %d: %v", class.ClassID, err)
		result.StoreErrors++
		return result
	}

	due := !now.Before(cutoff)

	for i, student := range absent {
		if ctx.Err() != nil {
			// Deadline passed mid-class: leave the rest for the next tick,
			// but account for them so the cycle result stays complete.
			result.StudentsDeferred += len(absent) - i
			return result
		}

		record := existing[student.StudentID]

		switch eligibility := s.classify(ctx, record, student.StudentID, dateKey, now); eligibility {
		case alreadyHandled:
			result.AlreadyHandled++
			continue
		case inBackoff:
			result.SkippedBackoff++
			continue
		}

		if !due {
			result.SkippedBeforeCutoff++
			continue
		}

		outcome := s.dispatchStudent(ctx, class, student, record, dateKey)
		result.Attempted += outcome.Attempted
		result.Sent += outcome.Sent
		result.Failed += outcome.Failed
		result.StoreErrors += outcome.StoreErrors
		result.AuthAlert = result.AuthAlert || outcome.AuthAlert
	}

	return result
}

type eligibilityClass int

const (
	eligible eligibilityClass = iota
	alreadyHandled
	inBackoff
)

// classify decides whether a student still needs a send this cycle. Sent
// records and permanently failed ones are excluded; retryable failures wait
// out their backoff window.
func (s *DispatchService) classify(
	ctx context.Context,
	record *domain.AbsenceNotification,
	studentID int64,
	dateKey string,
	now time.Time,
) eligibilityClass {
	if record == nil {
		if s.cache != nil {
			// The cache only ever holds delivered notifications, so a hit
			// is trustworthy even when the log read raced a concurrent
			// write.
			if sent, err := s.cache.IsSent(ctx, studentID, dateKey); err == nil && sent {
				return alreadyHandled
			}
		}
		return eligible
	}

	switch record.Status {
	case domain.StatusSent:
		return alreadyHandled
	case domain.StatusFailed:
		if !record.Retryable || record.Attempts >= s.config.MaxAttempts {
			return alreadyHandled
		}
		if record.LastAttemptAt != nil && now.Before(s.nextRetryAt(record)) {
			return inBackoff
		}
	}

	return eligible
}

// nextRetryAt applies exponential backoff across cycles: a failed record is
// not retried before lastAttemptAt + backoff * 2^(attempts-1), capped.
func (s *DispatchService) nextRetryAt(record *domain.AbsenceNotification) time.Time {
	backoff := s.config.RetryBackoff
	for i := 1; i < record.Attempts; i++ {
		backoff *= 2
		if backoff >= s.config.MaxRetryBackoff {
			backoff = s.config.MaxRetryBackoff
			break
		}
	}
	if s.config.MaxRetryBackoff > 0 && backoff > s.config.MaxRetryBackoff {
		backoff = s.config.MaxRetryBackoff
	}
	return record.LastAttemptAt.Add(backoff)
}

// dispatchStudent makes exactly one gateway attempt for a due student:
// ensure a pending row exists, send, record the outcome.
func (s *DispatchService) dispatchStudent(
	ctx context.Context,
	class domain.ClassDispatchConfig,
	student domain.AbsentStudent,
	record *domain.AbsenceNotification,
	dateKey string,
) domain.CycleResult {
	var result domain.CycleResult

	if record == nil {
		created, err := s.store.UpsertPending(ctx, &domain.AbsenceNotification{
			StudentID:   student.StudentID,
			ParentID:    student.ParentID,
			ClassID:     class.ClassID,
			DateKey:     dateKey,
			PhoneNumber: student.PhoneNumber,
			Message:     s.RenderMessage(student.StudentName),
		})
		if err != nil {
			logger.Errorf("Failed to create pending notification for student %d: %v", student.StudentID, err)
			result.StoreErrors++
			return result
		}
		record = created
	}

	if record.Status == domain.StatusSent {
		// Another trigger resolved this record between our log read and now.
		result.AlreadyHandled++
		return result
	}

	result.Attempted++
	attemptedAt := s.now().In(s.loc)

	providerMessageID, err := s.gateway.Send(ctx, record.PhoneNumber, record.Message)
	if err != nil {
		outcome := domain.AttemptOutcome{
			Success:      false,
			ErrorMessage: err.Error(),
			Retryable:    true,
			AttemptedAt:  attemptedAt,
		}

		var sendErr *gateway.SendError
		if errors.As(err, &sendErr) {
			outcome.Retryable = sendErr.Retryable
			if sendErr.Kind == gateway.FailureAuth {
				result.AuthAlert = true
			}
		}

		logger.Warnf("Send failed for student %d (attempt %d): %v", student.StudentID, record.Attempts+1, err)

		if recErr := s.store.RecordAttempt(ctx, record.ID, outcome); recErr != nil {
			if errors.Is(recErr, repository.ErrAlreadySent) {
				result.Attempted--
				result.AlreadyHandled++
				return result
			}
			logger.Errorf("Failed to record failed attempt for notification %d: %v", record.ID, recErr)
			result.StoreErrors++
			return result
		}

		result.Failed++
		return result
	}

	outcome := domain.AttemptOutcome{
		Success:           true,
		ProviderMessageID: providerMessageID,
		AttemptedAt:       attemptedAt,
	}

	if recErr := s.store.RecordAttempt(ctx, record.ID, outcome); recErr != nil {
		if errors.Is(recErr, repository.ErrAlreadySent) {
			result.Attempted--
			result.AlreadyHandled++
			return result
		}
		// The SMS went out but the log write failed; the record stays
		// pending and the next cycle retries. This can double-text, which is
		// why RecordAttempt must stay a single conditional write.
		logger.Errorf("Failed to record sent attempt for notification %d: %v", record.ID, recErr)
		result.StoreErrors++
		return result
	}

	if s.cache != nil {
		if cacheErr := s.cache.MarkSent(ctx, student.StudentID, dateKey, providerMessageID, attemptedAt); cacheErr != nil {
			logger.Warnf("Failed to cache sent notification for student %d: %v", student.StudentID, cacheErr)
		}
	}

	logger.Infof("Sent absence notification to %s for student %d (providerMessageId: %s)",
		record.PhoneNumber, student.StudentID, providerMessageID)

	result.Sent++
	return result
}

// SendTest delivers a single ad-hoc SMS straight through the gateway,
// bypassing eligibility, cutoff and the dispatch log. Used to verify
// provider credentials; never writes a notification record.
func (s *DispatchService) SendTest(ctx context.Context, phoneNumber, message string) (string, error) {
	return s.gateway.Send(ctx, phoneNumber, message)
}

// GetCachedSentMarkers returns the Redis-side sent markers for a date, for
// inspecting cache state against the dispatch log.
func (s *DispatchService) GetCachedSentMarkers(ctx context.Context, dateKey string) (map[int64]*domain.SentNotificationCache, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("sent-marker cache not configured")
	}
	if dateKey == "" {
		dateKey = s.TodayKey()
	}
	return s.cache.GetSentMarkers(ctx, dateKey)
}

// GetLog returns a page of the dispatch log for the monitoring console.
func (s *DispatchService) GetLog(
	ctx context.Context,
	filter domain.QueryFilter,
	page, pageSize int,
) ([]domain.NotificationLogEntry, int64, error) {
	if filter.DateKey == "" {
		filter.DateKey = s.TodayKey()
	}
	return s.store.Query(ctx, filter, page, pageSize)
}

// RenderMessage substitutes the student and school names into the configured
// SMS template.
func (s *DispatchService) RenderMessage(studentName string) string {
	return strings.NewReplacer(
		"{student}", studentName,
		"{school}", s.config.SchoolName,
	).Replace(s.config.MessageTemplate)
}

// cutoffFor anchors a class's "HH:MM" send-after time onto the current
// school-local date.
func cutoffFor(sendAfter string, now time.Time, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", sendAfter)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid send-after time %q: %w", sendAfter, err)
	}

	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
