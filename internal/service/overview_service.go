package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

type notificationSummarizer interface {
	Summarize(ctx context.Context, dateKey string) ([]domain.ClassStatusCounts, error)
}

// dispatchSchedule is what the aggregator needs from the scheduler: the next
// planned cycle time, if one is planned at all.
type dispatchSchedule interface {
	NextRunAt() (time.Time, bool)
}

// OverviewService is the read-only rollup over the dispatch log and the
// class roster.
type OverviewService struct {
	summarizer notificationSummarizer
	roster     rosterStore
	schedule   dispatchSchedule // may be nil when the scheduler is not wired
	loc        *time.Location
	timezone   string

	now func() time.Time
}

func NewOverviewService(
	summarizer notificationSummarizer,
	roster rosterStore,
	schedule dispatchSchedule,
	loc *time.Location,
) *OverviewService {
	return &OverviewService{
		summarizer: summarizer,
		roster:     roster,
		schedule:   schedule,
		loc:        loc,
		timezone:   loc.String(),
		now:        time.Now,
	}
}

// Overview computes school-wide totals and the per-class breakdown for a
// date. Pending students are split by whether their class's cutoff has
// passed on the injected clock.
func (s *OverviewService) Overview(ctx context.Context, dateKey string) (*domain.Overview, error) {
	now := s.now().In(s.loc)
	if dateKey == "" {
		dateKey = now.Format(domain.DateKeyLayout)
	}

	classes, err := s.roster.GetEnabledClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load class configurations: %w", err)
	}

	counts, err := s.summarizer.Summarize(ctx, dateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize dispatch log: %w", err)
	}

	countsByClass := make(map[int64]domain.ClassStatusCounts, len(counts))
	for _, c := range counts {
		countsByClass[c.ClassID] = c
	}

	overview := &domain.Overview{
		DateKey:     dateKey,
		Timezone:    s.timezone,
		CurrentTime: now,
		Classes:     make([]domain.ClassOverview, 0, len(classes)),
	}

	if s.schedule != nil {
		if next, ok := s.schedule.NextRunAt(); ok {
			nextLocal := next.In(s.loc)
			overview.NextDispatchCheck = &nextLocal
		}
	}

	for _, class := range classes {
		absent, err := s.roster.ListAbsentStudents(ctx, class.ClassID, dateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to list absent students for class %d: %w", class.ClassID, err)
		}

		row := domain.ClassOverview{
			ClassID:     class.ClassID,
			ClassName:   class.ClassName,
			SendAfter:   class.SendAfter,
			AbsentToday: len(absent),
		}

		classCounts := countsByClass[class.ClassID]
		row.Sent = classCounts.Sent
		row.Failed = classCounts.Failed

		cutoff, err := cutoffFor(class.SendAfter, now, s.loc)
		if err != nil {
			logger.Warnf("Class %d has invalid send-after time %q", class.ClassID, class.SendAfter)
		} else {
			row.Due = !now.Before(cutoff)
		}

		// Absent students not yet resolved to sent/failed are pending,
		// bucketed by the class's cutoff.
		unresolved := row.AbsentToday - row.Sent - row.Failed
		if unresolved < 0 {
			unresolved = 0
		}
		if row.Due {
			row.PendingAfterCutoff = unresolved
		} else {
			row.PendingBeforeCutoff = unresolved
		}

		overview.Totals.SentToday += row.Sent
		overview.Totals.FailedToday += row.Failed
		overview.Totals.PendingBeforeCutoff += row.PendingBeforeCutoff
		overview.Totals.PendingAfterCutoff += row.PendingAfterCutoff

		overview.Classes = append(overview.Classes, row)
	}

	return overview, nil
}
