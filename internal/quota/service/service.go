package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	accounts "github.com/corvusHold/courier/internal/accounts/domain"
	"github.com/corvusHold/courier/internal/metrics"
	domain "github.com/corvusHold/courier/internal/quota/domain"
)

type service struct {
	repo domain.Repository
	// dailyDefault applies to day-cadence plans that carry no limit of
	// their own (the entry-level tier).
	dailyDefault int64
	now          func() time.Time
}

func New(repo domain.Repository, dailyDefault int64) domain.Service {
	return &service{repo: repo, dailyDefault: dailyDefault, now: time.Now}
}

// NewWithClock is like New but with an injectable clock, for tests.
func NewWithClock(repo domain.Repository, dailyDefault int64, now func() time.Time) domain.Service {
	return &service{repo: repo, dailyDefault: dailyDefault, now: now}
}

func (s *service) Consume(ctx context.Context, companyID uuid.UUID, plan accounts.Plan, units int64) error {
	window, key, start, reset := windowFor(plan.QuotaCadence, s.now().UTC())

	limit := plan.IncludedMessages
	if plan.QuotaCadence == accounts.CadenceDay && limit <= 0 {
		limit = s.dailyDefault
	}
	// Month-cadence plans without an included-message count are unlimited:
	// nothing to enforce, nothing to record.
	if limit <= 0 {
		return nil
	}

	consumed, allowed, err := s.repo.Consume(ctx, companyID, key, start, units, limit)
	if err != nil {
		return err
	}
	if !allowed {
		remaining := limit - (consumed - units)
		if remaining < 0 {
			remaining = 0
		}
		metrics.IncQuotaRejection(window)
		return &domain.ExceededError{Window: window, Limit: limit, Remaining: remaining, ResetAt: reset}
	}
	return nil
}

// windowFor derives the window name, counter key, window start, and the next
// boundary for the given cadence, all in UTC.
func windowFor(cadence accounts.QuotaCadence, now time.Time) (window, key string, start, reset time.Time) {
	switch cadence {
	case accounts.CadenceDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return "day", "messages:day:" + start.Format("2006-01-02"), start, start.AddDate(0, 0, 1)
	default:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return "month", "messages:month:" + start.Format("2006-01"), start, start.AddDate(0, 1, 0)
	}
}
