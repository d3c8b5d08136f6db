package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	accounts "github.com/corvusHold/courier/internal/accounts/domain"
)

// ExceededError is returned when a send would push a company past its plan's
// window limit. It carries everything a client needs to retry sensibly.
type ExceededError struct {
	Window    string    `json:"window"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: window=%s limit=%d remaining=%d reset_at=%s",
		e.Window, e.Limit, e.Remaining, e.ResetAt.UTC().Format(time.RFC3339))
}

// Counter mirrors one rate_limit_counters row. Rows are retained across
// windows for audit; at most one row is live per (company, window key).
type Counter struct {
	CompanyID   uuid.UUID
	WindowKey   string
	WindowStart time.Time
	Consumed    int64
	UpdatedAt   time.Time
}

// Repository persists window counters. Consume must be atomic: rotate a stale
// row, add units, and report the post-increment total in a single step so two
// concurrent requests can never both observe an under-limit count.
type Repository interface {
	// Consume adds units to the counter for (companyID, key), rotating the row
	// if its window_start predates windowStart. It returns the post-increment
	// consumed total. When the total would exceed limit the increment is rolled
	// back and allowed is false. A limit <= 0 never rejects.
	Consume(ctx context.Context, companyID uuid.UUID, key string, windowStart time.Time, units, limit int64) (consumed int64, allowed bool, err error)
}

// Service decides whether units more message sends fit in the company's
// current window and consumes them if so.
type Service interface {
	Consume(ctx context.Context, companyID uuid.UUID, plan accounts.Plan, units int64) error
}
