package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service provides typed access to application/company settings with override.
type Service interface {
	GetString(ctx context.Context, key string, companyID *uuid.UUID, def string) (string, error)
	GetDuration(ctx context.Context, key string, companyID *uuid.UUID, def time.Duration) (time.Duration, error)
	GetInt(ctx context.Context, key string, companyID *uuid.UUID, def int) (int, error)
}

// Repository abstracts storage of app settings.
type Repository interface {
	// Get returns (value, found, err) for an exact key and optional company.
	Get(ctx context.Context, key string, companyID *uuid.UUID) (string, bool, error)
	// Upsert stores a key for an optional company.
	Upsert(ctx context.Context, key string, companyID *uuid.UUID, value string, secret bool) error
}

// Common keys. Company-level overrides win over global values, global values
// win over config defaults.
const (
	KeyPublicBaseURL = "app.public_base_url"

	KeySMTPHost     = "smtp.host"
	KeySMTPPort     = "smtp.port"
	KeySMTPUsername = "smtp.username"
	KeySMTPPassword = "smtp.password"

	// Tracking endpoint rate limiting (per-IP). Windows use Go duration
	// strings (e.g. "1m"), limits are integers.
	KeyRLTrackingLimit  = "tracking.ratelimit.limit"
	KeyRLTrackingWindow = "tracking.ratelimit.window"
)
