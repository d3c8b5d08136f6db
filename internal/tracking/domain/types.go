package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates engagement signals ingested from the public endpoints.
type EventType string

const (
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventUnsubscribed EventType = "unsubscribed"
)

// Event is one engagement signal. Append-only; never mutated or deleted.
type Event struct {
	ID          uuid.UUID
	MessageID   uuid.UUID
	RecipientID uuid.UUID
	Type        EventType
	Meta        map[string]string
	CreatedAt   time.Time
}

// RecipientRef is the (message, recipient) pair a track token resolves to.
type RecipientRef struct {
	MessageID   uuid.UUID
	RecipientID uuid.UUID
}

// Repository resolves tokens and appends events.
type Repository interface {
	// ResolveToken returns the recipient the token belongs to. found is false
	// for unknown tokens; that is not an error.
	ResolveToken(ctx context.Context, token string) (ref RecipientRef, found bool, err error)
	AppendEvent(ctx context.Context, e Event) error
}

// DedupGate is a conditional-set-with-TTL primitive collapsing duplicate
// signals inside a window. Implementations must be atomic; callers treat an
// error as "gate unavailable" and fail open.
type DedupGate interface {
	// First reports whether key is the first occurrence within ttl.
	First(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Publisher fans recorded events out to live consumers (dashboards).
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Service records engagement signals. Recording is best-effort by contract:
// it reports what happened but the HTTP layer never surfaces a failure.
type Service interface {
	Record(ctx context.Context, token string, typ EventType, meta map[string]string) (recorded bool)
}
