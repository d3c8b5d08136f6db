package domain

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FinalState is the terminal state of a dispatch attempt. It is write-once
// per path: a preview message is never later sent, and a queued message's
// eventual sent/partial/failed state is owned by the queue consumer.
type FinalState string

const (
	StatePreview     FinalState = "preview"
	StateQueued      FinalState = "queued"
	StateSent        FinalState = "sent"
	StatePartial     FinalState = "partial"
	StateFailed      FinalState = "failed"
	StateQueueFailed FinalState = "queue_failed"
)

// RecipientKind distinguishes the three envelope legs.
type RecipientKind string

const (
	KindTo  RecipientKind = "to"
	KindCC  RecipientKind = "cc"
	KindBCC RecipientKind = "bcc"
)

// Attachment is one decoded attachment on a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one logical send request.
type Message struct {
	ID                uuid.UUID
	CompanyID         uuid.UUID
	DomainID          uuid.UUID
	FromEmail         string
	FromName          string
	ReplyTo           string
	Subject           string
	HTMLBody          string
	TextBody          string
	Headers           map[string]string
	Attachments       []Attachment
	TrackOpens        bool
	TrackClicks       bool
	FinalState        FinalState
	ProviderMessageID string
	CreatedAt         time.Time
	QueuedAt          *time.Time
	SentAt            *time.Time
}

// MessageRecipient is one deliverable envelope leg. TrackToken is the sole
// lookup key for the public tracking endpoints, so it must be globally unique
// and never derived from the address.
type MessageRecipient struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	Kind       RecipientKind
	Email      string
	TrackToken string
	CreatedAt  time.Time
}

// NewTrackToken returns a fresh 256-bit capability token, base64url encoded.
func NewTrackToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// SendRequest is a validated-shape send request as handed to the composer.
// Tracking pointers are nil when the client left the toggle unset; unset
// means enabled.
type SendRequest struct {
	FromEmail   string
	FromName    string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	To          []string
	CC          []string
	BCC         []string
	Headers     map[string]string
	TrackOpens  *bool
	TrackClicks *bool
	Attachments []Attachment
	DryRun      bool
	Queue       bool
	// BaseURL is the tracking-link base derived from the inbound request's
	// forwarded headers (falling back to configuration).
	BaseURL string
}

// SendResult aggregates a dispatch outcome for the HTTP layer.
type SendResult struct {
	Message    *Message
	Recipients []MessageRecipient
	// Errors maps recipient address to the transport error string for the
	// immediate path. Empty on full success.
	Errors map[string]string
	// PreviewHTML/PreviewText are only set on the preview path.
	PreviewHTML string
	PreviewText string
}

// ValidationError marks malformed input the client must correct. The HTTP
// layer maps it to 422.
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return e.Reason }

func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ErrQueueUnavailable marks a whole-message queue push failure; the HTTP
// layer maps it to 503 and the message lands in state queue_failed.
type ErrQueueUnavailable struct{ Cause error }

func (e *ErrQueueUnavailable) Error() string { return "queue unavailable: " + e.Cause.Error() }
func (e *ErrQueueUnavailable) Unwrap() error { return e.Cause }

// Repository persists messages and their recipients.
type Repository interface {
	// CreateWithRecipients writes the message and all recipient rows in one
	// transaction. Tokens must be queryable before any delivery attempt.
	CreateWithRecipients(ctx context.Context, m *Message, rcpts []MessageRecipient) error
	// MarkQueued stamps queued_at once every job has been pushed.
	MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) error
	// Finalize records the terminal state of a synchronous dispatch, retaining
	// the last successful provider message id when there is one.
	Finalize(ctx context.Context, id uuid.UUID, state FinalState, providerMessageID string, sentAt *time.Time) error
}

// Service accepts send requests and drives them to a terminal state.
type Service interface {
	Send(ctx context.Context, companyID, domainID uuid.UUID, req SendRequest) (*SendResult, error)
}
