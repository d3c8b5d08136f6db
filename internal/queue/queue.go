package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobAttachment is a decoded attachment carried inside a job payload.
// Content is base64-encoded on the wire by encoding/json.
type JobAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// JobEnvelope addresses a single recipient. Headers include the allow-listed
// message headers plus the debug headers carrying the recipient's track token
// and tracking flags.
type JobEnvelope struct {
	RecipientID uuid.UUID         `json:"recipient_id"`
	Kind        string            `json:"kind"`
	To          string            `json:"to"`
	Headers     map[string]string `json:"headers"`
}

// JobPayload is the fully rendered content for one recipient. HTML already
// carries that recipient's tracking instrumentation.
type JobPayload struct {
	From        string          `json:"from"`
	FromName    string          `json:"fromName,omitempty"`
	ReplyTo     string          `json:"replyTo,omitempty"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text,omitempty"`
	HTML        string          `json:"html,omitempty"`
	Attachments []JobAttachment `json:"attachments,omitempty"`
}

// Job is the per-recipient unit of work pushed to the dispatch queue.
type Job struct {
	MessageID uuid.UUID   `json:"message_id"`
	CompanyID uuid.UUID   `json:"company_id"`
	CreatedAt time.Time   `json:"created_at"`
	Envelope  JobEnvelope `json:"envelope"`
	Payload   JobPayload  `json:"payload"`
}

// Publisher pushes jobs to the external durable work queue.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}
