package domain

import (
	"context"

	"github.com/google/uuid"
)

// Attachment is a fully decoded attachment ready for the wire.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Envelope is one deliverable leg: a single recipient with the body already
// rendered for that recipient (tracking links carry the recipient's token).
type Envelope struct {
	From        string
	FromName    string
	ReplyTo     string
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Headers     map[string]string
	Attachments []Attachment
}

// Sender is the pluggable delivery transport. companyID allows per-company
// routing/config; implementations return the provider's message id on success.
type Sender interface {
	Send(ctx context.Context, companyID uuid.UUID, env Envelope) (providerMessageID string, err error)
}
