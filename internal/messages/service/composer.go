package service

import (
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/corvusHold/courier/internal/messages/domain"
)

// headerAllowList is the fixed set of caller-supplied headers we pass through
// to the wire. Everything else is dropped at validation time.
var headerAllowList = map[string]struct{}{
	"List-Unsubscribe":         {},
	"List-Unsubscribe-Post":    {},
	"Precedence":               {},
	"In-Reply-To":              {},
	"References":               {},
	"X-Entity-Ref-Id":          {},
	"X-Auto-Response-Suppress": {},
	"X-Campaign-Id":            {},
	"X-Tag":                    {},
}

// compose validates the request and builds the Message aggregate plus its
// recipient rows. No side effects; any failure aborts before persistence.
func compose(companyID, domainID uuid.UUID, req domain.SendRequest, now time.Time) (*domain.Message, []domain.MessageRecipient, error) {
	from, err := mail.ParseAddress(req.FromEmail)
	if err != nil {
		return nil, nil, domain.Invalid("invalid sender address %q", req.FromEmail)
	}
	if req.ReplyTo != "" {
		if _, err := mail.ParseAddress(req.ReplyTo); err != nil {
			return nil, nil, domain.Invalid("invalid reply-to address %q", req.ReplyTo)
		}
	}

	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		if strings.ContainsAny(k, "\r\n") || strings.ContainsAny(v, "\r\n") {
			return nil, nil, domain.Invalid("header %q contains line breaks", k)
		}
		canonical := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k))
		if _, ok := headerAllowList[canonical]; !ok {
			return nil, nil, domain.Invalid("header %q is not allowed", k)
		}
		headers[canonical] = v
	}

	for _, a := range req.Attachments {
		if strings.TrimSpace(a.Filename) == "" {
			return nil, nil, domain.Invalid("attachment is missing a filename")
		}
		if len(a.Content) == 0 {
			return nil, nil, domain.Invalid("attachment %q has no content", a.Filename)
		}
	}

	msgID := uuid.New()
	recipients, err := normalizeRecipients(msgID, req, now)
	if err != nil {
		return nil, nil, err
	}
	if len(recipients) == 0 {
		return nil, nil, domain.Invalid("at least one recipient is required")
	}

	// Tracking defaults to enabled unless the caller explicitly disabled it.
	trackOpens := req.TrackOpens == nil || *req.TrackOpens
	trackClicks := req.TrackClicks == nil || *req.TrackClicks

	state := domain.StateQueued
	if req.DryRun {
		state = domain.StatePreview
	}

	m := &domain.Message{
		ID:          msgID,
		CompanyID:   companyID,
		DomainID:    domainID,
		FromEmail:   strings.ToLower(from.Address),
		FromName:    firstNonEmpty(req.FromName, from.Name),
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		HTMLBody:    req.HTML,
		TextBody:    req.Text,
		Headers:     headers,
		Attachments: req.Attachments,
		TrackOpens:  trackOpens,
		TrackClicks: trackClicks,
		FinalState:  state,
		CreatedAt:   now,
	}
	return m, recipients, nil
}

// normalizeRecipients validates and de-duplicates addresses across all three
// lists ("to" wins over "cc" wins over "bcc"), minting one independent track
// token per surviving address. Name-addr forms ("Bob <bob@example.com>")
// collapse to the bare mailbox so the stored email is always a valid SMTP
// RCPT argument.
func normalizeRecipients(msgID uuid.UUID, req domain.SendRequest, now time.Time) ([]domain.MessageRecipient, error) {
	seen := make(map[string]struct{})
	var out []domain.MessageRecipient

	add := func(kind domain.RecipientKind, addrs []string) error {
		for _, raw := range addrs {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			parsed, err := mail.ParseAddress(strings.TrimSpace(raw))
			if err != nil {
				return domain.Invalid("invalid recipient address %q", raw)
			}
			addr := strings.ToLower(parsed.Address)
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			token, err := domain.NewTrackToken()
			if err != nil {
				return err
			}
			out = append(out, domain.MessageRecipient{
				ID:         uuid.New(),
				MessageID:  msgID,
				Kind:       kind,
				Email:      addr,
				TrackToken: token,
				CreatedAt:  now,
			})
		}
		return nil
	}

	if err := add(domain.KindTo, req.To); err != nil {
		return nil, err
	}
	if err := add(domain.KindCC, req.CC); err != nil {
		return nil, err
	}
	if err := add(domain.KindBCC, req.BCC); err != nil {
		return nil, err
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
