package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	domain "github.com/corvusHold/courier/internal/messages/domain"
	"github.com/corvusHold/courier/internal/metrics"
	"github.com/corvusHold/courier/internal/queue"
	"github.com/corvusHold/courier/internal/tracking/rewrite"
	transport "github.com/corvusHold/courier/internal/transport/domain"
)

// Debug headers stamped on every outgoing envelope; the queue consumer and
// support tooling use them to tie a delivery back to its recipient row.
const (
	headerTrackToken  = "X-Courier-Track-Token"
	headerTrackOpens  = "X-Courier-Track-Opens"
	headerTrackClicks = "X-Courier-Track-Clicks"
)

// preview returns the rendered envelope without touching transport or queue.
// Bodies are not rewritten per recipient: no delivery happens, so no token
// ever needs to resolve.
func (s *service) preview(msg *domain.Message, rcpts []domain.MessageRecipient) (*domain.SendResult, error) {
	metrics.IncDispatchOutcome("preview", string(domain.StatePreview))
	return &domain.SendResult{
		Message:     msg,
		Recipients:  rcpts,
		PreviewHTML: msg.HTMLBody,
		PreviewText: msg.TextBody,
	}, nil
}

// dispatchQueued pushes one independent job per recipient to the work queue.
// Any push failure fails the whole message; this subsystem does not retry.
func (s *service) dispatchQueued(ctx context.Context, msg *domain.Message, rcpts []domain.MessageRecipient, baseURL string) (*domain.SendResult, error) {
	for _, rc := range rcpts {
		job := queue.Job{
			MessageID: msg.ID,
			CompanyID: msg.CompanyID,
			CreatedAt: msg.CreatedAt,
			Envelope: queue.JobEnvelope{
				RecipientID: rc.ID,
				Kind:        string(rc.Kind),
				To:          rc.Email,
				Headers:     envelopeHeaders(msg, rc),
			},
			Payload: queue.JobPayload{
				From:        msg.FromEmail,
				FromName:    msg.FromName,
				ReplyTo:     msg.ReplyTo,
				Subject:     msg.Subject,
				Text:        msg.TextBody,
				HTML:        rewrite.Apply(msg.HTMLBody, baseURL, rc.TrackToken, msg.TrackOpens, msg.TrackClicks),
				Attachments: jobAttachments(msg.Attachments),
			},
		}
		if err := s.publisher.Publish(ctx, job); err != nil {
			metrics.IncQueuePublish(false)
			metrics.IncDispatchOutcome("queued", string(domain.StateQueueFailed))
			s.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("queue publish failed")
			if ferr := s.repo.Finalize(ctx, msg.ID, domain.StateQueueFailed, "", nil); ferr != nil {
				s.log.Error().Err(ferr).Str("message_id", msg.ID.String()).Msg("failed to record queue_failed state")
			}
			msg.FinalState = domain.StateQueueFailed
			return nil, &domain.ErrQueueUnavailable{Cause: err}
		}
		metrics.IncQueuePublish(true)
	}

	queuedAt := s.now().UTC()
	if err := s.repo.MarkQueued(ctx, msg.ID, queuedAt); err != nil {
		return nil, err
	}
	msg.QueuedAt = &queuedAt
	metrics.IncDispatchOutcome("queued", string(domain.StateQueued))
	return &domain.SendResult{Message: msg, Recipients: rcpts}, nil
}

type sendOutcome struct {
	providerID string
	errMsg     string
}

// dispatchImmediate fans deliveries out over a bounded worker pool and joins
// the results before computing the aggregate state, so one slow recipient
// no longer stalls the rest while individual failures stay tolerated.
func (s *service) dispatchImmediate(ctx context.Context, msg *domain.Message, rcpts []domain.MessageRecipient, baseURL string) (*domain.SendResult, error) {
	outcomes := make([]sendOutcome, len(rcpts))

	idxCh := make(chan int)
	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(rcpts) {
		workers = len(rcpts)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				rc := rcpts[i]
				env := transport.Envelope{
					From:        msg.FromEmail,
					FromName:    msg.FromName,
					ReplyTo:     msg.ReplyTo,
					To:          rc.Email,
					Subject:     msg.Subject,
					TextBody:    msg.TextBody,
					HTMLBody:    rewrite.Apply(msg.HTMLBody, baseURL, rc.TrackToken, msg.TrackOpens, msg.TrackClicks),
					Headers:     envelopeHeaders(msg, rc),
					Attachments: transportAttachments(msg.Attachments),
				}
				providerID, err := s.sender.Send(ctx, msg.CompanyID, env)
				if err != nil {
					outcomes[i] = sendOutcome{errMsg: err.Error()}
					metrics.IncRecipientSend(false)
					continue
				}
				outcomes[i] = sendOutcome{providerID: providerID}
				metrics.IncRecipientSend(true)
			}
		}()
	}
	for i := range rcpts {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	errs := make(map[string]string)
	var lastProviderID string
	successes := 0
	for i, oc := range outcomes {
		if oc.errMsg != "" {
			errs[rcpts[i].Email] = oc.errMsg
			continue
		}
		successes++
		lastProviderID = oc.providerID
	}

	state := domain.StateSent
	switch {
	case successes == 0:
		state = domain.StateFailed
	case len(errs) > 0:
		state = domain.StatePartial
	}

	var sentAt *time.Time
	if successes > 0 {
		t := s.now().UTC()
		sentAt = &t
	}
	if err := s.repo.Finalize(ctx, msg.ID, state, lastProviderID, sentAt); err != nil {
		return nil, err
	}
	msg.FinalState = state
	msg.ProviderMessageID = lastProviderID
	msg.SentAt = sentAt

	metrics.IncDispatchOutcome("immediate", string(state))
	return &domain.SendResult{Message: msg, Recipients: rcpts, Errors: errs}, nil
}

func envelopeHeaders(msg *domain.Message, rc domain.MessageRecipient) map[string]string {
	h := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		h[k] = v
	}
	h[headerTrackToken] = rc.TrackToken
	h[headerTrackOpens] = strconv.FormatBool(msg.TrackOpens)
	h[headerTrackClicks] = strconv.FormatBool(msg.TrackClicks)
	return h
}

func jobAttachments(in []domain.Attachment) []queue.JobAttachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]queue.JobAttachment, len(in))
	for i, a := range in {
		out[i] = queue.JobAttachment{Filename: a.Filename, ContentType: a.ContentType, Content: a.Content}
	}
	return out
}

func transportAttachments(in []domain.Attachment) []transport.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]transport.Attachment, len(in))
	for i, a := range in {
		out[i] = transport.Attachment{Filename: a.Filename, ContentType: a.ContentType, Content: a.Content}
	}
	return out
}
