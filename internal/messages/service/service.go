package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	accounts "github.com/corvusHold/courier/internal/accounts/domain"
	domain "github.com/corvusHold/courier/internal/messages/domain"
	"github.com/corvusHold/courier/internal/queue"
	quota "github.com/corvusHold/courier/internal/quota/domain"
	transport "github.com/corvusHold/courier/internal/transport/domain"
)

type service struct {
	repo      domain.Repository
	accounts  accounts.Service
	quota     quota.Service
	sender    transport.Sender
	publisher queue.Publisher
	workers   int
	log       zerolog.Logger
	now       func() time.Time
}

// New wires the dispatch engine. workers bounds the immediate-path fan-out.
func New(repo domain.Repository, acc accounts.Service, q quota.Service, sender transport.Sender, publisher queue.Publisher, workers int, log zerolog.Logger) domain.Service {
	if workers <= 0 {
		workers = 4
	}
	return &service{
		repo:      repo,
		accounts:  acc,
		quota:     q,
		sender:    sender,
		publisher: publisher,
		workers:   workers,
		log:       log,
		now:       time.Now,
	}
}

func (s *service) Send(ctx context.Context, companyID, domainID uuid.UUID, req domain.SendRequest) (*domain.SendResult, error) {
	co, _, plan, err := s.accounts.ResolveSendContext(ctx, companyID, domainID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg, rcpts, err := compose(companyID, domainID, req, now)
	if err != nil {
		return nil, err
	}

	// A dry run attempts no delivery, so it consumes nothing. Everything
	// else counts one unit per recipient, checked before any persistence.
	if !req.DryRun {
		if err := s.quota.Consume(ctx, co.ID, plan, int64(len(rcpts))); err != nil {
			return nil, err
		}
	}

	// Recipients (and their tokens) must be durable before any tracking URL
	// referencing them leaves the process.
	if err := s.repo.CreateWithRecipients(ctx, msg, rcpts); err != nil {
		return nil, err
	}

	switch {
	case req.DryRun:
		return s.preview(msg, rcpts)
	case req.Queue:
		return s.dispatchQueued(ctx, msg, rcpts, req.BaseURL)
	default:
		return s.dispatchImmediate(ctx, msg, rcpts, req.BaseURL)
	}
}
