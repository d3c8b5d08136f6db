package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/corvusHold/courier/internal/metrics"
	domain "github.com/corvusHold/courier/internal/tracking/domain"
)

type service struct {
	repo     domain.Repository
	gate     domain.DedupGate
	pub      domain.Publisher
	dedupTTL time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// New builds the event collector service. dedupTTL is the window within
// which repeated identical signals collapse into one event.
func New(repo domain.Repository, gate domain.DedupGate, pub domain.Publisher, dedupTTL time.Duration, log zerolog.Logger) domain.Service {
	return &service{repo: repo, gate: gate, pub: pub, dedupTTL: dedupTTL, log: log, now: time.Now}
}

// Record resolves the token and appends the event. Every failure path is
// swallowed: the caller's user-facing response never depends on backend
// health. Unknown tokens are a silent no-op.
func (s *service) Record(ctx context.Context, token string, typ domain.EventType, meta map[string]string) bool {
	ref, found, err := s.repo.ResolveToken(ctx, token)
	if err != nil {
		s.log.Error().Err(err).Str("type", string(typ)).Msg("token lookup failed")
		metrics.IncTrackingEvent(string(typ), "error")
		return false
	}
	if !found {
		metrics.IncTrackingEvent(string(typ), "unknown_token")
		return false
	}

	first, err := s.gate.First(ctx, DedupKey(token, typ, meta["url"]), s.dedupTTL)
	if err != nil {
		// Gate unavailable: fail open and record. Duplicates are the
		// documented degraded mode, dropped events are not.
		s.log.Warn().Err(err).Msg("dedup gate unavailable, recording anyway")
	} else if !first {
		metrics.IncTrackingEvent(string(typ), "duplicate")
		return false
	}

	e := domain.Event{
		ID:          uuid.New(),
		MessageID:   ref.MessageID,
		RecipientID: ref.RecipientID,
		Type:        typ,
		Meta:        meta,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		s.log.Error().Err(err).Str("type", string(typ)).Msg("event append failed")
		metrics.IncTrackingEvent(string(typ), "error")
		return false
	}
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Msg("event fan-out failed")
	}
	metrics.IncTrackingEvent(string(typ), "recorded")
	return true
}
