package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	domain "github.com/corvusHold/courier/internal/tracking/domain"
)

// EventsChannel is the pub/sub channel dashboards subscribe to for live
// engagement events.
const EventsChannel = "courier:events"

type wireEvent struct {
	ID          string            `json:"id"`
	MessageID   string            `json:"message_id"`
	RecipientID string            `json:"recipient_id"`
	Type        string            `json:"type"`
	Meta        map[string]string `json:"meta,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RedisPublisher fans events out over Redis pub/sub.
type RedisPublisher struct{ rc *redis.Client }

var _ domain.Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(rc *redis.Client) *RedisPublisher { return &RedisPublisher{rc: rc} }

func (p *RedisPublisher) Publish(ctx context.Context, e domain.Event) error {
	body, err := json.Marshal(wireEvent{
		ID:          e.ID.String(),
		MessageID:   e.MessageID.String(),
		RecipientID: e.RecipientID.String(),
		Type:        string(e.Type),
		Meta:        e.Meta,
		CreatedAt:   e.CreatedAt,
	})
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, EventsChannel, body).Err()
}

// LogPublisher is a Publisher that only logs, useful in development and tests.
type LogPublisher struct{}

var _ domain.Publisher = (*LogPublisher)(nil)

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (l *LogPublisher) Publish(ctx context.Context, e domain.Event) error {
	log.Ctx(ctx).Info().
		Str("type", string(e.Type)).
		Str("message_id", e.MessageID.String()).
		Str("recipient_id", e.RecipientID.String()).
		Fields(map[string]any{"meta": e.Meta}).
		Time("ts", e.CreatedAt).
		Msg("tracking event")
	return nil
}
