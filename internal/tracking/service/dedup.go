package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/corvusHold/courier/internal/tracking/domain"
)

// redisGate implements the dedup gate with SET NX PX, the one place in the
// engine where true mutual exclusion holds. When Redis is unreachable the
// caller fails open and records anyway; duplicates beat lost events.
type redisGate struct{ rc *redis.Client }

var _ domain.DedupGate = (*redisGate)(nil)

func NewRedisGate(rc *redis.Client) domain.DedupGate { return &redisGate{rc: rc} }

func (g *redisGate) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.rc.SetNX(ctx, "trk:dedup:"+key, 1, ttl).Result()
}

// DedupKey builds the gate key for a (token, type, url) triple. The URL is
// hashed so destination length never matters to the store.
func DedupKey(token string, typ domain.EventType, url string) string {
	if url == "" {
		return token + ":" + string(typ)
	}
	sum := sha256.Sum256([]byte(url))
	return token + ":" + string(typ) + ":" + hex.EncodeToString(sum[:8])
}
