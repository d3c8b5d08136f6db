package tracking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/corvusHold/courier/internal/config"
	"github.com/corvusHold/courier/internal/platform/ratelimit"
	sdomain "github.com/corvusHold/courier/internal/settings/domain"
	ctrl "github.com/corvusHold/courier/internal/tracking/controller"
	repo "github.com/corvusHold/courier/internal/tracking/repository"
	svc "github.com/corvusHold/courier/internal/tracking/service"
)

// Defaults for the per-IP guard when no settings override is stored.
const (
	defaultTrackingLimit  = 600
	defaultTrackingWindow = time.Minute
)

// Register wires the event collector and registers the public tracking routes.
func Register(e *echo.Echo, pg *pgxpool.Pool, rc *redis.Client, settings sdomain.Service, cfg config.Config, log zerolog.Logger) {
	r := repo.New(pg)
	gate := svc.NewRedisGate(rc)
	pub := svc.NewRedisPublisher(rc)
	s := svc.New(r, gate, pub, cfg.EventDedupTTL, log)
	c := ctrl.New(s)

	// Per-IP guard on the unauthenticated surfaces. Shared store so limits
	// hold across instances; fails open when Redis is down.
	p := rateLimitPolicy(context.Background(), settings)
	log.Info().Int("limit", p.Limit).Dur("window", p.Window).Msg("tracking rate limit")
	rl := ratelimit.MiddlewareWithStore(p, ratelimit.NewRedisStore(rc))

	c.Register(e, rl)
}

// rateLimitPolicy resolves the guard through settings so operators can tune
// it without a redeploy. Lookup failures fall back to the defaults.
func rateLimitPolicy(ctx context.Context, settings sdomain.Service) ratelimit.Policy {
	limit, _ := settings.GetInt(ctx, sdomain.KeyRLTrackingLimit, nil, defaultTrackingLimit)
	window, _ := settings.GetDuration(ctx, sdomain.KeyRLTrackingWindow, nil, defaultTrackingWindow)
	return ratelimit.Policy{
		Name:   "tracking",
		Window: window,
		Limit:  limit,
		Key:    ratelimit.KeyIP("trk"),
	}
}
