package messages

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	accrepo "github.com/corvusHold/courier/internal/accounts/repository"
	accsvc "github.com/corvusHold/courier/internal/accounts/service"
	amw "github.com/corvusHold/courier/internal/auth/middleware"
	"github.com/corvusHold/courier/internal/config"
	ctrl "github.com/corvusHold/courier/internal/messages/controller"
	repo "github.com/corvusHold/courier/internal/messages/repository"
	svc "github.com/corvusHold/courier/internal/messages/service"
	"github.com/corvusHold/courier/internal/queue"
	qrepo "github.com/corvusHold/courier/internal/quota/repository"
	qsvc "github.com/corvusHold/courier/internal/quota/service"
	sdomain "github.com/corvusHold/courier/internal/settings/domain"
	transport "github.com/corvusHold/courier/internal/transport/domain"
)

// Register wires the dispatch engine and registers its HTTP routes.
func Register(e *echo.Echo, pg *pgxpool.Pool, sender transport.Sender, publisher queue.Publisher, settings sdomain.Service, cfg config.Config, log zerolog.Logger) {
	// A stored base URL override wins over the configured one when the
	// request carries no forwarding headers.
	cfg.PublicBaseURL = publicBaseURL(context.Background(), settings, cfg.PublicBaseURL)

	acc := accsvc.New(accrepo.New(pg))
	q := qsvc.New(qrepo.New(pg), int64(cfg.StarterDailyLimit))
	s := svc.New(repo.New(pg), acc, q, sender, publisher, cfg.DispatchWorkers, log)
	c := ctrl.New(s, cfg)
	c.Register(e, amw.NewJWT(cfg))
}

func publicBaseURL(ctx context.Context, settings sdomain.Service, def string) string {
	base, _ := settings.GetString(ctx, sdomain.KeyPublicBaseURL, nil, def)
	return base
}
