package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"

	"github.com/corvusHold/courier/internal/config"
	"github.com/corvusHold/courier/internal/db"
	"github.com/corvusHold/courier/internal/logger"
	"github.com/corvusHold/courier/internal/messages"
	"github.com/corvusHold/courier/internal/metrics"
	"github.com/corvusHold/courier/internal/platform/validation"
	"github.com/corvusHold/courier/internal/queue"
	srepo "github.com/corvusHold/courier/internal/settings/repository"
	ssvc "github.com/corvusHold/courier/internal/settings/service"
	"github.com/corvusHold/courier/internal/tracking"
	tsvc "github.com/corvusHold/courier/internal/transport/service"
	"github.com/corvusHold/courier/internal/version"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.AppEnv)
	log.Info().Str("addr", cfg.AppAddr).Str("version", version.Version).Msg("starting api server")

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	// Init Postgres
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid DATABASE_URL")
	}
	pgPool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pg pool")
	}
	defer pgPool.Close()

	// Init Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	// Init RabbitMQ
	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to amqp broker")
	}
	defer amqpConn.Close()
	publisher, err := queue.NewAMQPPublisher(amqpConn, cfg.DispatchQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to declare dispatch queue")
	}
	defer publisher.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middlewares
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Secure())
	e.Use(metrics.HTTPMiddleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Validator
	e.Validator = validation.New()

	// Per-company SMTP overrides, the public base URL, and tracking rate
	// limits all resolve through settings.
	settings := ssvc.New(srepo.New(pgPool))
	sender := tsvc.NewSMTP(settings, cfg)

	// Register domain routes via factories
	messages.Register(e, pgPool, sender, publisher, settings, cfg, log)
	tracking.Register(e, pgPool, redisClient, settings, cfg, log)

	// Health endpoint pings DB and Redis
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 500*time.Millisecond)
		defer cancel()

		dbStatus := "ok"
		if err := pgPool.Ping(ctx); err != nil {
			dbStatus = "down"
		}
		metrics.SetDBUp(dbStatus == "ok")

		cacheStatus := "ok"
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			cacheStatus = "down"
		}
		metrics.SetRedisUp(cacheStatus == "ok")

		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
			"db":      dbStatus,
			"cache":   cacheStatus,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start server
	go func() {
		if err := e.Start(cfg.AppAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
