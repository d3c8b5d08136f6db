package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/corvusHold/courier/internal/config"
	"github.com/corvusHold/courier/internal/logger"
	"github.com/corvusHold/courier/internal/queue"
	srepo "github.com/corvusHold/courier/internal/settings/repository"
	ssvc "github.com/corvusHold/courier/internal/settings/service"
	tdomain "github.com/corvusHold/courier/internal/tracking/domain"
	trepo "github.com/corvusHold/courier/internal/tracking/repository"
	transport "github.com/corvusHold/courier/internal/transport/domain"
	tsvc "github.com/corvusHold/courier/internal/transport/service"
)

const (
	maxRedeliveries  = 3
	retryCountHeader = "x-retry-count"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.AppEnv)
	log.Info().Str("queue", cfg.DispatchQueue).Msg("starting dispatch worker")

	pgPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pg pool")
	}
	defer pgPool.Close()

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to amqp broker")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(cfg.DispatchQueue, true, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to declare queue")
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to register consumer")
	}

	settings := ssvc.New(srepo.New(pgPool))
	sender := tsvc.NewSMTP(settings, cfg)
	events := trepo.New(pgPool)

	go func() {
		for d := range deliveries {
			var job queue.Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				log.Error().Err(err).Msg("dropping malformed job")
				_ = d.Ack(false)
				continue
			}

			providerID, err := deliver(context.Background(), sender, job)
			if err != nil {
				attempt := redeliveryCount(d)
				log.Warn().Err(err).
					Str("message_id", job.MessageID.String()).
					Str("to", job.Envelope.To).
					Int("attempt", attempt+1).
					Msg("delivery failed")
				if attempt < maxRedeliveries {
					if rerr := requeue(ch, q.Name, d, attempt+1); rerr != nil {
						log.Error().Err(rerr).Msg("unable to requeue job")
						_ = d.Nack(false, true)
						continue
					}
					_ = d.Ack(false)
					continue
				}
				if rerr := recordOutcome(context.Background(), events, job, "delivery_failed", err.Error()); rerr != nil {
					log.Error().Err(rerr).Msg("unable to record delivery outcome")
				}
				_ = d.Ack(false)
				continue
			}
			if rerr := recordOutcome(context.Background(), events, job, "delivered", providerID); rerr != nil {
				log.Error().Err(rerr).Msg("unable to record delivery outcome")
			}
			_ = d.Ack(false)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("worker stopped")
}

func deliver(ctx context.Context, sender transport.Sender, job queue.Job) (string, error) {
	env := transport.Envelope{
		From:        job.Payload.From,
		FromName:    job.Payload.FromName,
		ReplyTo:     job.Payload.ReplyTo,
		To:          job.Envelope.To,
		Subject:     job.Payload.Subject,
		TextBody:    job.Payload.Text,
		HTMLBody:    job.Payload.HTML,
		Headers:     job.Envelope.Headers,
		Attachments: envelopeAttachments(job.Payload.Attachments),
	}
	return sender.Send(ctx, job.CompanyID, env)
}

// recordOutcome appends the delivery outcome as an event row; recipient rows
// themselves never mutate.
func recordOutcome(ctx context.Context, events tdomain.Repository, job queue.Job, outcome, detail string) error {
	return events.AppendEvent(ctx, tdomain.Event{
		ID:          uuid.New(),
		MessageID:   job.MessageID,
		RecipientID: job.Envelope.RecipientID,
		Type:        tdomain.EventType(outcome),
		Meta:        map[string]string{"detail": detail},
		CreatedAt:   time.Now().UTC(),
	})
}

// requeue republishes the failed job with an incremented retry counter and
// lets the caller ack the original. Nack with requeue would hand back the
// same delivery with no counter, so the bound lives in the header.
func requeue(ch *amqp.Channel, queueName string, d amqp.Delivery, attempt int) error {
	return ch.Publish(
		"",        // default exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryCountHeader: int32(attempt)},
			Body:         d.Body,
		},
	)
}

// redeliveryCount reads the retry counter stamped by requeue. A broker
// redelivery (consumer died before acking) carries no counter and counts as
// one prior attempt.
func redeliveryCount(d amqp.Delivery) int {
	switch n := d.Headers[retryCountHeader].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}
	if d.Redelivered {
		return 1
	}
	return 0
}

func envelopeAttachments(in []queue.JobAttachment) []transport.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]transport.Attachment, len(in))
	for i, a := range in {
		out[i] = transport.Attachment{Filename: a.Filename, ContentType: a.ContentType, Content: a.Content}
	}
	return out
}
