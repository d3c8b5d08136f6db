package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/corvusHold/courier/internal/messages/domain"
)

type PostgresRepository struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *PostgresRepository { return &PostgresRepository{pool: pool} }

func toPgUUID(u uuid.UUID) pgtype.UUID { return pgtype.UUID{Bytes: u, Valid: true} }

func toPgTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func (r *PostgresRepository) CreateWithRecipients(ctx context.Context, m *domain.Message, rcpts []domain.MessageRecipient) error {
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO messages
		   (id, company_id, domain_id, from_email, from_name, reply_to, subject,
		    html_body, text_body, headers, track_opens, track_clicks,
		    final_state, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		toPgUUID(m.ID), toPgUUID(m.CompanyID), toPgUUID(m.DomainID),
		m.FromEmail, m.FromName, m.ReplyTo, m.Subject,
		m.HTMLBody, m.TextBody, headers, m.TrackOpens, m.TrackClicks,
		string(m.FinalState), pgtype.Timestamptz{Time: m.CreatedAt.UTC(), Valid: true},
	)
	if err != nil {
		return err
	}

	for _, a := range m.Attachments {
		_, err = tx.Exec(ctx,
			`INSERT INTO message_attachments (id, message_id, filename, content_type, content)
			 VALUES ($1,$2,$3,$4,$5)`,
			toPgUUID(uuid.New()), toPgUUID(m.ID), a.Filename, a.ContentType, a.Content,
		)
		if err != nil {
			return err
		}
	}

	for _, rc := range rcpts {
		_, err = tx.Exec(ctx,
			`INSERT INTO message_recipients (id, message_id, kind, email, track_token, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			toPgUUID(rc.ID), toPgUUID(rc.MessageID), string(rc.Kind), rc.Email, rc.TrackToken,
			pgtype.Timestamptz{Time: rc.CreatedAt.UTC(), Valid: true},
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET queued_at = $2 WHERE id = $1`,
		toPgUUID(id), pgtype.Timestamptz{Time: at.UTC(), Valid: true},
	)
	return err
}

func (r *PostgresRepository) Finalize(ctx context.Context, id uuid.UUID, state domain.FinalState, providerMessageID string, sentAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages
		 SET final_state = $2,
		     provider_message_id = NULLIF($3, ''),
		     sent_at = $4
		 WHERE id = $1`,
		toPgUUID(id), string(state), providerMessageID, toPgTimePtr(sentAt),
	)
	return err
}
