package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/corvusHold/courier/internal/tracking/domain"
)

type PostgresRepository struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *PostgresRepository { return &PostgresRepository{pool: pool} }

func (r *PostgresRepository) ResolveToken(ctx context.Context, token string) (domain.RecipientRef, bool, error) {
	var mid, rid pgtype.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT message_id, id FROM message_recipients WHERE track_token = $1`,
		token,
	).Scan(&mid, &rid)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecipientRef{}, false, nil
	}
	if err != nil {
		return domain.RecipientRef{}, false, err
	}
	return domain.RecipientRef{
		MessageID:   uuid.UUID(mid.Bytes),
		RecipientID: uuid.UUID(rid.Bytes),
	}, true, nil
}

func (r *PostgresRepository) AppendEvent(ctx context.Context, e domain.Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO message_events (id, message_id, recipient_id, type, meta, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		pgtype.UUID{Bytes: e.ID, Valid: true},
		pgtype.UUID{Bytes: e.MessageID, Valid: true},
		pgtype.UUID{Bytes: e.RecipientID, Valid: true},
		string(e.Type), meta,
		pgtype.Timestamptz{Time: e.CreatedAt.UTC(), Valid: true},
	)
	return err
}
