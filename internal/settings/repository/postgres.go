package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *PostgresRepository { return &PostgresRepository{pool: pool} }

func toPgUUIDPtr(u *uuid.UUID) pgtype.UUID {
	if u == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *u, Valid: true}
}

func (r *PostgresRepository) Get(ctx context.Context, key string, companyID *uuid.UUID) (string, bool, error) {
	var value string
	if companyID != nil {
		err := r.pool.QueryRow(ctx,
			`SELECT value FROM app_settings WHERE key = $1 AND company_id = $2`,
			key, toPgUUIDPtr(companyID),
		).Scan(&value)
		if err == nil {
			return value, true, nil
		}
		if err != pgx.ErrNoRows {
			return "", false, err
		}
	}
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM app_settings WHERE key = $1 AND company_id IS NULL`,
		key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, key string, companyID *uuid.UUID, value string, secret bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO app_settings (id, company_id, key, value, is_secret)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (company_id, key) DO UPDATE SET value = EXCLUDED.value, is_secret = EXCLUDED.is_secret`,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, toPgUUIDPtr(companyID), key, value, secret,
	)
	return err
}
