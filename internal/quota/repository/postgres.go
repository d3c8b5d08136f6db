package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *PostgresRepository { return &PostgresRepository{pool: pool} }

// Consume performs the rotate-and-increment as one upsert inside a
// transaction. The upsert takes a row lock, so the RETURNING value is the
// post-increment truth; if it exceeds the limit we roll the transaction back
// and the increment never lands.
func (r *PostgresRepository) Consume(ctx context.Context, companyID uuid.UUID, key string, windowStart time.Time, units, limit int64) (int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	var consumed int64
	err = tx.QueryRow(ctx,
		`INSERT INTO rate_limit_counters (company_id, window_key, window_start, consumed, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (company_id, window_key) DO UPDATE SET
		   consumed = CASE
		     WHEN rate_limit_counters.window_start < EXCLUDED.window_start THEN EXCLUDED.consumed
		     ELSE rate_limit_counters.consumed + EXCLUDED.consumed
		   END,
		   window_start = GREATEST(rate_limit_counters.window_start, EXCLUDED.window_start),
		   updated_at = now()
		 RETURNING consumed`,
		pgtype.UUID{Bytes: companyID, Valid: true}, key,
		pgtype.Timestamptz{Time: windowStart.UTC(), Valid: true}, units,
	).Scan(&consumed)
	if err != nil {
		return 0, false, err
	}

	if limit > 0 && consumed > limit {
		// leave the rollback to the deferred call
		return consumed, false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return consumed, true, nil
}
