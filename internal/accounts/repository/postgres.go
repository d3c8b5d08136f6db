package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/corvusHold/courier/internal/accounts/domain"
)

type PostgresRepository struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *PostgresRepository { return &PostgresRepository{pool: pool} }

func toPgUUID(u uuid.UUID) pgtype.UUID { return pgtype.UUID{Bytes: u, Valid: true} }

func (r *PostgresRepository) GetCompany(ctx context.Context, id uuid.UUID) (domain.Company, error) {
	var c domain.Company
	var cid, pid pgtype.UUID
	var created pgtype.Timestamptz
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, plan_id, is_active, created_at FROM companies WHERE id = $1`,
		toPgUUID(id),
	).Scan(&cid, &c.Name, &pid, &c.IsActive, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Company{}, domain.ErrCompanyNotFound
	}
	if err != nil {
		return domain.Company{}, err
	}
	c.ID = uuid.UUID(cid.Bytes)
	c.PlanID = uuid.UUID(pid.Bytes)
	c.CreatedAt = created.Time
	return c, nil
}

func (r *PostgresRepository) GetDomain(ctx context.Context, id uuid.UUID) (domain.Domain, error) {
	var d domain.Domain
	var did, cid pgtype.UUID
	var created pgtype.Timestamptz
	err := r.pool.QueryRow(ctx,
		`SELECT id, company_id, name, verified, created_at FROM domains WHERE id = $1`,
		toPgUUID(id),
	).Scan(&did, &cid, &d.Name, &d.Verified, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Domain{}, domain.ErrDomainNotFound
	}
	if err != nil {
		return domain.Domain{}, err
	}
	d.ID = uuid.UUID(did.Bytes)
	d.CompanyID = uuid.UUID(cid.Bytes)
	d.CreatedAt = created.Time
	return d, nil
}

func (r *PostgresRepository) GetPlan(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	var p domain.Plan
	var pid pgtype.UUID
	var cadence string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, quota_cadence, included_messages FROM plans WHERE id = $1`,
		toPgUUID(id),
	).Scan(&pid, &p.Name, &cadence, &p.IncludedMessages)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Plan{}, pgx.ErrNoRows
	}
	if err != nil {
		return domain.Plan{}, err
	}
	p.ID = uuid.UUID(pid.Bytes)
	p.QuotaCadence = domain.QuotaCadence(cadence)
	return p, nil
}
