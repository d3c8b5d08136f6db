package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// QuotaCadence is the accounting period a plan's send quota is measured
// against. It is a first-class plan attribute rather than something inferred
// from the plan's name.
type QuotaCadence string

const (
	CadenceDay   QuotaCadence = "day"
	CadenceMonth QuotaCadence = "month"
)

// Company is the tenant record. CRUD for companies lives elsewhere; the
// dispatch engine only reads them.
type Company struct {
	ID        uuid.UUID
	Name      string
	PlanID    uuid.UUID
	IsActive  bool
	CreatedAt time.Time
}

// Domain is a sending domain owned by a company.
type Domain struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Verified  bool
	CreatedAt time.Time
}

// Plan carries the billing attributes the quota enforcer needs.
// IncludedMessages of zero means unlimited for month-cadence plans; day-cadence
// plans with a zero value fall back to the configured daily limit.
type Plan struct {
	ID               uuid.UUID
	Name             string
	QuotaCadence     QuotaCadence
	IncludedMessages int64
}

var (
	ErrCompanyNotFound  = errors.New("company not found")
	ErrDomainNotFound   = errors.New("domain not found")
	ErrDomainNotOwned   = errors.New("domain does not belong to company")
	ErrDomainUnverified = errors.New("domain is not verified")
)

// Repository abstracts read access to account records.
type Repository interface {
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	GetDomain(ctx context.Context, id uuid.UUID) (Domain, error)
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
}

// Service resolves the sending context for a request: the company, the
// verified domain it owns, and the plan governing its quota.
type Service interface {
	ResolveSendContext(ctx context.Context, companyID, domainID uuid.UUID) (Company, Domain, Plan, error)
}
