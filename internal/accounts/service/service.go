package service

import (
	"context"

	"github.com/google/uuid"

	domain "github.com/corvusHold/courier/internal/accounts/domain"
)

type service struct {
	repo domain.Repository
}

func New(repo domain.Repository) domain.Service {
	return &service{repo: repo}
}

func (s *service) ResolveSendContext(ctx context.Context, companyID, domainID uuid.UUID) (domain.Company, domain.Domain, domain.Plan, error) {
	co, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return domain.Company{}, domain.Domain{}, domain.Plan{}, err
	}
	d, err := s.repo.GetDomain(ctx, domainID)
	if err != nil {
		return domain.Company{}, domain.Domain{}, domain.Plan{}, err
	}
	if d.CompanyID != co.ID {
		return domain.Company{}, domain.Domain{}, domain.Plan{}, domain.ErrDomainNotOwned
	}
	if !d.Verified {
		return domain.Company{}, domain.Domain{}, domain.Plan{}, domain.ErrDomainUnverified
	}
	p, err := s.repo.GetPlan(ctx, co.PlanID)
	if err != nil {
		return domain.Company{}, domain.Domain{}, domain.Plan{}, err
	}
	return co, d, p, nil
}
