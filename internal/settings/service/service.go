package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	sdomain "github.com/corvusHold/courier/internal/settings/domain"
)

type Service struct{ repo sdomain.Repository }

func New(repo sdomain.Repository) *Service { return &Service{repo: repo} }

func (s *Service) GetString(ctx context.Context, key string, companyID *uuid.UUID, def string) (string, error) {
	v, ok, err := s.repo.Get(ctx, key, companyID)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	return v, nil
}

func (s *Service) GetDuration(ctx context.Context, key string, companyID *uuid.UUID, def time.Duration) (time.Duration, error) {
	v, err := s.GetString(ctx, key, companyID, "")
	if err != nil || v == "" {
		return def, err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, nil
	}
	return d, nil
}

func (s *Service) GetInt(ctx context.Context, key string, companyID *uuid.UUID, def int) (int, error) {
	v, err := s.GetString(ctx, key, companyID, "")
	if err != nil || v == "" {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return n, nil
}
