package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/tenant/domain"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("tenant.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, tenantID int64) (*domain.Tenant, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidID
	}
	t, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *Service) ResolveByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidAPIKey
	}
	t, err := s.repo.FindByAPIKeyHash(ctx, s.db, HashAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrInvalidAPIKey
	}
	return t, nil
}

func (s *Service) ListActiveActivations(ctx context.Context, tenantID int64) ([]domain.ModuleActivation, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindActiveActivations(ctx, s.db, tenantID)
}

func (s *Service) StampLastReset(ctx context.Context, tenantID int64, resetDate time.Time) error {
	if tenantID == 0 {
		return domain.ErrInvalidID
	}
	affected, err := s.repo.StampLastReset(ctx, s.db, tenantID, resetDate.UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAlreadyReset
	}
	return nil
}

func (s *Service) ListResetCandidates(ctx context.Context, before time.Time, limit int) ([]domain.Tenant, error) {
	return s.repo.FindResetCandidates(ctx, s.db, domain.BillingStatusPaid, before.UTC(), limit)
}

// HashAPIKey derives the stored lookup digest for a raw API key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(apiKey)))
	return hex.EncodeToString(sum[:])
}
