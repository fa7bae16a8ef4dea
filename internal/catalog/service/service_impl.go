package service

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/cache"
	"github.com/scailup/creditledger/internal/catalog/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.CatalogResolverCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.CatalogResolverCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) ListTierCredits(ctx context.Context, moduleCode, tierCode string) ([]domain.TierCredit, error) {
	moduleCode = strings.TrimSpace(moduleCode)
	if moduleCode == "" {
		return nil, domain.ErrInvalidModuleCode
	}
	tierCode = strings.TrimSpace(tierCode)
	if tierCode == "" {
		return nil, domain.ErrInvalidTierCode
	}

	if s.cache != nil {
		if credits, ok := s.cache.GetTierCredits(moduleCode, tierCode); ok {
			return credits, nil
		}
	}

	tier, err := s.repo.FindActiveTier(ctx, s.db, moduleCode, tierCode)
	if err != nil {
		return nil, err
	}

	credits := []domain.TierCredit{}
	if tier != nil {
		credits, err = s.repo.FindTierCredits(ctx, s.db, tier.ID)
		if err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		s.cache.SetTierCredits(moduleCode, tierCode, credits)
	}
	return credits, nil
}
