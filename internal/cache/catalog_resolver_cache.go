package cache

import (
	"strings"
	"time"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
)

const defaultTierCreditsTTL = 5 * time.Minute

// CatalogResolverCache stores hot-path tier catalog lookups.
type CatalogResolverCache interface {
	GetTierCredits(moduleCode, tierCode string) ([]catalogdomain.TierCredit, bool)
	SetTierCredits(moduleCode, tierCode string, credits []catalogdomain.TierCredit)
}

type catalogResolverCache struct {
	tierCredits Cache[string, []catalogdomain.TierCredit]
	ttl         time.Duration
}

// NewCatalogResolverCache returns an in-memory cache tuned for catalog
// reads. Empty results are cached too so unknown tiers stay cheap.
func NewCatalogResolverCache() CatalogResolverCache {
	return &catalogResolverCache{
		tierCredits: NewTTLCache[string, []catalogdomain.TierCredit](),
		ttl:         defaultTierCreditsTTL,
	}
}

func (c *catalogResolverCache) GetTierCredits(moduleCode, tierCode string) ([]catalogdomain.TierCredit, bool) {
	return c.tierCredits.Get(cacheKey(moduleCode, tierCode))
}

func (c *catalogResolverCache) SetTierCredits(moduleCode, tierCode string, credits []catalogdomain.TierCredit) {
	c.tierCredits.Set(cacheKey(moduleCode, tierCode), credits, c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
