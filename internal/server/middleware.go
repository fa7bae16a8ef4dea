package server

import (
	"crypto/subtle"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scailup/creditledger/internal/authorization"
	"github.com/scailup/creditledger/internal/ratelimit"
	"github.com/scailup/creditledger/internal/tenantctx"
)

// APIKeyRequired resolves the bearer credential to a tenant and binds the
// identity to the request context. Role grouping is reconciled on every
// resolution so admin flag changes take effect without restarts.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := bearerToken(c)
		if apiKey == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		t, err := s.tenantSvc.ResolveByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		subject := authorization.TenantSubject(t.ID)
		if err := s.authzSvc.SyncTenantRole(c.Request.Context(), subject, t.IsAdmin); err != nil {
			s.log.Warn("role sync failed",
				zap.Int64("tenant_id", t.ID),
				zap.Error(err),
			)
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), snowflake.ID(t.ID))
		ctx = tenantctx.WithSubject(ctx, subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set("tenant_id", t.ID)

		c.Next()
	}
}

// RateLimit enforces the per-tenant request budget. Limiter failures fail
// open: a broken backend must not take the API down.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.ClientIP()
		if id, ok := tenantctx.TenantIDFromContext(c.Request.Context()); ok {
			identity = authorization.TenantSubject(id.Int64())
		}

		result, err := s.limiter.Allow(c.Request.Context(), identity)
		if err != nil {
			s.log.Warn("rate limiter unavailable, admitting request",
				zap.String("identity", identity),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Set("retry_after_seconds", seconds)
			AbortWithError(c, ratelimit.ErrRateLimited)
			return
		}

		c.Next()
	}
}

// InternalTokenRequired guards machine-to-machine endpoints with the shared
// trigger token. An unset token disables the endpoint entirely.
func (s *Server) InternalTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.InternalTriggerToken)
		if expected == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		presented := strings.TrimSpace(c.GetHeader("X-Internal-Token"))
		if presented == "" {
			presented = bearerToken(c)
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := tenantctx.WithSubject(c.Request.Context(), authorization.SubjectSystem)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
