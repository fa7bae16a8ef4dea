package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/config"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/ratelimit"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

type tenantSvcStub struct {
	tenant *tenantdomain.Tenant
}

func (s *tenantSvcStub) GetByID(_ context.Context, id int64) (*tenantdomain.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, tenantdomain.ErrNotFound
}

func (s *tenantSvcStub) ResolveByAPIKey(_ context.Context, apiKey string) (*tenantdomain.Tenant, error) {
	if s.tenant != nil && apiKey == "sk-live-acme" {
		return s.tenant, nil
	}
	return nil, tenantdomain.ErrInvalidAPIKey
}

func (s *tenantSvcStub) ListActiveActivations(context.Context, int64) ([]tenantdomain.ModuleActivation, error) {
	return nil, nil
}

func (s *tenantSvcStub) StampLastReset(context.Context, int64, time.Time) error { return nil }

func (s *tenantSvcStub) ListResetCandidates(context.Context, time.Time, int) ([]tenantdomain.Tenant, error) {
	return nil, nil
}

type creditsSvcStub struct {
	useErr  error
	useResp *creditsdomain.UseResponse
	balance *creditsdomain.BalanceResponse
}

func (s *creditsSvcStub) GetBalance(context.Context, string, string) (*creditsdomain.BalanceResponse, error) {
	return s.balance, nil
}

func (s *creditsSvcStub) Check(context.Context, string, string, int64) (*creditsdomain.CheckResponse, error) {
	return &creditsdomain.CheckResponse{HasEnough: true, Available: 10}, nil
}

func (s *creditsSvcStub) Use(context.Context, creditsdomain.UseRequest) (*creditsdomain.UseResponse, error) {
	if s.useErr != nil {
		return nil, s.useErr
	}
	return s.useResp, nil
}

func (s *creditsSvcStub) Add(context.Context, creditsdomain.AddRequest) (*creditsdomain.BalanceResponse, error) {
	return s.balance, nil
}

func (s *creditsSvcStub) SetUnlimited(context.Context, int64, string, string) error { return nil }

func (s *creditsSvcStub) ListTransactions(context.Context, creditsdomain.ListTransactionsRequest) (*creditsdomain.TransactionPage, error) {
	return &creditsdomain.TransactionPage{}, nil
}

type authzSvcStub struct {
	admin bool
	allow bool
}

func (s *authzSvcStub) IsAdmin(context.Context, string) bool { return s.admin }

func (s *authzSvcStub) Can(context.Context, string, string, string) (bool, error) {
	return s.allow, nil
}

func (s *authzSvcStub) SyncTenantRole(context.Context, string, bool) error { return nil }

func newTestServer(t *testing.T, credits *creditsSvcStub, authz *authzSvcStub) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	limiter := ratelimit.NewMemoryWindow(
		config.NewStaticEngineConfigHolder(config.EngineConfig{
			RateLimit: config.RateLimitConfig{Enabled: true, Window: time.Minute, Budget: 100},
		}),
		clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	)

	s := &Server{
		engine: engine,
		log:    zap.NewNop(),
		tenantSvc: &tenantSvcStub{tenant: &tenantdomain.Tenant{
			ID:            42,
			Name:          "Acme",
			BillingStatus: tenantdomain.BillingStatusPaid,
		}},
		creditsSvc: credits,
		authzSvc:   authz,
		limiter:    limiter,
	}
	s.registerAPIRoutes()
	return s
}

func doCredits(t *testing.T, s *Server, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/credits", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestCreditsRequiresBearer(t *testing.T) {
	s := newTestServer(t, &creditsSvcStub{}, &authzSvcStub{})

	rec := doCredits(t, s, "", gin.H{"action": "get_balance", "module_id": "outreach", "credit_type": "emails"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doCredits(t, s, "sk-live-wrong", gin.H{"action": "get_balance", "module_id": "outreach", "credit_type": "emails"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreditsGetBalance(t *testing.T) {
	s := newTestServer(t, &creditsSvcStub{
		balance: &creditsdomain.BalanceResponse{ModuleCode: "outreach", CreditType: "emails", Balance: 70, Cap: 100, Used: 30},
	}, &authzSvcStub{})

	rec := doCredits(t, s, "sk-live-acme", gin.H{"action": "get_balance", "module_id": "outreach", "credit_type": "emails"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Balance int64 `json:"balance"`
			Cap     int64 `json:"cap"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(70), resp.Data.Balance)
	assert.Equal(t, int64(100), resp.Data.Cap)
}

func TestCreditsUseInsufficientIsBadRequest(t *testing.T) {
	s := newTestServer(t, &creditsSvcStub{
		useErr: &creditsdomain.InsufficientCreditsError{Available: 30, Requested: 50},
	}, &authzSvcStub{})

	rec := doCredits(t, s, "sk-live-acme", gin.H{
		"action": "use", "module_id": "outreach", "credit_type": "emails", "amount": 50,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error struct {
			Type      string `json:"type"`
			Available int64  `json:"available"`
			Requested int64  `json:"requested"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_credits", resp.Error.Type)
	assert.Equal(t, int64(30), resp.Error.Available)
	assert.Equal(t, int64(50), resp.Error.Requested)
}

func TestCreditsUnknownActionIsValidationError(t *testing.T) {
	s := newTestServer(t, &creditsSvcStub{}, &authzSvcStub{})

	rec := doCredits(t, s, "sk-live-acme", gin.H{"action": "transmogrify"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreditsActAsRequiresPermission(t *testing.T) {
	s := newTestServer(t, &creditsSvcStub{
		balance: &creditsdomain.BalanceResponse{},
	}, &authzSvcStub{allow: false})

	rec := doCredits(t, s, "sk-live-acme", gin.H{
		"action": "get_balance", "module_id": "outreach", "credit_type": "emails", "client_id": "77",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreditsActAsUnknownTenant(t *testing.T) {
	s := newTestServer(t, &creditsSvcStub{
		balance: &creditsdomain.BalanceResponse{},
	}, &authzSvcStub{allow: true})

	rec := doCredits(t, s, "sk-live-acme", gin.H{
		"action": "get_balance", "module_id": "outreach", "credit_type": "emails", "client_id": "77",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreditsRateLimitSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	limiter := ratelimit.NewMemoryWindow(
		config.NewStaticEngineConfigHolder(config.EngineConfig{
			RateLimit: config.RateLimitConfig{Enabled: true, Window: time.Minute, Budget: 1},
		}),
		clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	)

	s := &Server{
		engine: engine,
		log:    zap.NewNop(),
		tenantSvc: &tenantSvcStub{tenant: &tenantdomain.Tenant{
			ID: 42, Name: "Acme", BillingStatus: tenantdomain.BillingStatusPaid,
		}},
		creditsSvc: &creditsSvcStub{balance: &creditsdomain.BalanceResponse{}},
		authzSvc:   &authzSvcStub{},
		limiter:    limiter,
	}
	s.registerAPIRoutes()

	body := gin.H{"action": "get_balance", "module_id": "outreach", "credit_type": "emails"}
	rec := doCredits(t, s, "sk-live-acme", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doCredits(t, s, "sk-live-acme", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
