package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/scailup/creditledger/internal/authorization"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/tenantctx"
	"github.com/scailup/creditledger/pkg/db/pagination"
)

const (
	actionCheck           = "check"
	actionUse             = "use"
	actionAdd             = "add"
	actionGetBalance      = "get_balance"
	actionSetUnlimited    = "set_unlimited"
	actionGetTransactions = "get_transactions"
)

type creditActionRequest struct {
	Action      string     `json:"action"`
	ModuleCode  string     `json:"module_id"`
	CreditType  string     `json:"credit_type"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description"`
	RelatedID   string     `json:"related_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
	// ClientID lets admins act on another tenant's ledger.
	ClientID  string `json:"client_id"`
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size"`
}

type creditActionResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// HandleCredits dispatches the single credits endpoint. The action field
// selects the operation; the authenticated tenant scopes every ledger
// access unless an admin overrides it with client_id.
func (s *Server) HandleCredits(c *gin.Context) {
	var req creditActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_json", "request body must be valid JSON"))
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		AbortWithError(c, newValidationError("action", "required", "action is required"))
		return
	}
	c.Set("credit_action", action)

	ctx := c.Request.Context()
	if strings.TrimSpace(req.ClientID) != "" {
		overridden, err := s.actAsTenant(c, req.ClientID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ctx = overridden
	}

	switch action {
	case actionCheck:
		resp, err := s.creditsSvc.Check(ctx, req.ModuleCode, req.CreditType, req.Amount)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, creditActionResponse{Success: true, Data: resp})

	case actionUse:
		resp, err := s.creditsSvc.Use(ctx, creditsdomain.UseRequest{
			ModuleCode:  req.ModuleCode,
			CreditType:  req.CreditType,
			Amount:      req.Amount,
			Description: req.Description,
			RelatedID:   req.RelatedID,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, creditActionResponse{Success: true, Data: resp})

	case actionAdd:
		resp, err := s.creditsSvc.Add(ctx, creditsdomain.AddRequest{
			ModuleCode:  req.ModuleCode,
			CreditType:  req.CreditType,
			Amount:      req.Amount,
			Description: req.Description,
			ExpiresAt:   req.ExpiresAt,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, creditActionResponse{Success: true, Data: resp})

	case actionGetBalance:
		resp, err := s.creditsSvc.GetBalance(ctx, req.ModuleCode, req.CreditType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, creditActionResponse{Success: true, Data: resp})

	case actionSetUnlimited:
		tenantID, ok := tenantctx.TenantIDFromContext(ctx)
		if !ok {
			AbortWithError(c, creditsdomain.ErrTenantNotFound)
			return
		}
		if err := s.creditsSvc.SetUnlimited(ctx, tenantID.Int64(), req.ModuleCode, req.CreditType); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, creditActionResponse{Success: true})

	case actionGetTransactions:
		resp, err := s.creditsSvc.ListTransactions(ctx, creditsdomain.ListTransactionsRequest{
			Pagination: pagination.Pagination{
				PageToken: req.PageToken,
				PageSize:  req.PageSize,
			},
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, creditActionResponse{Success: true, Data: resp})

	default:
		AbortWithError(c, newValidationError("action", "invalid_action", "unknown action"))
	}
}

// actAsTenant swaps the ledger scope to client_id when the caller holds the
// act-as permission. The caller's own subject stays on the context so later
// permission checks still apply to the admin, not the target.
func (s *Server) actAsTenant(c *gin.Context, clientID string) (context.Context, error) {
	ctx := c.Request.Context()
	subject := tenantctx.SubjectFromContext(ctx)

	allowed, authErr := s.authzSvc.Can(ctx, subject, authorization.ObjectCredits, authorization.ActionCreditsActAs)
	if authErr != nil {
		return nil, authErr
	}
	if !allowed {
		return nil, authorization.ErrForbidden
	}

	targetID, parseErr := strconv.ParseInt(strings.TrimSpace(clientID), 10, 64)
	if parseErr != nil || targetID <= 0 {
		return nil, newValidationError("client_id", "invalid_client_id", "client_id must be a tenant identifier")
	}
	if _, lookupErr := s.tenantSvc.GetByID(ctx, targetID); lookupErr != nil {
		return nil, lookupErr
	}

	return tenantctx.WithTenantID(ctx, snowflake.ID(targetID)), nil
}
