package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCredits = "credits"
	ObjectReset   = "reset"
)

const (
	ActionCreditsAdd          = "credits.add"
	ActionCreditsSetUnlimited = "credits.set_unlimited"
	ActionCreditsActAs        = "credits.act_as"
	ActionResetTrigger        = "reset.trigger"
)

const (
	RoleAdmin  = "role:admin"
	RoleTenant = "role:tenant"
	RoleSystem = "role:system"
)

// SubjectSystem identifies internal machine callers such as the reset
// trigger endpoint.
const SubjectSystem = "system"

// TenantSubject formats the enforcer subject for a tenant identity.
func TenantSubject(tenantID int64) string {
	return fmt.Sprintf("tenant:%d", tenantID)
}

var (
	ErrInvalidSubject = errors.New("invalid_subject")
	ErrForbidden      = errors.New("forbidden")
)

// Service answers role questions for resolved caller identities. Admin
// status is policy data, never a hardcoded identity.
type Service interface {
	IsAdmin(ctx context.Context, subject string) bool
	Can(ctx context.Context, subject, object, action string) (bool, error)
	// SyncTenantRole reconciles a tenant's role grouping with its stored
	// admin flag. Called on identity resolution.
	SyncTenantRole(ctx context.Context, subject string, admin bool) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) IsAdmin(_ context.Context, subject string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false
	}
	has, err := s.enforcer.HasRoleForUser(subject, RoleAdmin)
	if err != nil {
		s.log.Warn("role lookup failed", zap.String("subject", subject), zap.Error(err))
		return false
	}
	return has
}

func (s *ServiceImpl) Can(_ context.Context, subject, object, action string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false, ErrInvalidSubject
	}
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if object == "" || action == "" {
		return false, ErrForbidden
	}
	return s.enforcer.Enforce(subject, object, action)
}

func (s *ServiceImpl) SyncTenantRole(_ context.Context, subject string, admin bool) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidSubject
	}

	role := RoleTenant
	if admin {
		role = RoleAdmin
	}

	existing, err := s.enforcer.GetRolesForUser(subject)
	if err != nil {
		return err
	}
	for _, current := range existing {
		if current == role {
			continue
		}
		if _, err := s.enforcer.DeleteRoleForUser(subject, current); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleAdmin, ObjectCredits, ActionCreditsAdd},
		{RoleAdmin, ObjectCredits, ActionCreditsSetUnlimited},
		{RoleAdmin, ObjectCredits, ActionCreditsActAs},
		{RoleAdmin, ObjectReset, ActionResetTrigger},

		{RoleSystem, ObjectCredits, ActionCreditsAdd},
		{RoleSystem, ObjectReset, ActionResetTrigger},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	has, err := enforcer.HasGroupingPolicy(SubjectSystem, RoleSystem)
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy(SubjectSystem, RoleSystem); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
