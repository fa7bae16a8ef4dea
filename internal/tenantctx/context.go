// Package tenantctx carries the resolved tenant identity through request
// contexts.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type tenantIDKey struct{}
type subjectKey struct{}

// WithTenantID binds the authenticated tenant to the context.
func WithTenantID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, id)
}

// TenantIDFromContext returns the authenticated tenant, if any.
func TenantIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(tenantIDKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// WithSubject binds the caller identity (API key subject or admin
// principal) used for authorization decisions.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the caller identity, if any.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}
