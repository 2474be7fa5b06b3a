package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/veloq"
	"github.com/syssam/veloq/expr"
)

// Viewer is the authenticated user of a request.
type Viewer interface {
	GetID() string
	GetRoles() []string
	// GetTenantID returns "" outside multi-tenant setups.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a context carrying the viewer.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer of the context or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer with fixed values.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer denies requests without a viewer.
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("veloq/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole allows viewers with the role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole allows viewers with one of the roles.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

func fieldString(m veloq.Mutation, member string) (string, bool) {
	v, ok := m.Field(member)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// IsOwner allows mutations of entities whose member equals the viewer id.
func IsOwner(member string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloq.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if id, ok := fieldString(m, member); ok && id == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule denies mutations of entities whose member differs from the
// viewer tenant.
func TenantRule(member string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloq.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		tenant, ok := fieldString(m, member)
		if !ok {
			return Skip
		}
		if tenant != viewer.GetTenantID() {
			return Denyf("veloq/privacy: tenant mismatch on %s", m.Entity())
		}
		return Allow
	})
}

// TenantFilter restricts queries and bulk mutations to the rows whose
// string member equals the viewer tenant. Requests without a tenant are
// denied.
func TenantFilter(member string) QueryMutationRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Denyf("veloq/privacy: tenant required")
		}
		tenant := viewer.GetTenantID()
		f.Where(func(p *expr.Parameter) expr.Expr {
			return expr.Eq(p.Field(member), tenant)
		})
		return Skip
	})
}

// OwnerFilter restricts queries and bulk mutations to the rows whose
// string member equals the viewer id. Requests without a viewer are
// denied.
func OwnerFilter(member string) QueryMutationRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("veloq/privacy: viewer required")
		}
		id := viewer.GetID()
		f.Where(func(p *expr.Parameter) expr.Expr {
			return expr.Eq(p.Field(member), id)
		})
		return Skip
	})
}
