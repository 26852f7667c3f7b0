package domain

import (
	"context"
	"slices"
)

// Action identifies a privileged operation
type Action string

const (
	ActionUpdateThresholds Action = "thresholds.update"
	ActionGenerateReport   Action = "reports.generate"
)

// RoleAdmin is granted every privileged action by RoleAuthorizer
const RoleAdmin = "admin"

// Principal is the identity attached to a request
type Principal struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the principal carries role
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// SystemPrincipal is used for changes originating inside the process,
// such as a threshold file reload.
var SystemPrincipal = Principal{ID: "system", Roles: []string{RoleAdmin}}

type principalKey struct{}

// WithPrincipal attaches p to ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal attached to ctx
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authorizer decides whether the caller in ctx may perform action
type Authorizer func(ctx context.Context, action Action) bool

// RoleAuthorizer grants every action to principals holding role
func RoleAuthorizer(role string) Authorizer {
	return func(ctx context.Context, _ Action) bool {
		p, ok := PrincipalFrom(ctx)
		return ok && p.HasRole(role)
	}
}
