package governance

import (
	"strings"

	"github.com/google/uuid"
)

// Permission keys checked by governance operations. Approval permissions
// are derived per kind with EntityKind.Permission.
const (
	PermissionPolicyView    = "policy.view"
	PermissionPolicyUpdate  = "policy.update"
	PermissionAuditView     = "audit.view"
	PermissionAuditExport   = "audit.export"
	PermissionOverviewView  = "governance.view"
	OperationSubmit         = "submit"
	OperationApprove        = "approve"
	OperationReject         = "reject"
	PermissionWildcard      = "*"
	permissionWildcardShort = ".*"
)

// Actor is the authenticated caller of a governance operation
type Actor struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Roles       []string
	Permissions []string
}

// AuthorizationGate answers whether an actor holds a permission. The role
// catalog behind it is owned elsewhere.
type AuthorizationGate interface {
	Allows(actor Actor, permission string) bool
}

// AuthorizationGateFunc adapts a function to AuthorizationGate
type AuthorizationGateFunc func(actor Actor, permission string) bool

// Allows implements AuthorizationGate
func (f AuthorizationGateFunc) Allows(actor Actor, permission string) bool {
	return f(actor, permission)
}

// PermissionGranted reports whether any granted key covers required.
// "*" grants everything and "co.*" grants every co permission.
func PermissionGranted(granted []string, required string) bool {
	for _, g := range granted {
		if g == required || g == PermissionWildcard {
			return true
		}
		if prefix, ok := strings.CutSuffix(g, permissionWildcardShort); ok && strings.HasPrefix(required, prefix+".") {
			return true
		}
	}
	return false
}
