package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/costgov/backend/internal/domain/governance"
	"gopkg.in/yaml.v3"
)

// Gate kinds accepted by NewGate
const (
	GateClaims = "claims"
	GateRoles  = "roles"
)

// ClaimsGate trusts the permission list carried in the access token
type ClaimsGate struct{}

// Allows implements governance.AuthorizationGate
func (ClaimsGate) Allows(actor governance.Actor, permission string) bool {
	return governance.PermissionGranted(actor.Permissions, permission)
}

// RolePermissionGate resolves permissions from a static role catalog.
// Permissions carried directly by the actor are honored as well.
type RolePermissionGate struct {
	roles map[string][]string
}

// rolePermissionFile is the on-disk layout:
//
//	roles:
//	  finance_manager: [co.approve, certificate.approve, payment.*]
//	  auditor: [audit.view, audit.export, governance.view]
type rolePermissionFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// NewRolePermissionGate builds a gate from a role to permission map
func NewRolePermissionGate(roles map[string][]string) *RolePermissionGate {
	normalized := make(map[string][]string, len(roles))
	for role, perms := range roles {
		normalized[strings.ToLower(strings.TrimSpace(role))] = perms
	}
	return &RolePermissionGate{roles: normalized}
}

// ParseRolePermissions decodes a YAML role catalog
func ParseRolePermissions(data []byte) (*RolePermissionGate, error) {
	var file rolePermissionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse role permissions: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("parse role permissions: no roles defined")
	}
	return NewRolePermissionGate(file.Roles), nil
}

// LoadRolePermissions reads a YAML role catalog from path
func LoadRolePermissions(path string) (*RolePermissionGate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role permissions %s: %w", path, err)
	}
	return ParseRolePermissions(data)
}

// Allows implements governance.AuthorizationGate
func (g *RolePermissionGate) Allows(actor governance.Actor, permission string) bool {
	if governance.PermissionGranted(actor.Permissions, permission) {
		return true
	}
	for _, role := range actor.Roles {
		if governance.PermissionGranted(g.roles[strings.ToLower(role)], permission) {
			return true
		}
	}
	return false
}

// NewGate builds the gate selected by the authorization config
func NewGate(kind, rolePermissionsPath string) (governance.AuthorizationGate, error) {
	switch kind {
	case "", GateClaims:
		return ClaimsGate{}, nil
	case GateRoles:
		if rolePermissionsPath == "" {
			return nil, fmt.Errorf("authorization gate %q requires a role permissions file", kind)
		}
		return LoadRolePermissions(rolePermissionsPath)
	default:
		return nil, fmt.Errorf("unknown authorization gate %q", kind)
	}
}

var (
	_ governance.AuthorizationGate = ClaimsGate{}
	_ governance.AuthorizationGate = (*RolePermissionGate)(nil)
)
