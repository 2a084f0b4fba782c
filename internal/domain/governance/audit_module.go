package governance

import (
	"strings"

	"golang.org/x/text/cases"
)

// AuditModule groups ledger actions by functional area
type AuditModule string

const (
	AuditModuleRBAC      AuditModule = "RBAC"
	AuditModuleCost      AuditModule = "Cost"
	AuditModuleDocuments AuditModule = "Documents"
	AuditModuleTasks     AuditModule = "Tasks"
)

// action prefixes per module; "user.roles_" covers user.roles_assigned etc.
var auditModulePrefixes = map[AuditModule][]string{
	AuditModuleRBAC:      {"role.", "user.roles_"},
	AuditModuleCost:      {"co.", "certificate.", "payment.", "contract."},
	AuditModuleDocuments: {"document."},
	AuditModuleTasks:     {"task."},
}

// AllAuditModules returns the known modules in display order
func AllAuditModules() []AuditModule {
	return []AuditModule{AuditModuleRBAC, AuditModuleCost, AuditModuleDocuments, AuditModuleTasks}
}

// ParseAuditModule resolves a module name case-insensitively
func ParseAuditModule(s string) (AuditModule, bool) {
	folder := cases.Fold()
	want := folder.String(strings.TrimSpace(s))
	for _, m := range AllAuditModules() {
		if folder.String(string(m)) == want {
			return m, true
		}
	}
	return "", false
}

// ActionPrefixes returns the action prefixes belonging to the module
func (m AuditModule) ActionPrefixes() []string {
	return auditModulePrefixes[m]
}

// Matches reports whether action belongs to the module
func (m AuditModule) Matches(action string) bool {
	for _, p := range m.ActionPrefixes() {
		if strings.HasPrefix(action, p) {
			return true
		}
	}
	return false
}
