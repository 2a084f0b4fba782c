package governance

import (
	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
)

// authorize returns a FORBIDDEN domain error unless gate allows the permission
func authorize(gate governance.AuthorizationGate, actor governance.Actor, permission string) error {
	if gate == nil || !gate.Allows(actor, permission) {
		return shared.NewDomainError(shared.CodeForbidden, "Missing permission "+permission)
	}
	return nil
}
