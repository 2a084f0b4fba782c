package governance

import (
	"context"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditEventRepository is the append-only store behind the audit ledger
type AuditEventRepository interface {
	// Append persists a new event; events are never updated or deleted
	Append(ctx context.Context, event *AuditEvent) error
	// Query returns one page of events ordered newest first
	Query(ctx context.Context, filter AuditFilter, page shared.PageRequest) ([]AuditEvent, int64, error)
	// Each streams matching events oldest first
	Each(ctx context.Context, filter AuditFilter, fn func(*AuditEvent) error) error
	// FindPolicyCandidates returns events since the given time that may mark
	// an entity as blocked by policy, newest first
	FindPolicyCandidates(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]AuditEvent, error)
}

// CostPolicyRepository stores one cost policy per tenant
type CostPolicyRepository interface {
	// FindByTenant returns nil, nil when the tenant has no policy row
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*CostPolicy, error)
	// Save inserts or updates the policy, checking the previous version
	Save(ctx context.Context, policy *CostPolicy) error
}

// ApprovableRepository reads and conditionally writes approvable entities
type ApprovableRepository interface {
	// FindByIDForTenant returns nil, nil when the entity does not exist
	FindByIDForTenant(ctx context.Context, kind EntityKind, tenantID, id uuid.UUID) (*ApprovableEntity, error)
	// SaveWithLock writes the governed fields if the stored version is
	// still entity.Version-1, otherwise returns shared.ErrStaleState
	SaveWithLock(ctx context.Context, entity *ApprovableEntity) error
}

// ProjectFinanceReader provides read-only access to project budgets and
// contracts owned by other modules
type ProjectFinanceReader interface {
	// BudgetContexts returns the budget context of every given project that has data
	BudgetContexts(ctx context.Context, tenantID uuid.UUID, projectIDs []uuid.UUID) (map[uuid.UUID]*BudgetContext, error)
	// BudgetedProjects lists the tenant's projects that have budget lines
	BudgetedProjects(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	// ProjectNames resolves project names by ID
	ProjectNames(ctx context.Context, tenantID uuid.UUID, projectIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

// StatusCounts are the per-kind entity counts of the overview summary
type StatusCounts struct {
	Total                int64
	PendingApproval      int64
	AwaitingDualApproval int64
}

// ProjectPendingCounts are the pending counts of one project and kind
type ProjectPendingCounts struct {
	ProjectID            uuid.UUID
	PendingApproval      int64
	AwaitingDualApproval int64
}

// ApprovableStatsReader aggregates approvable entity state for dashboards
type ApprovableStatsReader interface {
	StatusCounts(ctx context.Context, kind EntityKind, tenantID uuid.UUID) (StatusCounts, error)
	PendingByProject(ctx context.Context, kind EntityKind, tenantID uuid.UUID) ([]ProjectPendingCounts, error)
}

// TransactionalRepositories are repositories bound to one transaction
type TransactionalRepositories interface {
	Approvables() ApprovableRepository
	Policies() CostPolicyRepository
	AuditEvents() AuditEventRepository
}

// TransactionScope runs fn in a single database transaction. Returning an
// error from fn rolls back every write made through the repositories.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}
