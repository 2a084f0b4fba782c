package governance

import (
	"context"
	"fmt"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ActionPolicyUpdated is recorded on every policy upsert
	ActionPolicyUpdated = "policy.updated"
	// EntityTypeCostPolicy is the entity type of policy ledger entries
	EntityTypeCostPolicy = "cost_policy"
)

// PolicyCache serves effective policies in front of the repository
type PolicyCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, load func(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error)) (*governance.CostPolicy, error)
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// PolicyProvider returns the policy that currently applies to a tenant
type PolicyProvider interface {
	EffectivePolicy(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error)
}

// PolicyService reads and updates tenant cost policies
type PolicyService struct {
	repo    governance.CostPolicyRepository
	scope   governance.TransactionScope
	cache   PolicyCache
	gate    governance.AuthorizationGate
	logger  *zap.Logger
	metrics Metrics
}

// PolicyServiceOption configures a PolicyService
type PolicyServiceOption func(*PolicyService)

// WithPolicyCache serves reads through cache
func WithPolicyCache(cache PolicyCache) PolicyServiceOption {
	return func(s *PolicyService) {
		s.cache = cache
	}
}

// WithPolicyLogger sets the service logger
func WithPolicyLogger(logger *zap.Logger) PolicyServiceOption {
	return func(s *PolicyService) {
		s.logger = logger
	}
}

// WithPolicyMetrics sets the metrics sink
func WithPolicyMetrics(m Metrics) PolicyServiceOption {
	return func(s *PolicyService) {
		s.metrics = m
	}
}

// NewPolicyService creates a new PolicyService
func NewPolicyService(
	repo governance.CostPolicyRepository,
	scope governance.TransactionScope,
	gate governance.AuthorizationGate,
	opts ...PolicyServiceOption,
) *PolicyService {
	s := &PolicyService{
		repo:    repo,
		scope:   scope,
		gate:    gate,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load reads the stored policy, or the defaults when the tenant has none
func (s *PolicyService) load(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error) {
	p, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load cost policy: %w", err)
	}
	if p == nil {
		return governance.DefaultCostPolicy(tenantID), nil
	}
	return p, nil
}

// EffectivePolicy returns the tenant's policy without an authorization check.
// The result may be mutated by the caller.
func (s *PolicyService) EffectivePolicy(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error) {
	if s.cache != nil {
		return s.cache.Get(ctx, tenantID, s.load)
	}
	return s.load(ctx, tenantID)
}

// GetPolicy returns the actor tenant's policy or its defaults
func (s *PolicyService) GetPolicy(ctx context.Context, actor governance.Actor) (*PolicyResponse, error) {
	if err := authorize(s.gate, actor, governance.PermissionPolicyView); err != nil {
		return nil, err
	}
	p, err := s.EffectivePolicy(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	resp := ToPolicyResponse(p)
	return &resp, nil
}

// UpsertPolicy replaces the tenant's thresholds and records policy.updated
// in the same transaction
func (s *PolicyService) UpsertPolicy(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, update governance.CostPolicyUpdate) (*PolicyResponse, error) {
	if err := authorize(s.gate, actor, governance.PermissionPolicyUpdate); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var saved *governance.CostPolicy
	err := s.scope.Execute(ctx, func(repos governance.TransactionalRepositories) error {
		current, err := repos.Policies().FindByTenant(ctx, actor.TenantID)
		if err != nil {
			return fmt.Errorf("load cost policy: %w", err)
		}

		var before any
		if current == nil {
			current = governance.DefaultCostPolicy(actor.TenantID)
		} else {
			before = current.Clone()
		}

		if err := current.Apply(update, actor.ID); err != nil {
			return err
		}
		if err := repos.Policies().Save(ctx, current); err != nil {
			return err
		}

		policyID := current.ID
		_, err = recordEntry(ctx, repos.AuditEvents(), s.metrics, governance.AuditEntry{
			TenantID:   actor.TenantID,
			ActorID:    actor.ID,
			Action:     ActionPolicyUpdated,
			EntityType: EntityTypeCostPolicy,
			EntityID:   policyID,
			Before:     before,
			After:      current,
			IP:         meta.IP,
			UserAgent:  meta.UserAgent,
		})
		if err != nil {
			return err
		}
		saved = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, actor.TenantID); err != nil {
			s.logger.Warn("Failed to invalidate cost policy cache",
				zap.String("tenant_id", actor.TenantID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Cost policy updated",
		zap.String("tenant_id", actor.TenantID.String()),
		zap.Int("version", saved.Version))

	resp := ToPolicyResponse(saved)
	return &resp, nil
}
