package governance

import (
	"context"
	"fmt"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApprovalService drives the approval state machine of change orders,
// payment certificates and actual payments
type ApprovalService struct {
	scope    governance.TransactionScope
	policies PolicyProvider
	finance  governance.ProjectFinanceReader
	gate     governance.AuthorizationGate
	logger   *zap.Logger
	metrics  Metrics
}

// ApprovalServiceOption configures an ApprovalService
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalLogger sets the service logger
func WithApprovalLogger(logger *zap.Logger) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.logger = logger
	}
}

// WithApprovalMetrics sets the metrics sink
func WithApprovalMetrics(m Metrics) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = m
	}
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	scope governance.TransactionScope,
	policies PolicyProvider,
	finance governance.ProjectFinanceReader,
	gate governance.AuthorizationGate,
	opts ...ApprovalServiceOption,
) *ApprovalService {
	s := &ApprovalService{
		scope:    scope,
		policies: policies,
		finance:  finance,
		gate:     gate,
		logger:   zap.NewNop(),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit moves a draft or proposed entity into review. The tenant policy is
// evaluated against the amount and the project budget: a block leaves the
// entity blocked, a dual threshold flags it for two approvers.
func (s *ApprovalService) Submit(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, kind governance.EntityKind, id uuid.UUID) (*ApprovalResult, error) {
	var eval governance.Evaluation
	result, err := s.transition(ctx, actor, meta, kind, id, governance.OperationSubmit, func(e *governance.ApprovableEntity) error {
		var err error
		eval, err = s.evaluate(ctx, e)
		if err != nil {
			return err
		}
		return e.Submit(actor.ID, eval)
	})
	if err != nil {
		return nil, err
	}

	result.Decision = eval.Decision
	result.PolicyCode = eval.Code
	s.metrics.PolicyDecision(ctx, string(kind), string(eval.Decision))
	if eval.Decision == governance.DecisionBlock {
		s.logger.Info("Submission blocked by cost policy",
			zap.String("entity_type", string(kind)),
			zap.String("entity_id", id.String()),
			zap.String("code", eval.Code))
	}
	return result, nil
}

// Approve records an approval by the actor. The policy is not re-evaluated.
func (s *ApprovalService) Approve(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, kind governance.EntityKind, id uuid.UUID) (*ApprovalResult, error) {
	return s.transition(ctx, actor, meta, kind, id, governance.OperationApprove, func(e *governance.ApprovableEntity) error {
		return e.Approve(actor.ID)
	})
}

// Reject closes the review of a pending entity
func (s *ApprovalService) Reject(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, kind governance.EntityKind, id uuid.UUID, reason string) (*ApprovalResult, error) {
	return s.transition(ctx, actor, meta, kind, id, governance.OperationReject, func(e *governance.ApprovableEntity) error {
		return e.Reject(actor.ID, reason)
	})
}

func (s *ApprovalService) evaluate(ctx context.Context, e *governance.ApprovableEntity) (governance.Evaluation, error) {
	policy, err := s.policies.EffectivePolicy(ctx, e.TenantID)
	if err != nil {
		return governance.Evaluation{}, err
	}

	var budget *governance.BudgetContext
	if policy.OverBudgetThresholdPercent != nil {
		budgets, err := s.finance.BudgetContexts(ctx, e.TenantID, []uuid.UUID{e.ProjectID})
		if err != nil {
			return governance.Evaluation{}, fmt.Errorf("load budget context: %w", err)
		}
		budget = budgets[e.ProjectID]
	}
	return governance.Evaluate(policy, e.Kind, e.Amount, budget), nil
}

// transition loads the entity, applies change, writes it with a version
// check and appends its events to the ledger in one transaction
func (s *ApprovalService) transition(
	ctx context.Context,
	actor governance.Actor,
	meta governance.RequestMeta,
	kind governance.EntityKind,
	id uuid.UUID,
	op string,
	change func(*governance.ApprovableEntity) error,
) (*ApprovalResult, error) {
	if err := authorize(s.gate, actor, kind.Permission(op)); err != nil {
		return nil, err
	}

	var (
		entity  *governance.ApprovableEntity
		actions []string
	)
	err := s.scope.Execute(ctx, func(repos governance.TransactionalRepositories) error {
		var err error
		entity, err = repos.Approvables().FindByIDForTenant(ctx, kind, actor.TenantID, id)
		if err != nil {
			return fmt.Errorf("load %s: %w", kind, err)
		}
		if entity == nil {
			return shared.NewDomainError(shared.CodeNotFound, string(kind)+" not found")
		}

		if err := change(entity); err != nil {
			return err
		}
		if err := repos.Approvables().SaveWithLock(ctx, entity); err != nil {
			return err
		}

		actions = actions[:0]
		for _, de := range entity.GetDomainEvents() {
			ev, ok := de.(*governance.ApprovalEvent)
			if !ok {
				continue
			}
			if _, err := recordEntry(ctx, repos.AuditEvents(), s.metrics, ev.AuditEntry(meta)); err != nil {
				return err
			}
			actions = append(actions, ev.Action)
		}
		entity.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, action := range actions {
		s.metrics.ApprovalTransition(ctx, string(kind), action)
	}
	return toApprovalResult(entity), nil
}
