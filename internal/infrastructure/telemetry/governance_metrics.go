package telemetry

import (
	"context"

	govapp "github.com/costgov/backend/internal/application/governance"
	"go.opentelemetry.io/otel/metric"
)

// GovernanceMetrics records counters for the governance services
type GovernanceMetrics struct {
	idempotency *Counter
	decisions   *Counter
	transitions *Counter
	audit       *Counter
}

var _ govapp.Metrics = (*GovernanceMetrics)(nil)

// NewGovernanceMetrics creates the governance instruments on meter
func NewGovernanceMetrics(meter metric.Meter) (*GovernanceMetrics, error) {
	idempotency, err := NewCounter(meter, "governance_idempotency_outcome_total",
		"Idempotency guard outcomes (proceed, replay, conflict, in_progress)", "{request}")
	if err != nil {
		return nil, err
	}
	decisions, err := NewCounter(meter, "governance_policy_decision_total",
		"Cost policy decisions on submit", "{decision}")
	if err != nil {
		return nil, err
	}
	transitions, err := NewCounter(meter, "governance_approval_transition_total",
		"Approval state transitions", "{transition}")
	if err != nil {
		return nil, err
	}
	audit, err := NewCounter(meter, "governance_audit_event_total",
		"Audit ledger appends", "{event}")
	if err != nil {
		return nil, err
	}
	return &GovernanceMetrics{
		idempotency: idempotency,
		decisions:   decisions,
		transitions: transitions,
		audit:       audit,
	}, nil
}

// IdempotencyOutcome implements govapp.Metrics
func (m *GovernanceMetrics) IdempotencyOutcome(ctx context.Context, outcome string) {
	m.idempotency.Inc(ctx, AttrOutcome.String(outcome))
}

// PolicyDecision implements govapp.Metrics
func (m *GovernanceMetrics) PolicyDecision(ctx context.Context, kind, decision string) {
	m.decisions.Inc(ctx, AttrEntityKind.String(kind), AttrDecision.String(decision))
}

// ApprovalTransition implements govapp.Metrics
func (m *GovernanceMetrics) ApprovalTransition(ctx context.Context, kind, action string) {
	m.transitions.Inc(ctx, AttrEntityKind.String(kind), AttrAction.String(action))
}

// AuditAppended implements govapp.Metrics
func (m *GovernanceMetrics) AuditAppended(ctx context.Context, action string) {
	m.audit.Inc(ctx, AttrAction.String(action))
}
