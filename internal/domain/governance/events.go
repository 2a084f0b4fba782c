package governance

import (
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeApprovable is the aggregate type of approval events
const AggregateTypeApprovable = "ApprovableEntity"

// PolicyViolation is the payload attached to blocked (or rejected) entries
type PolicyViolation struct {
	Code              string           `json:"code,omitempty"`
	Threshold         *decimal.Decimal `json:"threshold,omitempty"`
	OverBudgetPercent *decimal.Decimal `json:"over_budget_percent,omitempty"`
	Reason            string           `json:"reason,omitempty"`
}

func newPolicyViolation(eval Evaluation) *PolicyViolation {
	return &PolicyViolation{
		Code:              eval.Code,
		Threshold:         cloneDecimal(eval.Threshold),
		OverBudgetPercent: cloneDecimal(eval.OverBudgetPercent),
	}
}

// ApprovalEvent is raised on every approval transition and persisted to
// the audit ledger by the application layer
type ApprovalEvent struct {
	shared.BaseDomainEvent
	Kind      EntityKind       `json:"kind"`
	Action    string           `json:"action"`
	ActorID   uuid.UUID        `json:"actor_id"`
	ProjectID uuid.UUID        `json:"project_id"`
	Before    ApprovalSnapshot `json:"before"`
	After     ApprovalSnapshot `json:"after"`
	Violation *PolicyViolation `json:"violation,omitempty"`
}

// NewApprovalEvent creates an approval event for the entity
func NewApprovalEvent(e *ApprovableEntity, verb string, actorID uuid.UUID, before, after ApprovalSnapshot, violation *PolicyViolation) *ApprovalEvent {
	action := e.Kind.Action(verb)
	return &ApprovalEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(action, AggregateTypeApprovable, e.ID, e.TenantID),
		Kind:            e.Kind,
		Action:          action,
		ActorID:         actorID,
		ProjectID:       e.ProjectID,
		Before:          before,
		After:           after,
		Violation:       violation,
	}
}

// violationSnapshot flattens the violation next to the entity state so that
// code, amount and threshold sit at the top level of the after payload
type violationSnapshot struct {
	ApprovalSnapshot
	Code              string           `json:"code,omitempty"`
	Threshold         *decimal.Decimal `json:"threshold,omitempty"`
	OverBudgetPercent *decimal.Decimal `json:"over_budget_percent,omitempty"`
	Reason            string           `json:"reason,omitempty"`
}

// AuditEntry converts the event into a ledger entry
func (ev *ApprovalEvent) AuditEntry(meta RequestMeta) AuditEntry {
	projectID := ev.ProjectID
	var after any = ev.After
	if ev.Violation != nil {
		after = violationSnapshot{
			ApprovalSnapshot:  ev.After,
			Code:              ev.Violation.Code,
			Threshold:         ev.Violation.Threshold,
			OverBudgetPercent: ev.Violation.OverBudgetPercent,
			Reason:            ev.Violation.Reason,
		}
	}
	return AuditEntry{
		TenantID:   ev.TenantID(),
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		EntityType: string(ev.Kind),
		EntityID:   ev.AggregateID(),
		ProjectID:  &projectID,
		Before:     ev.Before,
		After:      after,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	}
}
