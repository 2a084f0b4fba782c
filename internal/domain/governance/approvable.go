package governance

import (
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityKind identifies which externally owned approvable entity is handled
type EntityKind string

const (
	EntityKindChangeOrder EntityKind = "change_order"
	EntityKindCertificate EntityKind = "certificate"
	EntityKindPayment     EntityKind = "payment"
)

// AllEntityKinds returns every approvable kind in dashboard order
func AllEntityKinds() []EntityKind {
	return []EntityKind{EntityKindChangeOrder, EntityKindCertificate, EntityKindPayment}
}

// ParseEntityKind resolves a kind from its name or its URL segment
func ParseEntityKind(s string) (EntityKind, bool) {
	switch s {
	case "change_order", "change-orders", "change_orders", "co":
		return EntityKindChangeOrder, true
	case "certificate", "certificates", "payment-certificates":
		return EntityKindCertificate, true
	case "payment", "payments", "actual-payments":
		return EntityKindPayment, true
	}
	return "", false
}

// ActionPrefix is the ledger namespace of the kind, e.g. "co" in co.approved
func (k EntityKind) ActionPrefix() string {
	if k == EntityKindChangeOrder {
		return "co"
	}
	return string(k)
}

// Action builds a namespaced ledger action for the kind
func (k EntityKind) Action(verb string) string {
	return k.ActionPrefix() + "." + verb
}

// SummaryKey is the key used for the kind in the governance overview
func (k EntityKind) SummaryKey() string {
	switch k {
	case EntityKindChangeOrder:
		return "change_orders"
	case EntityKindCertificate:
		return "certificates"
	default:
		return "payments"
	}
}

// TableName is the table that stores the externally owned entities
func (k EntityKind) TableName() string {
	switch k {
	case EntityKindChangeOrder:
		return "change_orders"
	case EntityKindCertificate:
		return "payment_certificates"
	default:
		return "actual_payments"
	}
}

// Permission returns the permission key guarding an operation on the kind
func (k EntityKind) Permission(op string) string {
	return k.ActionPrefix() + "." + op
}

// Ledger verbs recorded for approval transitions
const (
	VerbSubmitted       = "submitted"
	VerbPolicyBlocked   = "policy_blocked"
	VerbApprovalBlocked = "approval_blocked"
	VerbFirstApproved   = "first_approved"
	VerbApproved        = "approved"
	VerbRejected        = "rejected"
)

// BlockedVerbs lists the verbs that mark an entity as blocked by policy
func BlockedVerbs() []string {
	return []string{VerbPolicyBlocked, VerbApprovalBlocked}
}

// ApprovalStatus is the lifecycle state of an approvable entity
type ApprovalStatus string

const (
	StatusDraft         ApprovalStatus = "draft"
	StatusProposed      ApprovalStatus = "proposed"
	StatusFirstApproved ApprovalStatus = "first_approved"
	StatusApproved      ApprovalStatus = "approved"
	StatusBlocked       ApprovalStatus = "blocked"
	StatusRejected      ApprovalStatus = "rejected"
)

// IsTerminal reports whether no further transition is possible
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusBlocked || s == StatusRejected
}

// IsPending reports whether the entity waits for an approval decision
func (s ApprovalStatus) IsPending() bool {
	return s == StatusProposed || s == StatusFirstApproved
}

// ApprovableEntity is the governance view of a change order, payment
// certificate or actual payment. Only status and approver fields are written.
type ApprovableEntity struct {
	shared.TenantAggregateRoot
	Kind                 EntityKind
	ProjectID            uuid.UUID
	Amount               decimal.Decimal
	Status               ApprovalStatus
	RequiresDualApproval bool
	FirstApprovedBy      *uuid.UUID
	SecondApprovedBy     *uuid.UUID
}

// ApprovalSnapshot is the before/after payload stored in the ledger
type ApprovalSnapshot struct {
	Status               ApprovalStatus  `json:"status"`
	Amount               decimal.Decimal `json:"amount"`
	RequiresDualApproval bool            `json:"requires_dual_approval"`
	FirstApprovedBy      *uuid.UUID      `json:"first_approved_by"`
	SecondApprovedBy     *uuid.UUID      `json:"second_approved_by"`
	Version              int             `json:"version"`
}

// Snapshot captures the governed fields
func (e *ApprovableEntity) Snapshot() ApprovalSnapshot {
	return ApprovalSnapshot{
		Status:               e.Status,
		Amount:               e.Amount,
		RequiresDualApproval: e.RequiresDualApproval,
		FirstApprovedBy:      copyID(e.FirstApprovedBy),
		SecondApprovedBy:     copyID(e.SecondApprovedBy),
		Version:              e.Version,
	}
}

// CanSubmit returns true if the entity can be (re)submitted
func (e *ApprovableEntity) CanSubmit() bool {
	return e.Status == StatusDraft || e.Status == StatusProposed
}

// CanApprove returns true if the entity is waiting for an approval
func (e *ApprovableEntity) CanApprove() bool {
	return e.Status.IsPending()
}

// Submit moves the entity into review and applies the policy evaluation
func (e *ApprovableEntity) Submit(actorID uuid.UUID, eval Evaluation) error {
	if !e.CanSubmit() {
		return shared.NewDomainError(shared.CodeInvalidState, "Can only submit "+string(e.Kind)+" in draft or proposed status")
	}

	before := e.Snapshot()
	e.Status = StatusProposed
	// no approver slot is filled while proposed, so the flag follows the latest evaluation
	e.RequiresDualApproval = eval.Decision == DecisionRequireDualApproval
	e.IncrementVersion()
	e.AddDomainEvent(NewApprovalEvent(e, VerbSubmitted, actorID, before, e.Snapshot(), nil))

	if eval.Decision == DecisionBlock {
		proposed := e.Snapshot()
		e.Status = StatusBlocked
		e.AddDomainEvent(NewApprovalEvent(e, VerbPolicyBlocked, actorID, proposed, e.Snapshot(), newPolicyViolation(eval)))
	}
	return nil
}

// Approve records an approval by actorID. With dual approval the first
// approver is refused with ErrSameApprover in any later status.
func (e *ApprovableEntity) Approve(actorID uuid.UUID) error {
	if e.RequiresDualApproval && e.FirstApprovedBy != nil && *e.FirstApprovedBy == actorID {
		return shared.ErrSameApprover
	}
	if !e.CanApprove() {
		return shared.NewDomainError(shared.CodeInvalidState, "Can only approve "+string(e.Kind)+" in proposed or first_approved status")
	}

	before := e.Snapshot()
	verb := VerbApproved
	switch {
	case !e.RequiresDualApproval:
		e.Status = StatusApproved
	case e.FirstApprovedBy == nil:
		id := actorID
		e.FirstApprovedBy = &id
		e.Status = StatusFirstApproved
		verb = VerbFirstApproved
	default:
		id := actorID
		e.SecondApprovedBy = &id
		e.Status = StatusApproved
	}

	e.IncrementVersion()
	e.AddDomainEvent(NewApprovalEvent(e, verb, actorID, before, e.Snapshot(), nil))
	return nil
}

// Reject closes the review without approval
func (e *ApprovableEntity) Reject(actorID uuid.UUID, reason string) error {
	if !e.CanApprove() {
		return shared.NewDomainError(shared.CodeInvalidState, "Can only reject "+string(e.Kind)+" in proposed or first_approved status")
	}
	before := e.Snapshot()
	e.Status = StatusRejected
	e.IncrementVersion()

	var violation *PolicyViolation
	if reason != "" {
		violation = &PolicyViolation{Reason: reason}
	}
	e.AddDomainEvent(NewApprovalEvent(e, VerbRejected, actorID, before, e.Snapshot(), violation))
	return nil
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
