package governance

import (
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxOverBudgetThresholdPercent bounds the configurable over-budget threshold
var MaxOverBudgetThresholdPercent = decimal.NewFromInt(1000)

// CostPolicy holds a tenant's approval thresholds. A nil threshold means no limit.
type CostPolicy struct {
	ID                             uuid.UUID        `json:"id"`
	TenantID                       uuid.UUID        `json:"tenant_id"`
	CODualThresholdAmount          *decimal.Decimal `json:"co_dual_threshold_amount"`
	CertificateDualThresholdAmount *decimal.Decimal `json:"certificate_dual_threshold_amount"`
	PaymentDualThresholdAmount     *decimal.Decimal `json:"payment_dual_threshold_amount"`
	OverBudgetThresholdPercent     *decimal.Decimal `json:"over_budget_threshold_percent"`
	Version                        int              `json:"version"`
	UpdatedBy                      *uuid.UUID       `json:"updated_by,omitempty"`
	CreatedAt                      time.Time        `json:"created_at"`
	UpdatedAt                      time.Time        `json:"updated_at"`
	// Persisted is false for the implicit defaults of a tenant without a row
	Persisted bool `json:"-"`
}

// DefaultCostPolicy returns the policy of a tenant that never configured one
func DefaultCostPolicy(tenantID uuid.UUID) *CostPolicy {
	return &CostPolicy{TenantID: tenantID}
}

// CostPolicyUpdate is a full replacement of the configurable thresholds
type CostPolicyUpdate struct {
	CODualThresholdAmount          *decimal.Decimal
	CertificateDualThresholdAmount *decimal.Decimal
	PaymentDualThresholdAmount     *decimal.Decimal
	OverBudgetThresholdPercent     *decimal.Decimal
}

// Validate checks threshold ranges
func (u CostPolicyUpdate) Validate() error {
	amounts := map[string]*decimal.Decimal{
		"co_dual_threshold_amount":          u.CODualThresholdAmount,
		"certificate_dual_threshold_amount": u.CertificateDualThresholdAmount,
		"payment_dual_threshold_amount":     u.PaymentDualThresholdAmount,
	}
	for field, v := range amounts {
		if v != nil && v.IsNegative() {
			return shared.NewValidationError(field + " must not be negative")
		}
	}
	if p := u.OverBudgetThresholdPercent; p != nil {
		if p.IsNegative() {
			return shared.NewValidationError("over_budget_threshold_percent must not be negative")
		}
		if p.GreaterThan(MaxOverBudgetThresholdPercent) {
			return shared.NewValidationError("over_budget_threshold_percent must not exceed 1000")
		}
	}
	return nil
}

// Apply replaces the thresholds and bumps the version
func (p *CostPolicy) Apply(u CostPolicyUpdate, actorID uuid.UUID) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if !p.Persisted {
		p.ID = uuid.New()
		p.CreatedAt = now
	}
	p.CODualThresholdAmount = u.CODualThresholdAmount
	p.CertificateDualThresholdAmount = u.CertificateDualThresholdAmount
	p.PaymentDualThresholdAmount = u.PaymentDualThresholdAmount
	p.OverBudgetThresholdPercent = u.OverBudgetThresholdPercent
	p.UpdatedBy = &actorID
	p.UpdatedAt = now
	p.Version++
	return nil
}

// Clone returns a deep copy so snapshots are not aliased
func (p *CostPolicy) Clone() *CostPolicy {
	if p == nil {
		return nil
	}
	c := *p
	c.CODualThresholdAmount = cloneDecimal(p.CODualThresholdAmount)
	c.CertificateDualThresholdAmount = cloneDecimal(p.CertificateDualThresholdAmount)
	c.PaymentDualThresholdAmount = cloneDecimal(p.PaymentDualThresholdAmount)
	c.OverBudgetThresholdPercent = cloneDecimal(p.OverBudgetThresholdPercent)
	if p.UpdatedBy != nil {
		id := *p.UpdatedBy
		c.UpdatedBy = &id
	}
	return &c
}

// DualThresholdFor returns the dual-approval threshold of an entity kind
func (p *CostPolicy) DualThresholdFor(kind EntityKind) *decimal.Decimal {
	switch kind {
	case EntityKindChangeOrder:
		return p.CODualThresholdAmount
	case EntityKindCertificate:
		return p.CertificateDualThresholdAmount
	case EntityKindPayment:
		return p.PaymentDualThresholdAmount
	default:
		return nil
	}
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Decision is the outcome of evaluating a policy against a mutation
type Decision string

const (
	DecisionAllow               Decision = "allow"
	DecisionRequireDualApproval Decision = "require_dual_approval"
	DecisionBlock               Decision = "block"
)

// Payload codes stored on blocked ledger entries
const (
	PolicyCodeOverBudget        = "policy.over_budget"
	PolicyCodeThresholdExceeded = "policy.threshold_exceeded"
)

// Evaluation is the result of Evaluate with the figures that produced it
type Evaluation struct {
	Decision          Decision
	Code              string
	Amount            decimal.Decimal
	Threshold         *decimal.Decimal
	OverBudgetPercent *decimal.Decimal
	DualThreshold     *decimal.Decimal
}

// Evaluate decides how a mutation of the given kind and amount must be
// handled. Budget blocking applies only when the policy has an over-budget
// threshold and the project has budget data; it takes precedence over dual
// approval.
func Evaluate(policy *CostPolicy, kind EntityKind, amount decimal.Decimal, budget *BudgetContext) Evaluation {
	eval := Evaluation{Decision: DecisionAllow, Amount: amount}
	if policy == nil {
		return eval
	}

	if limit := policy.OverBudgetThresholdPercent; limit != nil {
		if pct := budget.OverBudgetPercent(); pct != nil {
			eval.OverBudgetPercent = pct
			if pct.GreaterThan(*limit) {
				eval.Decision = DecisionBlock
				eval.Code = PolicyCodeOverBudget
				eval.Threshold = cloneDecimal(limit)
				return eval
			}
		}
	}

	if threshold := policy.DualThresholdFor(kind); threshold != nil && amount.GreaterThan(*threshold) {
		eval.Decision = DecisionRequireDualApproval
		eval.DualThreshold = cloneDecimal(threshold)
	}
	return eval
}
