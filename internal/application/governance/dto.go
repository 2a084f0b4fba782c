package governance

import (
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditQuery holds the audit event filters accepted from callers. The tenant
// always comes from the actor.
type AuditQuery struct {
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	ProjectID  *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
	Module     string
	Search     string
}

func (q AuditQuery) toFilter(tenantID uuid.UUID) (governance.AuditFilter, error) {
	filter := governance.AuditFilter{
		TenantID:   tenantID,
		UserID:     q.UserID,
		Action:     q.Action,
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		ProjectID:  q.ProjectID,
		DateFrom:   q.DateFrom,
		DateTo:     q.DateTo,
		Search:     q.Search,
	}
	if q.Module != "" {
		m, ok := governance.ParseAuditModule(q.Module)
		if !ok {
			return filter, shared.NewValidationError("module must be one of RBAC, Cost, Documents, Tasks")
		}
		filter.Module = m
	}
	return filter, filter.Validate()
}

// ArchiveRequest selects the events written to an audit archive
type ArchiveRequest struct {
	Query AuditQuery
}

// ArchiveResult describes an uploaded audit archive
type ArchiveResult struct {
	ArchiveID   uuid.UUID `json:"archive_id"`
	StorageKey  string    `json:"storage_key"`
	EventCount  int       `json:"event_count"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PolicyResponse is the cost policy returned to callers. IsDefault is set
// when the tenant never saved a policy.
type PolicyResponse struct {
	TenantID                       uuid.UUID        `json:"tenant_id"`
	CODualThresholdAmount          *decimal.Decimal `json:"co_dual_threshold_amount"`
	CertificateDualThresholdAmount *decimal.Decimal `json:"certificate_dual_threshold_amount"`
	PaymentDualThresholdAmount     *decimal.Decimal `json:"payment_dual_threshold_amount"`
	OverBudgetThresholdPercent     *decimal.Decimal `json:"over_budget_threshold_percent"`
	Version                        int              `json:"version"`
	UpdatedBy                      *uuid.UUID       `json:"updated_by"`
	UpdatedAt                      *time.Time       `json:"updated_at"`
	IsDefault                      bool             `json:"is_default"`
}

// ToPolicyResponse converts a domain policy
func ToPolicyResponse(p *governance.CostPolicy) PolicyResponse {
	resp := PolicyResponse{
		TenantID:                       p.TenantID,
		CODualThresholdAmount:          p.CODualThresholdAmount,
		CertificateDualThresholdAmount: p.CertificateDualThresholdAmount,
		PaymentDualThresholdAmount:     p.PaymentDualThresholdAmount,
		OverBudgetThresholdPercent:     p.OverBudgetThresholdPercent,
		Version:                        p.Version,
		UpdatedBy:                      p.UpdatedBy,
		IsDefault:                      !p.Persisted,
	}
	if p.Persisted {
		t := p.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

// ApprovalResult is the entity state after an approval transition
type ApprovalResult struct {
	ID                   uuid.UUID                 `json:"id"`
	Kind                 governance.EntityKind     `json:"entity_type"`
	ProjectID            uuid.UUID                 `json:"project_id"`
	Amount               decimal.Decimal           `json:"amount"`
	Status               governance.ApprovalStatus `json:"status"`
	RequiresDualApproval bool                      `json:"requires_dual_approval"`
	FirstApprovedBy      *uuid.UUID                `json:"first_approved_by"`
	SecondApprovedBy     *uuid.UUID                `json:"second_approved_by"`
	Version              int                       `json:"version"`
	Decision             governance.Decision       `json:"decision,omitempty"`
	PolicyCode           string                    `json:"policy_code,omitempty"`
}

func toApprovalResult(e *governance.ApprovableEntity) *ApprovalResult {
	return &ApprovalResult{
		ID:                   e.ID,
		Kind:                 e.Kind,
		ProjectID:            e.ProjectID,
		Amount:               e.Amount,
		Status:               e.Status,
		RequiresDualApproval: e.RequiresDualApproval,
		FirstApprovedBy:      e.FirstApprovedBy,
		SecondApprovedBy:     e.SecondApprovedBy,
		Version:              e.Version,
	}
}
