package models

import (
	"encoding/json"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditEventModel is an audit ledger row. Seq preserves insertion order for
// events sharing a timestamp. Snapshots are stored as JSON text.
type AuditEventModel struct {
	Seq        int64      `gorm:"column:seq;primaryKey;autoIncrement"`
	ID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_events_tenant_created,priority:1"`
	ActorID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Action     string     `gorm:"type:varchar(100);not null;index"`
	EntityType string     `gorm:"type:varchar(50);not null"`
	EntityID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProjectID  *uuid.UUID `gorm:"type:uuid;index"`
	Before     *string    `gorm:"column:before_snapshot;type:text"`
	After      *string    `gorm:"column:after_snapshot;type:text"`
	IP         string     `gorm:"column:ip;type:varchar(45)"`
	UserAgent  string     `gorm:"type:varchar(500)"`
	CreatedAt  time.Time  `gorm:"not null;index:idx_audit_events_tenant_created,priority:2"`
}

// TableName returns the table name for GORM
func (AuditEventModel) TableName() string {
	return "audit_events"
}

func rawToText(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func textToRaw(s *string) json.RawMessage {
	if s == nil || *s == "" {
		return nil
	}
	return json.RawMessage(*s)
}

// ToDomain converts the model to a domain AuditEvent
func (m *AuditEventModel) ToDomain() *governance.AuditEvent {
	return &governance.AuditEvent{
		Seq:        m.Seq,
		ID:         m.ID,
		TenantID:   m.TenantID,
		ActorID:    m.ActorID,
		Action:     m.Action,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		ProjectID:  m.ProjectID,
		Before:     textToRaw(m.Before),
		After:      textToRaw(m.After),
		IP:         m.IP,
		UserAgent:  m.UserAgent,
		CreatedAt:  m.CreatedAt,
	}
}

// AuditEventModelFromDomain creates a persistence model from a domain event
func AuditEventModelFromDomain(e *governance.AuditEvent) *AuditEventModel {
	return &AuditEventModel{
		ID:         e.ID,
		TenantID:   e.TenantID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ProjectID:  e.ProjectID,
		Before:     rawToText(e.Before),
		After:      rawToText(e.After),
		IP:         e.IP,
		UserAgent:  e.UserAgent,
		CreatedAt:  e.CreatedAt,
	}
}

// CostPolicyModel stores a tenant's cost policy
type CostPolicyModel struct {
	BaseModel
	TenantID                       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex"`
	CODualThresholdAmount          decimal.NullDecimal `gorm:"column:co_dual_threshold_amount;type:decimal(18,2)"`
	CertificateDualThresholdAmount decimal.NullDecimal `gorm:"column:certificate_dual_threshold_amount;type:decimal(18,2)"`
	PaymentDualThresholdAmount     decimal.NullDecimal `gorm:"column:payment_dual_threshold_amount;type:decimal(18,2)"`
	OverBudgetThresholdPercent     decimal.NullDecimal `gorm:"column:over_budget_threshold_percent;type:decimal(7,2)"`
	Version                        int                 `gorm:"not null;default:1"`
	UpdatedBy                      *uuid.UUID          `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (CostPolicyModel) TableName() string {
	return "cost_policies"
}

func nullToPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func ptrToNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// ToDomain converts the model to a domain CostPolicy
func (m *CostPolicyModel) ToDomain() *governance.CostPolicy {
	return &governance.CostPolicy{
		ID:                             m.ID,
		TenantID:                       m.TenantID,
		CODualThresholdAmount:          nullToPtr(m.CODualThresholdAmount),
		CertificateDualThresholdAmount: nullToPtr(m.CertificateDualThresholdAmount),
		PaymentDualThresholdAmount:     nullToPtr(m.PaymentDualThresholdAmount),
		OverBudgetThresholdPercent:     nullToPtr(m.OverBudgetThresholdPercent),
		Version:                        m.Version,
		UpdatedBy:                      m.UpdatedBy,
		CreatedAt:                      m.CreatedAt,
		UpdatedAt:                      m.UpdatedAt,
		Persisted:                      true,
	}
}

// CostPolicyModelFromDomain creates a persistence model from a domain policy
func CostPolicyModelFromDomain(p *governance.CostPolicy) *CostPolicyModel {
	return &CostPolicyModel{
		BaseModel: BaseModel{
			ID:        p.ID,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		},
		TenantID:                       p.TenantID,
		CODualThresholdAmount:          ptrToNull(p.CODualThresholdAmount),
		CertificateDualThresholdAmount: ptrToNull(p.CertificateDualThresholdAmount),
		PaymentDualThresholdAmount:     ptrToNull(p.PaymentDualThresholdAmount),
		OverBudgetThresholdPercent:     ptrToNull(p.OverBudgetThresholdPercent),
		Version:                        p.Version,
		UpdatedBy:                      p.UpdatedBy,
	}
}

// IdempotencyRecordModel stores one idempotency key per tenant
type IdempotencyRecordModel struct {
	TenantID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	IdempotencyKey      string    `gorm:"type:varchar(255);primaryKey"`
	Fingerprint         string    `gorm:"type:varchar(64);not null"`
	Status              string    `gorm:"type:varchar(20);not null"`
	ResponseStatus      int
	ResponseContentType string `gorm:"type:varchar(100)"`
	ResponseBody        []byte
	CreatedAt           time.Time `gorm:"not null"`
	ExpiresAt           time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (IdempotencyRecordModel) TableName() string {
	return "idempotency_records"
}

// ToDomain converts the model to a domain IdempotencyRecord
func (m *IdempotencyRecordModel) ToDomain() *shared.IdempotencyRecord {
	rec := &shared.IdempotencyRecord{
		TenantID:    m.TenantID,
		Key:         m.IdempotencyKey,
		Fingerprint: m.Fingerprint,
		Status:      shared.IdempotencyStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}
	if rec.Status == shared.IdempotencyCommitted {
		rec.Response = &shared.ResponseSnapshot{
			StatusCode:  m.ResponseStatus,
			ContentType: m.ResponseContentType,
			Body:        m.ResponseBody,
		}
	}
	return rec
}

// IdempotencyRecordModelFromDomain creates a persistence model from a domain record
func IdempotencyRecordModelFromDomain(r *shared.IdempotencyRecord) *IdempotencyRecordModel {
	m := &IdempotencyRecordModel{
		TenantID:       r.TenantID,
		IdempotencyKey: r.Key,
		Fingerprint:    r.Fingerprint,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
	if r.Response != nil {
		m.ResponseStatus = r.Response.StatusCode
		m.ResponseContentType = r.Response.ContentType
		m.ResponseBody = r.Response.Body
	}
	return m
}
