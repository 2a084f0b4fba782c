package models

import (
	"github.com/costgov/backend/internal/domain/governance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovableModel maps the governed columns shared by the change_orders,
// payment_certificates and actual_payments tables. It has no TableName;
// queries select the table with db.Table(kind.TableName()).
type ApprovableModel struct {
	TenantAggregateModel
	ProjectID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status               string          `gorm:"type:varchar(20);not null;default:'draft';index"`
	RequiresDualApproval bool            `gorm:"not null;default:false"`
	FirstApprovedBy      *uuid.UUID      `gorm:"type:uuid"`
	SecondApprovedBy     *uuid.UUID      `gorm:"type:uuid"`
}

// ToDomain converts the model to a domain ApprovableEntity of the given kind
func (m *ApprovableModel) ToDomain(kind governance.EntityKind) *governance.ApprovableEntity {
	return &governance.ApprovableEntity{
		TenantAggregateRoot:  m.TenantAggregateModel.ToDomain(),
		Kind:                 kind,
		ProjectID:            m.ProjectID,
		Amount:               m.Amount,
		Status:               governance.ApprovalStatus(m.Status),
		RequiresDualApproval: m.RequiresDualApproval,
		FirstApprovedBy:      m.FirstApprovedBy,
		SecondApprovedBy:     m.SecondApprovedBy,
	}
}

// ApprovableModelFromDomain creates a persistence model from a domain entity
func ApprovableModelFromDomain(e *governance.ApprovableEntity) *ApprovableModel {
	m := &ApprovableModel{
		ProjectID:            e.ProjectID,
		Amount:               e.Amount,
		Status:               string(e.Status),
		RequiresDualApproval: e.RequiresDualApproval,
		FirstApprovedBy:      e.FirstApprovedBy,
		SecondApprovedBy:     e.SecondApprovedBy,
	}
	m.FromDomainTenantAggregateRoot(e.TenantAggregateRoot)
	return m
}
