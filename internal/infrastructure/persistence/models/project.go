package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProjectModel is the read-only view of the projects table
type ProjectModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (ProjectModel) TableName() string {
	return "projects"
}

// ContractModel is the read-only view of base contracts
type ContractModel struct {
	BaseModel
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProjectID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (ContractModel) TableName() string {
	return "contracts"
}

// BudgetLineModel is the read-only view of project budget lines
type BudgetLineModel struct {
	BaseModel
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProjectID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (BudgetLineModel) TableName() string {
	return "budget_lines"
}
