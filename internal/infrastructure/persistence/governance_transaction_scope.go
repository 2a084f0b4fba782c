package persistence

import (
	"context"

	"github.com/costgov/backend/internal/domain/governance"
	"gorm.io/gorm"
)

// GormTransactionScope implements governance.TransactionScope using GORM transactions.
// The approvable write and its audit events commit or roll back together.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos governance.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Approvables returns the approvable repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Approvables() governance.ApprovableRepository {
	return NewGormApprovableRepository(r.tx)
}

// Policies returns the cost policy repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Policies() governance.CostPolicyRepository {
	return NewGormCostPolicyRepository(r.tx)
}

// AuditEvents returns the audit ledger repository scoped to the current transaction.
func (r *gormTransactionalRepositories) AuditEvents() governance.AuditEventRepository {
	return NewGormAuditEventRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ governance.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ governance.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
