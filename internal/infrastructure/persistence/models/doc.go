// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
//   - base.go: shared persistence fields (BaseModel, TenantAggregateModel)
//   - governance.go: audit ledger, cost policy and idempotency tables
//   - approvable.go: the governed columns of change orders, payment
//     certificates and actual payments
//   - project.go: read-only project, contract and budget line tables
package models
