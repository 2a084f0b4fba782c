package persistence

import (
	"context"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// projectSum is one row of a per-project SUM query
type projectSum struct {
	ProjectID uuid.UUID
	Total     decimal.Decimal
}

// GormProjectFinanceReader implements governance.ProjectFinanceReader against
// the primary database
type GormProjectFinanceReader struct {
	db *gorm.DB
}

// NewGormProjectFinanceReader creates a new GormProjectFinanceReader
func NewGormProjectFinanceReader(db *gorm.DB) *GormProjectFinanceReader {
	return &GormProjectFinanceReader{db: db}
}

// BudgetContexts computes contract and budget totals per project. The
// contract total is base contracts plus approved change orders.
func (r *GormProjectFinanceReader) BudgetContexts(ctx context.Context, tenantID uuid.UUID, projectIDs []uuid.UUID) (map[uuid.UUID]*governance.BudgetContext, error) {
	result := make(map[uuid.UUID]*governance.BudgetContext, len(projectIDs))
	if len(projectIDs) == 0 {
		return result, nil
	}

	entry := func(id uuid.UUID) *governance.BudgetContext {
		bc, ok := result[id]
		if !ok {
			bc = &governance.BudgetContext{ProjectID: id}
			result[id] = bc
		}
		return bc
	}

	contracts, err := r.sumByProject(ctx, r.db.Model(&models.ContractModel{}), tenantID, projectIDs)
	if err != nil {
		return nil, err
	}
	for _, row := range contracts {
		bc := entry(row.ProjectID)
		bc.ContractTotal = bc.ContractTotal.Add(row.Total)
	}

	changeOrders, err := r.sumByProject(ctx,
		r.db.Table(governance.EntityKindChangeOrder.TableName()).Where("status = ?", string(governance.StatusApproved)),
		tenantID, projectIDs)
	if err != nil {
		return nil, err
	}
	for _, row := range changeOrders {
		bc := entry(row.ProjectID)
		bc.ContractTotal = bc.ContractTotal.Add(row.Total)
	}

	budgets, err := r.sumByProject(ctx, r.db.Model(&models.BudgetLineModel{}), tenantID, projectIDs)
	if err != nil {
		return nil, err
	}
	for _, row := range budgets {
		bc := entry(row.ProjectID)
		bc.BudgetTotal = bc.BudgetTotal.Add(row.Total)
	}

	return result, nil
}

func (r *GormProjectFinanceReader) sumByProject(ctx context.Context, query *gorm.DB, tenantID uuid.UUID, projectIDs []uuid.UUID) ([]projectSum, error) {
	var rows []projectSum
	err := query.WithContext(ctx).
		Select("project_id, COALESCE(SUM(amount), 0) AS total").
		Where("tenant_id = ? AND project_id IN ?", tenantID, projectIDs).
		Group("project_id").
		Scan(&rows).Error
	return rows, err
}

// BudgetedProjects lists the tenant's projects that have budget lines
func (r *GormProjectFinanceReader) BudgetedProjects(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.BudgetLineModel{}).
		Where("tenant_id = ?", tenantID).
		Distinct().
		Pluck("project_id", &ids).Error
	return ids, err
}

// ProjectNames resolves project names by ID
func (r *GormProjectFinanceReader) ProjectNames(ctx context.Context, tenantID uuid.UUID, projectIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return names, nil
	}

	var projects []models.ProjectModel
	if err := r.db.WithContext(ctx).
		Select("id", "name").
		Scopes(TenantScope(tenantID)).
		Where("id IN ?", projectIDs).
		Find(&projects).Error; err != nil {
		return nil, err
	}
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}

// Ensure GormProjectFinanceReader implements the domain interface
var _ governance.ProjectFinanceReader = (*GormProjectFinanceReader)(nil)
