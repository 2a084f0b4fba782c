package persistence

import (
	"context"
	"errors"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCostPolicyRepository implements governance.CostPolicyRepository using GORM
type GormCostPolicyRepository struct {
	db *gorm.DB
}

// NewGormCostPolicyRepository creates a new GormCostPolicyRepository
func NewGormCostPolicyRepository(db *gorm.DB) *GormCostPolicyRepository {
	return &GormCostPolicyRepository{db: db}
}

// FindByTenant returns the tenant's policy, or nil when none is stored
func (r *GormCostPolicyRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error) {
	var model models.CostPolicyModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts a new policy or updates the stored one if its version is
// still policy.Version-1. Losing either race returns shared.ErrStaleState.
func (r *GormCostPolicyRepository) Save(ctx context.Context, policy *governance.CostPolicy) error {
	model := models.CostPolicyModelFromDomain(policy)

	if !policy.Persisted {
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}},
				DoNothing: true,
			}).
			Create(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrStaleState
		}
		policy.Persisted = true
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.CostPolicyModel{}).
		Where("tenant_id = ? AND version = ?", policy.TenantID, policy.Version-1).
		Updates(map[string]any{
			"co_dual_threshold_amount":          model.CODualThresholdAmount,
			"certificate_dual_threshold_amount": model.CertificateDualThresholdAmount,
			"payment_dual_threshold_amount":     model.PaymentDualThresholdAmount,
			"over_budget_threshold_percent":     model.OverBudgetThresholdPercent,
			"version":                           model.Version,
			"updated_by":                        model.UpdatedBy,
			"updated_at":                        model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrStaleState
	}
	return nil
}

// Ensure GormCostPolicyRepository implements the domain interface
var _ governance.CostPolicyRepository = (*GormCostPolicyRepository)(nil)
