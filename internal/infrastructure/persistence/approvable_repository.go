package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormApprovableRepository implements governance.ApprovableRepository over
// the change_orders, payment_certificates and actual_payments tables
type GormApprovableRepository struct {
	db *gorm.DB
}

// NewGormApprovableRepository creates a new GormApprovableRepository
func NewGormApprovableRepository(db *gorm.DB) *GormApprovableRepository {
	return &GormApprovableRepository{db: db}
}

// FindByIDForTenant loads an approvable entity, or nil when it does not exist
func (r *GormApprovableRepository) FindByIDForTenant(ctx context.Context, kind governance.EntityKind, tenantID, id uuid.UUID) (*governance.ApprovableEntity, error) {
	var model models.ApprovableModel
	if err := r.db.WithContext(ctx).
		Table(kind.TableName()).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(kind), nil
}

// SaveWithLock writes the governed columns with optimistic locking
func (r *GormApprovableRepository) SaveWithLock(ctx context.Context, entity *governance.ApprovableEntity) error {
	entity.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Table(entity.Kind.TableName()).
		Where("id = ? AND tenant_id = ? AND version = ?", entity.ID, entity.TenantID, entity.Version-1).
		Updates(map[string]any{
			"status":                 string(entity.Status),
			"requires_dual_approval": entity.RequiresDualApproval,
			"first_approved_by":      entity.FirstApprovedBy,
			"second_approved_by":     entity.SecondApprovedBy,
			"version":                entity.Version,
			"updated_at":             entity.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrStaleState
	}
	return nil
}

// Ensure GormApprovableRepository implements the domain interface
var _ governance.ApprovableRepository = (*GormApprovableRepository)(nil)
