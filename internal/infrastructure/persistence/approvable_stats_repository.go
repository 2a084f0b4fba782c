package persistence

import (
	"context"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormApprovableStatsRepository implements governance.ApprovableStatsReader
type GormApprovableStatsRepository struct {
	db *gorm.DB
}

// NewGormApprovableStatsRepository creates a new GormApprovableStatsRepository
func NewGormApprovableStatsRepository(db *gorm.DB) *GormApprovableStatsRepository {
	return &GormApprovableStatsRepository{db: db}
}

// pendingStatuses are the statuses that wait for an approval decision
func pendingStatuses() []string {
	return []string{string(governance.StatusProposed), string(governance.StatusFirstApproved)}
}

// StatusCounts returns the total, pending and awaiting-dual counts of one kind
func (r *GormApprovableStatsRepository) StatusCounts(ctx context.Context, kind governance.EntityKind, tenantID uuid.UUID) (governance.StatusCounts, error) {
	var row struct {
		Total                int64
		PendingApproval      int64
		AwaitingDualApproval int64
	}
	err := r.db.WithContext(ctx).
		Table(kind.TableName()).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status IN ? THEN 1 ELSE 0 END), 0) AS pending_approval,
			COALESCE(SUM(CASE WHEN status IN ? AND requires_dual_approval THEN 1 ELSE 0 END), 0) AS awaiting_dual_approval`,
			pendingStatuses(), pendingStatuses()).
		Scopes(TenantScope(tenantID)).
		Scan(&row).Error
	if err != nil {
		return governance.StatusCounts{}, err
	}
	return governance.StatusCounts{
		Total:                row.Total,
		PendingApproval:      row.PendingApproval,
		AwaitingDualApproval: row.AwaitingDualApproval,
	}, nil
}

// PendingByProject returns pending counts grouped by project for one kind
func (r *GormApprovableStatsRepository) PendingByProject(ctx context.Context, kind governance.EntityKind, tenantID uuid.UUID) ([]governance.ProjectPendingCounts, error) {
	var rows []governance.ProjectPendingCounts
	err := r.db.WithContext(ctx).
		Table(kind.TableName()).
		Select(`project_id,
			COUNT(*) AS pending_approval,
			COALESCE(SUM(CASE WHEN requires_dual_approval THEN 1 ELSE 0 END), 0) AS awaiting_dual_approval`).
		Scopes(TenantScope(tenantID)).
		Where("status IN ?", pendingStatuses()).
		Group("project_id").
		Scan(&rows).Error
	return rows, err
}

// Ensure GormApprovableStatsRepository implements the domain interface
var _ governance.ApprovableStatsReader = (*GormApprovableStatsRepository)(nil)
