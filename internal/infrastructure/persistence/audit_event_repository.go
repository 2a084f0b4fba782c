package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const auditExportBatchSize = 500

// likeEscaper escapes LIKE wildcards so prefixes such as "user.roles_" match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GormAuditEventRepository implements governance.AuditEventRepository using GORM.
// It only ever inserts rows.
type GormAuditEventRepository struct {
	db *gorm.DB
}

// NewGormAuditEventRepository creates a new GormAuditEventRepository
func NewGormAuditEventRepository(db *gorm.DB) *GormAuditEventRepository {
	return &GormAuditEventRepository{db: db}
}

// Append inserts an event. The assigned sequence number is copied back.
func (r *GormAuditEventRepository) Append(ctx context.Context, event *governance.AuditEvent) error {
	model := models.AuditEventModelFromDomain(event)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	event.Seq = model.Seq
	return nil
}

// Query returns one page of events, newest first
func (r *GormAuditEventRepository) Query(ctx context.Context, filter governance.AuditFilter, page shared.PageRequest) ([]governance.AuditEvent, int64, error) {
	page = page.Normalize()
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.AuditEventModel{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []governance.AuditEvent{}, 0, nil
	}

	var rows []models.AuditEventModel
	if err := query.
		Order("created_at DESC").
		Order("seq DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	return toAuditEvents(rows), total, nil
}

// Each streams matching events oldest first in batches
func (r *GormAuditEventRepository) Each(ctx context.Context, filter governance.AuditFilter, fn func(*governance.AuditEvent) error) error {
	var batch []models.AuditEventModel
	var fnErr error
	result := r.applyFilter(r.db.WithContext(ctx).Model(&models.AuditEventModel{}), filter).
		Order("seq ASC").
		FindInBatches(&batch, auditExportBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if fnErr = fn(batch[i].ToDomain()); fnErr != nil {
					return fnErr
				}
			}
			return nil
		})
	if fnErr != nil {
		return fnErr
	}
	return result.Error
}

// FindPolicyCandidates returns events since the given time whose action or
// after-payload may mark an entity as blocked by policy
func (r *GormAuditEventRepository) FindPolicyCandidates(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]governance.AuditEvent, error) {
	conds := make([]string, 0, 2+len(governance.PolicyMarkerCodes()))
	args := make([]any, 0, cap(conds))
	for _, verb := range governance.BlockedVerbs() {
		conds = append(conds, `action LIKE ? ESCAPE '\'`)
		args = append(args, "%."+likeEscaper.Replace(verb))
	}
	for _, code := range governance.PolicyMarkerCodes() {
		conds = append(conds, `after_snapshot LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(code)+"%")
	}

	var rows []models.AuditEventModel
	if err := r.db.WithContext(ctx).
		Scopes(TenantScope(tenantID)).
		Where("created_at >= ?", since.UTC()).
		Where(strings.Join(conds, " OR "), args...).
		Order("created_at DESC").
		Order("seq DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAuditEvents(rows), nil
}

func (r *GormAuditEventRepository) applyFilter(query *gorm.DB, filter governance.AuditFilter) *gorm.DB {
	query = query.Scopes(TenantScope(filter.TenantID))

	if filter.UserID != nil {
		query = query.Where("actor_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", filter.DateTo.UTC())
	}
	if filter.Module != "" {
		prefixes := filter.Module.ActionPrefixes()
		conds := make([]string, 0, len(prefixes))
		args := make([]any, 0, len(prefixes))
		for _, prefix := range prefixes {
			conds = append(conds, `action LIKE ? ESCAPE '\'`)
			args = append(args, likeEscaper.Replace(prefix)+"%")
		}
		query = query.Where(strings.Join(conds, " OR "), args...)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		query = query.Where(`LOWER(action) LIKE ? ESCAPE '\' OR LOWER(entity_type) LIKE ? ESCAPE '\'`, pattern, pattern)
	}
	return query
}

func toAuditEvents(rows []models.AuditEventModel) []governance.AuditEvent {
	events := make([]governance.AuditEvent, len(rows))
	for i := range rows {
		events[i] = *rows[i].ToDomain()
	}
	return events
}
