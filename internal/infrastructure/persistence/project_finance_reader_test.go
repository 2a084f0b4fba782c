package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedProject(t *testing.T, db *gorm.DB, tenantID uuid.UUID, name string, contracts, budgetLines []string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	base := func() models.BaseModel {
		return models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	}

	project := &models.ProjectModel{BaseModel: base(), TenantID: tenantID, Name: name}
	require.NoError(t, db.Create(project).Error)
	for _, amount := range contracts {
		require.NoError(t, db.Create(&models.ContractModel{
			BaseModel: base(), TenantID: tenantID, ProjectID: project.ID, Amount: decimal.RequireFromString(amount),
		}).Error)
	}
	for _, amount := range budgetLines {
		require.NoError(t, db.Create(&models.BudgetLineModel{
			BaseModel: base(), TenantID: tenantID, ProjectID: project.ID, Amount: decimal.RequireFromString(amount),
		}).Error)
	}
	return project.ID
}

func TestGormProjectFinanceReader_BudgetContexts(t *testing.T) {
	db := newTestDB(t)
	reader := NewGormProjectFinanceReader(db)
	ctx := context.Background()
	tenantID := uuid.New()

	projectID := seedProject(t, db, tenantID, "Tower A", []string{"800000", "300000"}, []string{"600000", "400000"})
	seedApprovable(t, db, governance.EntityKindChangeOrder, tenantID, projectID, "50000", governance.StatusApproved)
	seedApprovable(t, db, governance.EntityKindChangeOrder, tenantID, projectID, "90000", governance.StatusProposed)
	emptyID := seedProject(t, db, tenantID, "Empty", nil, nil)

	contexts, err := reader.BudgetContexts(ctx, tenantID, []uuid.UUID{projectID, emptyID})
	require.NoError(t, err)

	bc := contexts[projectID]
	require.NotNil(t, bc)
	assert.True(t, bc.ContractTotal.Equal(decimal.NewFromInt(1150000)), "contracts plus approved change orders, got %s", bc.ContractTotal)
	assert.True(t, bc.BudgetTotal.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, bc.OverBudgetPercent().Equal(decimal.NewFromInt(15)))

	assert.Nil(t, contexts[emptyID].OverBudgetPercent())

	t.Run("tenant isolation", func(t *testing.T) {
		contexts, err := reader.BudgetContexts(ctx, uuid.New(), []uuid.UUID{projectID})
		require.NoError(t, err)
		assert.Empty(t, contexts)
	})

	t.Run("no projects", func(t *testing.T) {
		contexts, err := reader.BudgetContexts(ctx, tenantID, nil)
		require.NoError(t, err)
		assert.Empty(t, contexts)
	})
}

func TestGormProjectFinanceReader_ProjectNames(t *testing.T) {
	db := newTestDB(t)
	reader := NewGormProjectFinanceReader(db)
	tenantID := uuid.New()

	a := seedProject(t, db, tenantID, "Tower A", nil, nil)
	b := seedProject(t, db, tenantID, "Bridge", nil, nil)

	names, err := reader.ProjectNames(context.Background(), tenantID, []uuid.UUID{a, b, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{a: "Tower A", b: "Bridge"}, names)
}

func TestGormProjectFinanceReader_BudgetedProjects(t *testing.T) {
	db := newTestDB(t)
	reader := NewGormProjectFinanceReader(db)
	tenantID := uuid.New()

	budgeted := seedProject(t, db, tenantID, "Tower A", []string{"125"}, []string{"60", "40"})
	seedProject(t, db, tenantID, "Contracts only", []string{"10"}, nil)
	seedProject(t, db, uuid.New(), "Other tenant", nil, []string{"10"})

	ids, err := reader.BudgetedProjects(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{budgeted}, ids)
}

func TestGormApprovableStatsRepository(t *testing.T) {
	db := newTestDB(t)
	stats := NewGormApprovableStatsRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	projectA := uuid.New()
	projectB := uuid.New()

	seedApprovable(t, db, governance.EntityKindPayment, tenantID, projectA, "10", governance.StatusProposed)
	seedApprovable(t, db, governance.EntityKindPayment, tenantID, projectA, "10", governance.StatusApproved)
	seedApprovable(t, db, governance.EntityKindPayment, tenantID, projectB, "10", governance.StatusDraft)
	dual := seedApprovable(t, db, governance.EntityKindPayment, tenantID, projectB, "10", governance.StatusFirstApproved)
	require.NoError(t, db.Table("actual_payments").Where("id = ?", dual).Update("requires_dual_approval", true).Error)
	seedApprovable(t, db, governance.EntityKindPayment, uuid.New(), projectB, "10", governance.StatusProposed)

	counts, err := stats.StatusCounts(ctx, governance.EntityKindPayment, tenantID)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusCounts{Total: 4, PendingApproval: 2, AwaitingDualApproval: 1}, counts)

	rows, err := stats.PendingByProject(ctx, governance.EntityKindPayment, tenantID)
	require.NoError(t, err)
	byProject := make(map[uuid.UUID]governance.ProjectPendingCounts)
	for _, r := range rows {
		byProject[r.ProjectID] = r
	}
	assert.Equal(t, int64(1), byProject[projectA].PendingApproval)
	assert.Equal(t, int64(0), byProject[projectA].AwaitingDualApproval)
	assert.Equal(t, int64(1), byProject[projectB].PendingApproval)
	assert.Equal(t, int64(1), byProject[projectB].AwaitingDualApproval)

	empty, err := stats.StatusCounts(ctx, governance.EntityKindCertificate, tenantID)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
}

func TestGormTransactionScope_RollsBackTogether(t *testing.T) {
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	tenantID := uuid.New()
	actorID := uuid.New()

	id := seedApprovable(t, db, governance.EntityKindChangeOrder, tenantID, uuid.New(), "100", governance.StatusDraft)

	err := scope.Execute(ctx, func(repos governance.TransactionalRepositories) error {
		entity, err := repos.Approvables().FindByIDForTenant(ctx, governance.EntityKindChangeOrder, tenantID, id)
		if err != nil {
			return err
		}
		if err := entity.Submit(actorID, governance.Evaluation{Decision: governance.DecisionAllow}); err != nil {
			return err
		}
		if err := repos.Approvables().SaveWithLock(ctx, entity); err != nil {
			return err
		}
		ev, err := governance.NewAuditEvent(governance.AuditEntry{
			TenantID: tenantID, ActorID: actorID, Action: "co.submitted", EntityType: "change_order", EntityID: id,
		})
		if err != nil {
			return err
		}
		if err := repos.AuditEvents().Append(ctx, ev); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	entity, err := NewGormApprovableRepository(db).FindByIDForTenant(ctx, governance.EntityKindChangeOrder, tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusDraft, entity.Status)
	assert.Equal(t, 1, entity.Version)

	_, total, err := NewGormAuditEventRepository(db).Query(ctx, governance.AuditFilter{TenantID: tenantID}, shared.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
