package persistence

import (
	"context"
	"testing"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestGormCostPolicyRepository_FindByTenant_NotConfigured(t *testing.T) {
	repo := NewGormCostPolicyRepository(newTestDB(t))

	policy, err := repo.FindByTenant(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, policy)
}

func TestGormCostPolicyRepository_SaveLifecycle(t *testing.T) {
	repo := NewGormCostPolicyRepository(newTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()
	actorID := uuid.New()

	policy := governance.DefaultCostPolicy(tenantID)
	require.NoError(t, policy.Apply(governance.CostPolicyUpdate{
		CODualThresholdAmount:      decimalPtr("250000"),
		OverBudgetThresholdPercent: decimalPtr("5"),
	}, actorID))
	require.NoError(t, repo.Save(ctx, policy))
	assert.True(t, policy.Persisted)

	stored, err := repo.FindByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Version)
	assert.True(t, stored.CODualThresholdAmount.Equal(decimal.NewFromInt(250000)))
	assert.Nil(t, stored.CertificateDualThresholdAmount)
	assert.True(t, stored.OverBudgetThresholdPercent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, actorID, *stored.UpdatedBy)

	t.Run("update clears a threshold", func(t *testing.T) {
		require.NoError(t, stored.Apply(governance.CostPolicyUpdate{
			PaymentDualThresholdAmount: decimalPtr("1000"),
		}, actorID))
		require.NoError(t, repo.Save(ctx, stored))

		reloaded, err := repo.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, 2, reloaded.Version)
		assert.Nil(t, reloaded.CODualThresholdAmount)
		assert.Nil(t, reloaded.OverBudgetThresholdPercent)
		assert.True(t, reloaded.PaymentDualThresholdAmount.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("stale update is rejected", func(t *testing.T) {
		stale := policy.Clone()
		require.NoError(t, stale.Apply(governance.CostPolicyUpdate{}, actorID))
		err := repo.Save(ctx, stale)
		assert.ErrorIs(t, err, shared.ErrStaleState)
	})

	t.Run("concurrent first insert is rejected", func(t *testing.T) {
		other := governance.DefaultCostPolicy(tenantID)
		require.NoError(t, other.Apply(governance.CostPolicyUpdate{}, actorID))
		err := repo.Save(ctx, other)
		assert.ErrorIs(t, err, shared.ErrStaleState)
		assert.False(t, other.Persisted)
	})
}
