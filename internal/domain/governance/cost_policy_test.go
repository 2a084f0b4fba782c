package governance

import (
	"testing"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEvaluate_DualThreshold(t *testing.T) {
	policy := &CostPolicy{CODualThresholdAmount: dec("100000")}

	t.Run("above threshold requires dual approval", func(t *testing.T) {
		eval := Evaluate(policy, EntityKindChangeOrder, decimal.NewFromInt(500000), nil)
		assert.Equal(t, DecisionRequireDualApproval, eval.Decision)
		assert.True(t, eval.DualThreshold.Equal(decimal.NewFromInt(100000)))
	})

	t.Run("equal to threshold is allowed", func(t *testing.T) {
		eval := Evaluate(policy, EntityKindChangeOrder, decimal.NewFromInt(100000), nil)
		assert.Equal(t, DecisionAllow, eval.Decision)
	})

	t.Run("null threshold never escalates", func(t *testing.T) {
		eval := Evaluate(policy, EntityKindPayment, decimal.NewFromInt(1_000_000_000), nil)
		assert.Equal(t, DecisionAllow, eval.Decision)
	})

	t.Run("nil policy allows", func(t *testing.T) {
		eval := Evaluate(nil, EntityKindCertificate, decimal.NewFromInt(1), nil)
		assert.Equal(t, DecisionAllow, eval.Decision)
	})
}

func TestEvaluate_OverBudget(t *testing.T) {
	policy := &CostPolicy{
		CODualThresholdAmount:      dec("100"),
		OverBudgetThresholdPercent: dec("5"),
	}
	over := &BudgetContext{ContractTotal: decimal.NewFromInt(120), BudgetTotal: decimal.NewFromInt(100)}

	t.Run("block wins over dual approval", func(t *testing.T) {
		eval := Evaluate(policy, EntityKindChangeOrder, decimal.NewFromInt(1000), over)
		assert.Equal(t, DecisionBlock, eval.Decision)
		assert.Equal(t, PolicyCodeOverBudget, eval.Code)
		assert.True(t, eval.Threshold.Equal(decimal.NewFromInt(5)))
		assert.True(t, eval.OverBudgetPercent.Equal(decimal.NewFromInt(20)))
	})

	t.Run("within tolerance falls through to threshold", func(t *testing.T) {
		within := &BudgetContext{ContractTotal: decimal.NewFromInt(104), BudgetTotal: decimal.NewFromInt(100)}
		eval := Evaluate(policy, EntityKindChangeOrder, decimal.NewFromInt(1000), within)
		assert.Equal(t, DecisionRequireDualApproval, eval.Decision)
	})

	t.Run("no budget context skips blocking", func(t *testing.T) {
		eval := Evaluate(policy, EntityKindChangeOrder, decimal.NewFromInt(50), nil)
		assert.Equal(t, DecisionAllow, eval.Decision)
	})

	t.Run("zero budget skips blocking", func(t *testing.T) {
		empty := &BudgetContext{ContractTotal: decimal.NewFromInt(500)}
		eval := Evaluate(policy, EntityKindChangeOrder, decimal.NewFromInt(50), empty)
		assert.Equal(t, DecisionAllow, eval.Decision)
		assert.Nil(t, eval.OverBudgetPercent)
	})
}

func TestCostPolicyUpdate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		update  CostPolicyUpdate
		wantErr bool
	}{
		{"all null", CostPolicyUpdate{}, false},
		{"valid values", CostPolicyUpdate{CODualThresholdAmount: dec("0"), OverBudgetThresholdPercent: dec("1000")}, false},
		{"negative amount", CostPolicyUpdate{PaymentDualThresholdAmount: dec("-1")}, true},
		{"negative percent", CostPolicyUpdate{OverBudgetThresholdPercent: dec("-0.01")}, true},
		{"percent above cap", CostPolicyUpdate{OverBudgetThresholdPercent: dec("1000.01")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if tt.wantErr {
				var de *shared.DomainError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, shared.CodeValidation, de.Code)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCostPolicy_Apply(t *testing.T) {
	tenantID := uuid.New()
	actor := uuid.New()
	policy := DefaultCostPolicy(tenantID)

	require.NoError(t, policy.Apply(CostPolicyUpdate{CODualThresholdAmount: dec("10")}, actor))
	assert.NotEqual(t, uuid.Nil, policy.ID)
	assert.Equal(t, 1, policy.Version)
	assert.Equal(t, actor, *policy.UpdatedBy)

	before := policy.Clone()
	err := policy.Apply(CostPolicyUpdate{OverBudgetThresholdPercent: dec("2000")}, actor)
	require.Error(t, err)
	assert.Equal(t, before, policy, "failed update must not change the policy")
}
