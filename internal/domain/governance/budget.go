package governance

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetContext holds the contract and budget totals of a project
type BudgetContext struct {
	ProjectID uuid.UUID
	// ContractTotal is the sum of base contracts plus approved change orders
	ContractTotal decimal.Decimal
	// BudgetTotal is the sum of budget lines
	BudgetTotal decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// OverBudgetPercent returns how far contracts exceed the budget, in percent
// rounded to two places. It returns nil when the project has no budget.
func OverBudgetPercent(contractTotal, budgetTotal decimal.Decimal) *decimal.Decimal {
	if budgetTotal.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	if contractTotal.LessThanOrEqual(budgetTotal) {
		zero := decimal.Zero
		return &zero
	}
	pct := contractTotal.Sub(budgetTotal).
		DivRound(budgetTotal, 16).
		Mul(hundred).
		Round(2)
	return &pct
}

// OverBudgetPercent returns the over-budget percent of the context
func (b *BudgetContext) OverBudgetPercent() *decimal.Decimal {
	if b == nil {
		return nil
	}
	return OverBudgetPercent(b.ContractTotal, b.BudgetTotal)
}
