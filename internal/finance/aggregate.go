// Package finance keeps the per-user ledger and its monthly aggregates.
package finance

import (
	"ordem/internal/core"
)

// Recompute derives the aggregate of month from the full transaction list.
// There is no incremental path: the result only depends on txs.
func Recompute(userID string, txs []core.Transaction, month core.MonthKey) core.MonthlyAggregate {
	agg := core.MonthlyAggregate{UserID: userID, Month: month}
	for _, t := range txs {
		if !month.Contains(t.Date) {
			continue
		}
		switch t.Category {
		case core.CategoryIncome:
			agg.Income = agg.Income.Add(t.Amount)
		case core.CategoryFixed:
			agg.Fixed = agg.Fixed.Add(t.Amount)
		case core.CategoryVariable:
			agg.Variable = agg.Variable.Add(t.Amount)
		case core.CategoryDebt:
			agg.Debt = agg.Debt.Add(t.Amount)
		case core.CategoryInvestment:
			agg.Investment = agg.Investment.Add(t.Amount)
		}
	}
	return agg
}

// BudgetUsage compares a budget with what was spent in its bucket.
type BudgetUsage struct {
	core.Budget
	Spent core.Money
	// Percent is Spent over Limit, rounded down.
	Percent int
	Over    bool
}

func Usage(agg core.MonthlyAggregate, budgets []core.Budget) []BudgetUsage {
	out := make([]BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		spent := agg.Total(b.Category)
		u := BudgetUsage{Budget: b, Spent: spent}
		if b.Limit.Cents > 0 {
			u.Percent = int(spent.Cents * 100 / b.Limit.Cents)
		}
		u.Over = spent.Cents > b.Limit.Cents
		out = append(out, u)
	}
	return out
}
