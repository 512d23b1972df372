// Package analysis computes aggregate financial metrics from a normalized
// ledger. It is the local fallback path used when no remote scoring service
// is configured; its decision is a placeholder, never an authoritative one.
package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

// Analyze computes totals and recurring-expense groupings for the ledger.
// The result is marked SourceLocal and carries a synthesized Approved
// decision for session continuity; confidence is never set locally.
func Analyze(ledger core.Ledger) core.AnalysisResult {
	income, expenses, net := Totals(ledger)
	return core.AnalysisResult{
		TotalIncome:       income,
		TotalExpenses:     expenses,
		NetFlow:           net,
		RecurringExpenses: Recurring(ledger),
		Decision:          core.DecisionApproved,
		Source:            core.SourceLocal,
	}
}

// Totals sums credits and debits at full precision. Rounding happens only at
// presentation time.
func Totals(ledger core.Ledger) (income, expenses, net decimal.Decimal) {
	income, expenses = decimal.Zero, decimal.Zero
	for _, tx := range ledger {
		income = income.Add(tx.Credit)
		expenses = expenses.Add(tx.Debit)
	}
	return income, expenses, income.Sub(expenses)
}

type group struct {
	key   string
	label string
	total decimal.Decimal
	count int
}

// Recurring groups debits by trimmed, case-folded description and returns
// the groups fed by more than one transaction, sorted by total descending.
// Ties keep first-seen order. The full set is returned; capping to a top-K
// is the caller's concern.
func Recurring(ledger core.Ledger) []core.RecurringExpense {
	var groups []*group
	index := make(map[string]*group)

	for _, tx := range ledger {
		if tx.Debit.IsZero() || tx.Debit.IsNegative() {
			continue
		}
		key := core.NormalizeDescription(tx.Description)
		g, ok := index[key]
		if !ok {
			g = &group{key: key, label: key, total: decimal.Zero}
			index[key] = g
			groups = append(groups, g)
		}
		g.total = g.total.Add(tx.Debit)
		g.count++
	}

	qualifying := groups[:0]
	for _, g := range groups {
		if g.count > 1 {
			qualifying = append(qualifying, g)
		}
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].total.GreaterThan(qualifying[j].total)
	})

	out := make([]core.RecurringExpense, 0, len(qualifying))
	for _, g := range qualifying {
		out = append(out, core.RecurringExpense{Description: g.label, Total: g.total})
	}
	return out
}

// TopK returns at most k recurring expenses. k <= 0 means unlimited.
func TopK(recurring []core.RecurringExpense, k int) []core.RecurringExpense {
	if k <= 0 || len(recurring) <= k {
		return recurring
	}
	return recurring[:k]
}
