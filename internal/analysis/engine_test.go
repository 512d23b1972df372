package analysis

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

func tx(desc string, credit, debit string) core.Transaction {
	t := core.DefaultTransaction()
	t.Description = desc
	t.Credit = decimal.RequireFromString(credit)
	t.Debit = decimal.RequireFromString(debit)
	return t
}

func TestAnalyzeScenario(t *testing.T) {
	// Ledger from the reference scenario: one credit of 100, two "Gym"
	// debits of 40 each.
	ledger := core.Ledger{
		tx("Salary", "100", "0"),
		tx("Gym", "0", "40"),
		tx("Gym", "0", "40"),
	}

	res := Analyze(ledger)

	assert.True(t, res.TotalIncome.Equal(decimal.NewFromInt(100)), "total_income")
	assert.True(t, res.TotalExpenses.Equal(decimal.NewFromInt(80)), "total_expenses")
	assert.True(t, res.NetFlow.Equal(decimal.NewFromInt(20)), "net_flow")

	require.Len(t, res.RecurringExpenses, 1)
	assert.Equal(t, "gym", res.RecurringExpenses[0].Description)
	assert.True(t, res.RecurringExpenses[0].Total.Equal(decimal.NewFromInt(80)))

	assert.Equal(t, core.SourceLocal, res.Source)
	assert.Equal(t, core.DecisionApproved, res.Decision)
	assert.Zero(t, res.ConfidenceScore, "local path never sets confidence")
}

func TestTotalsOrderIndependent(t *testing.T) {
	a := core.Ledger{tx("a", "10.10", "3.33"), tx("b", "0.90", "6.67"), tx("c", "4", "0")}
	b := core.Ledger{a[2], a[0], a[1]}

	ai, ae, an := Totals(a)
	bi, be, bn := Totals(b)

	assert.True(t, ai.Equal(bi))
	assert.True(t, ae.Equal(be))
	assert.True(t, an.Equal(bn))
	assert.True(t, an.Equal(ai.Sub(ae)))
}

func TestTotalsEmptyLedger(t *testing.T) {
	income, expenses, net := Totals(nil)
	assert.True(t, income.IsZero())
	assert.True(t, expenses.IsZero())
	assert.True(t, net.IsZero())
}

func TestRecurringGroupingKey(t *testing.T) {
	ledger := core.Ledger{
		tx("Netflix", "0", "9.99"),
		tx(" netflix ", "0", "9.99"),
		tx("NETFLIX", "0", "9.99"),
	}
	got := Recurring(ledger)
	require.Len(t, got, 1, "case/whitespace variants must merge")
	assert.Equal(t, "netflix", got[0].Description)
	assert.True(t, got[0].Total.Equal(decimal.RequireFromString("29.97")))
}

func TestRecurringSingleOccurrenceExcluded(t *testing.T) {
	ledger := core.Ledger{
		tx("One-off purchase", "0", "500"),
		tx("Rent", "0", "700"),
		tx("Rent", "0", "700"),
	}
	got := Recurring(ledger)
	require.Len(t, got, 1)
	assert.Equal(t, "rent", got[0].Description)
}

func TestRecurringOrderAndTies(t *testing.T) {
	ledger := core.Ledger{
		tx("small", "0", "5"),
		tx("small", "0", "5"),
		tx("tied-a", "0", "25"),
		tx("tied-a", "0", "25"),
		tx("tied-b", "0", "30"),
		tx("tied-b", "0", "20"),
		tx("big", "0", "60"),
		tx("big", "0", "60"),
	}
	got := Recurring(ledger)
	require.Len(t, got, 4)

	names := make([]string, len(got))
	for i, g := range got {
		names[i] = g.Description
	}
	// Descending by total; the 50/50 tie keeps first-seen order.
	assert.Equal(t, []string{"big", "tied-a", "tied-b", "small"}, names)
}

func TestRecurringIdempotent(t *testing.T) {
	ledger := core.Ledger{
		tx("Gym", "0", "40"),
		tx("Gym", "0", "40"),
		tx("Rent", "0", "700"),
		tx("Rent", "0", "700"),
	}
	first := Recurring(ledger)
	second := Recurring(ledger)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Description, second[i].Description)
		assert.True(t, first[i].Total.Equal(second[i].Total))
	}
}

func TestRecurringIgnoresCreditsAndZeroDebits(t *testing.T) {
	ledger := core.Ledger{
		tx("Salary", "1000", "0"),
		tx("Salary", "1000", "0"),
		core.DefaultTransaction(),
		core.DefaultTransaction(),
	}
	assert.Empty(t, Recurring(ledger))
}

func TestTopK(t *testing.T) {
	rec := []core.RecurringExpense{
		{Description: "a", Total: decimal.NewFromInt(3)},
		{Description: "b", Total: decimal.NewFromInt(2)},
		{Description: "c", Total: decimal.NewFromInt(1)},
	}

	assert.Len(t, TopK(rec, 0), 3, "zero means unlimited")
	assert.Len(t, TopK(rec, -1), 3)
	assert.Len(t, TopK(rec, 5), 3)

	top := TopK(rec, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].Description)
	assert.Equal(t, "b", top[1].Description)
}
