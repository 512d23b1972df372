package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The analysis API speaks bare JSON numbers for amounts.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DecisionApproved Decision = "Approved"
	DecisionDenied   Decision = "Denied"
	DecisionPending  Decision = "Pending"
)

const (
	// SourceLocal marks a result computed by the local aggregation engine.
	// Its decision is a non-authoritative placeholder.
	SourceLocal Source = "local"
	// SourceRemote marks a result returned by the remote scoring service.
	SourceRemote Source = "remote"
)

type (
	Decision string

	Source string

	// Transaction is one canonical ledger row. Values are immutable once
	// normalized; edits produce a new Transaction.
	Transaction struct {
		Date        string          `json:"date"`
		Description string          `json:"description"`
		Credit      decimal.Decimal `json:"credit"`
		Debit       decimal.Decimal `json:"debit"`
		Balance     decimal.Decimal `json:"balance"`
	}

	// Ledger is an insertion-ordered sequence of Transactions. Order is not
	// necessarily chronological.
	Ledger []Transaction

	// RecurringExpense is one grouped debit description with its total.
	RecurringExpense struct {
		Description string          `json:"description"`
		Total       decimal.Decimal `json:"total"`
	}

	AnalysisResult struct {
		TotalIncome       decimal.Decimal    `json:"total_income"`
		TotalExpenses     decimal.Decimal    `json:"total_expenses"`
		NetFlow           decimal.Decimal    `json:"net_flow"`
		RecurringExpenses []RecurringExpense `json:"recurring_expenses"`
		Decision          Decision           `json:"decision,omitempty"`
		ConfidenceScore   float64            `json:"confidence_score,omitempty"`
		RawCompletion     string             `json:"raw_completion,omitempty"`
		Source            Source             `json:"source"`
	}

	// Application is one registered analysis run. Created when an analysis
	// completes successfully, never mutated afterwards.
	Application struct {
		ID                string         `json:"id"`
		ApplicationNumber string         `json:"application_number"`
		Date              time.Time      `json:"date"`
		Status            Decision       `json:"status"`
		Analysis          AnalysisResult `json:"analysis"`
	}
)

var (
	ErrNegativeAmount = errors.New("negative amount")
	ErrEmptyLedger    = errors.New("empty ledger")
)

// DefaultTransaction returns the all-empty/zero row that seeds an empty
// ledger so downstream editors always have at least one row.
func DefaultTransaction() Transaction {
	return Transaction{
		Credit:  decimal.Zero,
		Debit:   decimal.Zero,
		Balance: decimal.Zero,
	}
}

// DefaultLedger returns a ledger holding exactly the default row.
func DefaultLedger() Ledger {
	return Ledger{DefaultTransaction()}
}

func (t Transaction) Validate() error {
	if t.Credit.IsNegative() || t.Debit.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// IsZero reports whether the transaction equals the default row.
func (t Transaction) IsZero() bool {
	return t.Date == "" && t.Description == "" &&
		t.Credit.IsZero() && t.Debit.IsZero() && t.Balance.IsZero()
}

// DeriveStatus maps a result decision onto an application status.
// Anything other than an explicit approval or denial is Pending.
func DeriveStatus(d Decision) Decision {
	switch d {
	case DecisionApproved, DecisionDenied:
		return d
	default:
		return DecisionPending
	}
}

// Status returns the application status implied by the result.
func (r AnalysisResult) Status() Decision {
	return DeriveStatus(r.Decision)
}

// NormalizeDescription produces the grouping key used for recurring-expense
// detection: whitespace-trimmed and case-folded.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
