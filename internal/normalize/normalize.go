// Package normalize coerces raw, loosely typed transaction records into the
// canonical schema. Normalization is total: malformed fields degrade to
// defaults and no row is ever dropped.
package normalize

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

// ErrMalformedInput reports a pasted or uploaded payload that does not parse
// as a transaction set at all. Individual bad fields never produce it.
var ErrMalformedInput = errors.New("malformed transaction input")

// Records converts raw records into canonical Transactions. An empty input
// yields a single default row so downstream editors always have one.
func Records(raw []map[string]any) core.Ledger {
	if len(raw) == 0 {
		return core.DefaultLedger()
	}
	ledger := make(core.Ledger, 0, len(raw))
	for _, rec := range raw {
		ledger = append(ledger, record(rec))
	}
	return ledger
}

func record(rec map[string]any) core.Transaction {
	tx := core.DefaultTransaction()
	for key, val := range rec {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "date":
			tx.Date = text(val)
		case "description":
			tx.Description = strings.TrimSpace(text(val))
		case "credit":
			tx.Credit = amount(val)
		case "debit":
			tx.Debit = amount(val)
		case "balance":
			tx.Balance = amount(val)
		}
	}
	return tx
}

// text renders a raw value as a string, tolerating numeric input.
func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return decimal.NewFromFloat(s).String()
	case int:
		return decimal.NewFromInt(int64(s)).String()
	default:
		return ""
	}
}

// amount parses a raw value as a non-negative decimal. Anything unparsable,
// including null and negative values, maps to zero.
func amount(v any) decimal.Decimal {
	var d decimal.Decimal
	switch n := v.(type) {
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case json.Number:
		parsed, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case string:
		s := strings.TrimSpace(n)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimLeft(s, "£$€")
		if s == "" {
			return decimal.Zero
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// payload is the accepted boundary shape for structured submissions: either
// a bare array of records or an object wrapping them.
type payload struct {
	Transactions []map[string]any `json:"transactions"`
}

// ParseRecords strictly parses a pasted JSON payload and normalizes it.
// It accepts a bare array or an object with a "transactions" array and
// returns ErrMalformedInput for everything else.
func ParseRecords(data []byte) (core.Ledger, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, ErrMalformedInput
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()

	if strings.HasPrefix(trimmed, "[") {
		var raw []map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, ErrMalformedInput
		}
		return Records(raw), nil
	}

	var p payload
	if err := dec.Decode(&p); err != nil {
		return nil, ErrMalformedInput
	}
	if p.Transactions == nil {
		return nil, ErrMalformedInput
	}
	return Records(p.Transactions), nil
}
