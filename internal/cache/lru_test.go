package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry served")
	}
}

func TestCleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	if n := c.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired() = %d, want 2", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLedgerKeyStable(t *testing.T) {
	ledger := core.Ledger{{
		Date:        "2024-03-01",
		Description: "Salary",
		Credit:      decimal.NewFromInt(100),
	}}

	k1 := LedgerKey(ledger)
	k2 := LedgerKey(ledger)
	if k1 == "" || k1 != k2 {
		t.Errorf("keys differ: %q vs %q", k1, k2)
	}

	other := core.Ledger{{
		Date:        "2024-03-01",
		Description: "Rent",
		Debit:       decimal.NewFromInt(50),
	}}
	if LedgerKey(other) == k1 {
		t.Error("distinct ledgers must not share a key")
	}
}
