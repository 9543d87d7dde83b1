package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/ledger"
	"github.com/tickersim/trade-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newAccount(cash float64) *model.Account {
	return &model.Account{
		UserID:      "user1",
		CashBalance: d(cash),
		Holdings:    make(map[string]model.Holding),
	}
}

// --- Cash operations ---

func TestDebit_Success(t *testing.T) {
	a := newAccount(1000)
	if err := ledger.Debit(a, d(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CashBalance.Equal(d(750)) {
		t.Errorf("expected balance 750, got %s", a.CashBalance)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	a := newAccount(100)
	err := ledger.Debit(a, d(100.01))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !a.CashBalance.Equal(d(100)) {
		t.Errorf("balance should be unchanged, got %s", a.CashBalance)
	}
}

func TestDebit_ExactBalance(t *testing.T) {
	a := newAccount(100)
	if err := ledger.Debit(a, d(100)); err != nil {
		t.Fatalf("debit of exact balance should succeed: %v", err)
	}
	if !a.CashBalance.IsZero() {
		t.Errorf("expected zero balance, got %s", a.CashBalance)
	}
}

func TestDebit_NegativeAmount(t *testing.T) {
	a := newAccount(100)
	if err := ledger.Debit(a, d(-5)); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCredit(t *testing.T) {
	a := newAccount(100)
	if err := ledger.Credit(a, d(50.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CashBalance.Equal(d(150.5)) {
		t.Errorf("expected balance 150.5, got %s", a.CashBalance)
	}
	if err := ledger.Credit(a, d(-1)); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative credit, got %v", err)
	}
}

// --- Share operations ---

func TestAddShares_NewHolding(t *testing.T) {
	a := newAccount(0)
	if err := ledger.AddShares(a, "INFY", 10, d(1500)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := a.Holdings["INFY"]
	if h.Shares != 10 {
		t.Errorf("expected 10 shares, got %d", h.Shares)
	}
	if !h.AvgCost.Equal(d(1500)) {
		t.Errorf("expected avg cost 1500, got %s", h.AvgCost)
	}
}

func TestAddShares_WeightedAverage(t *testing.T) {
	a := newAccount(0)
	ledger.AddShares(a, "INFY", 10, d(100))
	ledger.AddShares(a, "INFY", 10, d(200))

	h := a.Holdings["INFY"]
	if h.Shares != 20 {
		t.Errorf("expected 20 shares, got %d", h.Shares)
	}
	// (10·100 + 10·200) / 20 = 150
	if !h.AvgCost.Equal(d(150)) {
		t.Errorf("expected avg cost 150, got %s", h.AvgCost)
	}
}

func TestRemoveShares_KeepsAvgCost(t *testing.T) {
	a := newAccount(0)
	ledger.AddShares(a, "INFY", 10, d(150))
	if err := ledger.RemoveShares(a, "INFY", 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := a.Holdings["INFY"]
	if h.Shares != 6 {
		t.Errorf("expected 6 shares, got %d", h.Shares)
	}
	if !h.AvgCost.Equal(d(150)) {
		t.Errorf("avg cost should be unchanged, got %s", h.AvgCost)
	}
}

func TestRemoveShares_ZeroRemovesEntry(t *testing.T) {
	a := newAccount(0)
	ledger.AddShares(a, "INFY", 10, d(150))
	if err := ledger.RemoveShares(a, "INFY", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.Holdings["INFY"]; ok {
		t.Error("zero-share holding should be removed")
	}
}

func TestRemoveShares_InsufficientShares(t *testing.T) {
	// Scenario: 15 requested when only 10 held, state must be unchanged.
	a := newAccount(0)
	ledger.AddShares(a, "INFY", 10, d(150))

	err := ledger.RemoveShares(a, "INFY", 15)
	if !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if a.Holdings["INFY"].Shares != 10 {
		t.Errorf("holding should be unchanged, got %d shares", a.Holdings["INFY"].Shares)
	}
}

func TestRemoveShares_UnknownSymbol(t *testing.T) {
	a := newAccount(0)
	if err := ledger.RemoveShares(a, "TCS", 1); !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
}

// --- Fill units ---

func TestApplyBuy(t *testing.T) {
	a := newAccount(100000)
	if err := ledger.ApplyBuy(a, "INFY", 10, d(1500)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CashBalance.Equal(d(85000)) {
		t.Errorf("expected balance 85000, got %s", a.CashBalance)
	}
	h := a.Holdings["INFY"]
	if h.Shares != 10 || !h.AvgCost.Equal(d(1500)) {
		t.Errorf("unexpected holding: %+v", h)
	}
}

func TestApplyBuy_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	a := newAccount(100)
	err := ledger.ApplyBuy(a, "INFY", 10, d(1500))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !a.CashBalance.Equal(d(100)) {
		t.Errorf("balance should be unchanged, got %s", a.CashBalance)
	}
	if len(a.Holdings) != 0 {
		t.Error("no holding should have been created")
	}
}

func TestApplySell(t *testing.T) {
	a := newAccount(85000)
	ledger.AddShares(a, "INFY", 10, d(1500))

	if err := ledger.ApplySell(a, "INFY", 10, d(1390)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CashBalance.Equal(d(98900)) {
		t.Errorf("expected balance 98900, got %s", a.CashBalance)
	}
	if _, ok := a.Holdings["INFY"]; ok {
		t.Error("holding should be removed after full sell")
	}
}

func TestApplySell_InsufficientSharesLeavesStateUntouched(t *testing.T) {
	a := newAccount(0)
	ledger.AddShares(a, "INFY", 5, d(100))

	err := ledger.ApplySell(a, "INFY", 6, d(100))
	if !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if !a.CashBalance.IsZero() {
		t.Errorf("no cash should have been credited, got %s", a.CashBalance)
	}
	if a.Holdings["INFY"].Shares != 5 {
		t.Errorf("holding should be unchanged, got %d", a.Holdings["INFY"].Shares)
	}
}

// Conservation: over any buy/sell sequence, cash out equals notional in and
// no shares appear from nowhere.
func TestConservation_BuySellRoundTrip(t *testing.T) {
	a := newAccount(100000)

	steps := []struct {
		buy   bool
		qty   int64
		price float64
	}{
		{true, 10, 1500},
		{true, 5, 1400},
		{false, 8, 1600},
		{false, 7, 1450},
	}

	expected := d(100000)
	for _, s := range steps {
		notional := d(s.price).Mul(decimal.NewFromInt(s.qty))
		if s.buy {
			if err := ledger.ApplyBuy(a, "INFY", s.qty, d(s.price)); err != nil {
				t.Fatalf("buy failed: %v", err)
			}
			expected = expected.Sub(notional)
		} else {
			if err := ledger.ApplySell(a, "INFY", s.qty, d(s.price)); err != nil {
				t.Fatalf("sell failed: %v", err)
			}
			expected = expected.Add(notional)
		}
		if a.CashBalance.IsNegative() {
			t.Fatalf("cash balance went negative: %s", a.CashBalance)
		}
	}

	if !a.CashBalance.Equal(expected) {
		t.Errorf("conservation violated: expected %s, got %s", expected, a.CashBalance)
	}
	if _, ok := a.Holdings["INFY"]; ok {
		t.Error("all shares were sold, holding should be gone")
	}
}
