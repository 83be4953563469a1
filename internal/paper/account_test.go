package paper

import (
	"math"
	"testing"
)

func TestShares(t *testing.T) {
	account := NewAccount(100000, 1)
	if got := account.Shares(10); got != 100 {
		t.Fatalf("expected 100 shares, got %d", got)
	}
	if got := account.Shares(3); got != 333 {
		t.Fatalf("expected floor to 333, got %d", got)
	}
	if got := account.Shares(5000); got != 1 {
		t.Fatalf("expected minimum of one share, got %d", got)
	}
	if got := account.Shares(0); got != 1 {
		t.Fatalf("expected one share for degenerate risk, got %d", got)
	}
}

func TestBookPnL(t *testing.T) {
	account := NewAccount(1000, 2)
	pnl, err := account.Book("AAA", 10, 100, 120)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if pnl != 200 {
		t.Fatalf("expected 200, got %v", pnl)
	}
	if _, err := account.Book("AAA", 5, 100, 90); err != nil {
		t.Fatalf("book: %v", err)
	}
	snap := account.Snapshot()
	if snap.Trades != 2 || snap.RealizedPnL != 150 || snap.ByTicker["AAA"] != 150 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if math.Abs(snap.Equity-1150) > 1e-9 || account.RealizedPnL() != 150 {
		t.Fatalf("equity did not balance")
	}
	snap.ByTicker["AAA"] = 0
	if account.Snapshot().ByTicker["AAA"] != 150 {
		t.Fatalf("snapshot must be a copy")
	}
}

func TestBookRejectsBadInput(t *testing.T) {
	account := NewAccount(1000, 1)
	if _, err := account.Book("AAA", 0, 10, 11); err == nil {
		t.Fatalf("expected quantity error")
	}
	if _, err := account.Book("AAA", 1, 0, 11); err == nil {
		t.Fatalf("expected price error")
	}
}
