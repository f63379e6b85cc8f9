package reconciler

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/orjancarlsen/stock-price-prediction/internal/database"
	"github.com/orjancarlsen/stock-price-prediction/internal/fees"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/market"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
)

var (
	day1 = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC)
)

func setup(t *testing.T, cash float64) (*ledger.Service, *market.StaticProvider) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	svc := ledger.NewService(db)
	if err := svc.EnsureCashPosition(); err != nil {
		t.Fatalf("EnsureCashPosition: %v", err)
	}
	if err := svc.Deposit(cash, day1); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	return svc, market.NewStaticProvider()
}

func TestBuyFillsWhenLowReachesLimit(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	fee := schedule.For(102.00, 97)
	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 97, fee, day1); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	prices.SetRange("NOD.OL", day2, market.Range{Low: 98, High: 105})

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Executed != 1 {
		t.Fatalf("executed = %d, want 1", result.Executed)
	}

	// Filled at the limit, never at the realized low.
	balance, _ := svc.CashBalance()
	want := 10000 - (97*102.00 + fee)
	if math.Abs(balance-want) > 1e-6 {
		t.Errorf("balance = %f, want %f", balance, want)
	}
	held, _ := svc.HeldSymbols()
	if held["NOD.OL"] != 97 {
		t.Errorf("shares = %d, want 97", held["NOD.OL"])
	}
}

func TestBuyStaysPendingAboveLimit(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, day1); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	prices.SetRange("NOD.OL", day2, market.Range{Low: 103, High: 110})

	rec := New(svc, prices, schedule, 3)
	result, err := rec.Reconcile(context.Background(), day2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Executed != 0 || result.Canceled != 0 {
		t.Fatalf("result = %+v, want untouched", result)
	}

	open, _ := svc.GetOpenOrders()
	if len(open) != 1 {
		t.Errorf("open orders = %d, want 1", len(open))
	}
}

func TestSellFillsWhenHighReachesLimit(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	buy, _, _ := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 50, 5.00, day1)
	if err := svc.SettleOrder(buy.OrderID, 100.00, 5.00, day1); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}
	if _, _, err := svc.CreateOrder(types.SideSell, "NOD.OL", 112.70, 50, 5.635, day2); err != nil {
		t.Fatalf("CreateOrder sell: %v", err)
	}
	prices.SetRange("NOD.OL", day3, market.Range{Low: 108, High: 113})

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Executed != 1 {
		t.Fatalf("executed = %d, want 1", result.Executed)
	}

	held, _ := svc.HeldSymbols()
	if len(held) != 0 {
		t.Errorf("held = %v, want empty", held)
	}
}

func TestUnbackedSellCanceledWhenTriggered(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	buy, _, _ := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 50, 5.00, day1)
	if err := svc.SettleOrder(buy.OrderID, 100.00, 5.00, day1); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}
	// Two sells over the same shares, created on different days.
	if _, _, err := svc.CreateOrder(types.SideSell, "NOD.OL", 110.00, 50, 5.50, day1); err != nil {
		t.Fatalf("CreateOrder first sell: %v", err)
	}
	if _, _, err := svc.CreateOrder(types.SideSell, "NOD.OL", 110.00, 50, 5.50, day2); err != nil {
		t.Fatalf("CreateOrder second sell: %v", err)
	}

	prices.SetRange("NOD.OL", day3, market.Range{Low: 108, High: 112})

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	// The first fill empties the position; the second sell can never be
	// backed again and is canceled instead of lingering PENDING.
	if result.Executed != 1 || result.Canceled != 1 {
		t.Fatalf("result = %+v, want 1 executed 1 canceled", result)
	}

	open, _ := svc.GetOpenOrders()
	if len(open) != 0 {
		t.Errorf("open orders = %d, want 0", len(open))
	}

	// Only one sell actually settled.
	txns, _ := svc.GetTransactions(0)
	sells := 0
	for _, txn := range txns {
		if txn.Kind == types.TxSell {
			sells++
		}
	}
	if sells != 1 {
		t.Errorf("sell transactions = %d, want 1", sells)
	}
}

func TestExpiredOrderCanceledAndReservationReleased(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, day1); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	// The symbol traded the next day but never dipped to the limit.
	prices.SetRange("NOD.OL", day2, market.Range{Low: 104, High: 110})

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Canceled != 1 {
		t.Fatalf("canceled = %d, want 1", result.Canceled)
	}

	available, _ := svc.AvailableCash()
	if math.Abs(available-10000) > 1e-6 {
		t.Errorf("available = %f, want 10000", available)
	}
}

func TestNoExpiryWithoutPriceData(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, day1); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	// No range seeded for any day: the market was closed for the symbol.

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Skipped != 1 || result.Canceled != 0 {
		t.Fatalf("result = %+v, want 1 skipped", result)
	}

	open, _ := svc.GetOpenOrders()
	if len(open) != 1 {
		t.Errorf("open orders = %d, want 1", len(open))
	}
}

func TestMissingPriceDoesNotBlockOtherSymbols(t *testing.T) {
	svc, prices := setup(t, 50000)
	schedule := fees.Schedule{Rate: 0.001}

	if _, _, err := svc.CreateOrder(types.SideBuy, "AAPL", 150.00, 10, 1.50, day1); err != nil {
		t.Fatalf("CreateOrder AAPL: %v", err)
	}
	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, day1); err != nil {
		t.Fatalf("CreateOrder NOD.OL: %v", err)
	}
	// Only NOD.OL has data for the day.
	prices.SetRange("NOD.OL", day2, market.Range{Low: 100, High: 105})

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Executed != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 executed 1 skipped", result)
	}
}

func TestSameDayOrderNotConcluded(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, day1); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	// The range would trigger the fill, but the order was created today.
	prices.SetRange("NOD.OL", day1, market.Range{Low: 98, High: 105})

	rec := New(svc, prices, schedule, 1)
	result, err := rec.Reconcile(context.Background(), day1)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Executed != 0 || result.Canceled != 0 {
		t.Fatalf("result = %+v, want untouched", result)
	}
}

func TestReconcileRerunIsNoOp(t *testing.T) {
	svc, prices := setup(t, 10000)
	schedule := fees.Schedule{Rate: 0.001}

	if _, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, day1); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	prices.SetRange("NOD.OL", day2, market.Range{Low: 98, High: 105})

	rec := New(svc, prices, schedule, 1)
	if _, err := rec.Reconcile(context.Background(), day2); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	result, err := rec.Reconcile(context.Background(), day2)
	if err != nil {
		t.Fatalf("Reconcile (rerun): %v", err)
	}
	if result.Executed != 0 {
		t.Errorf("rerun executed = %d, want 0", result.Executed)
	}

	// Exactly one buy transaction across both runs.
	txns, _ := svc.GetTransactions(0)
	buys := 0
	for _, txn := range txns {
		if txn.Kind == types.TxBuy {
			buys++
		}
	}
	if buys != 1 {
		t.Errorf("buy transactions = %d, want 1", buys)
	}
}
