package ledger

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/orjancarlsen/stock-price-prediction/internal/database"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
)

var testDay = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

// setupLedger creates a ledger service over a fresh sqlite database with
// the CASH row initialized.
func setupLedger(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}

	svc := NewService(db)
	if err := svc.EnsureCashPosition(); err != nil {
		t.Fatalf("EnsureCashPosition: %v", err)
	}
	return svc
}

func fundedLedger(t *testing.T, amount float64) *Service {
	t.Helper()
	svc := setupLedger(t)
	if err := svc.Deposit(amount, testDay); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	return svc
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCreateBuyOrderReservesCash(t *testing.T) {
	svc := fundedLedger(t, 10000)

	order, created, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 97, 9.894, testDay)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if order.Status != types.OrderPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}
	if !almostEqual(order.Amount, 97*102.00+9.894) {
		t.Errorf("amount = %f, want %f", order.Amount, 97*102.00+9.894)
	}

	available, err := svc.AvailableCash()
	if err != nil {
		t.Fatalf("AvailableCash: %v", err)
	}
	if !almostEqual(available, 10000-order.Amount) {
		t.Errorf("available = %f, want %f", available, 10000-order.Amount)
	}

	// The total balance is untouched until settlement.
	balance, err := svc.CashBalance()
	if err != nil {
		t.Fatalf("CashBalance: %v", err)
	}
	if !almostEqual(balance, 10000) {
		t.Errorf("balance = %f, want 10000", balance)
	}
}

func TestCreateOrderDedupSameDay(t *testing.T) {
	svc := fundedLedger(t, 10000)

	first, created, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, testDay)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !created {
		t.Error("first created = false, want true")
	}
	second, created, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 105.00, 20, 2.10, testDay)
	if err != nil {
		t.Fatalf("CreateOrder (repeat): %v", err)
	}
	if created {
		t.Error("repeat created = true, want false")
	}

	if first.OrderID != second.OrderID {
		t.Errorf("duplicate order created: %s != %s", first.OrderID, second.OrderID)
	}

	orders, err := svc.GetOpenOrders()
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("open orders = %d, want 1", len(orders))
	}

	// A new day is a new idempotency scope.
	third, created, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, testDay.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("CreateOrder (next day): %v", err)
	}
	if !created {
		t.Error("next-day created = false, want true")
	}
	if third.OrderID == first.OrderID {
		t.Error("next-day order should be distinct")
	}
}

func TestCreateBuyOrderInsufficientFunds(t *testing.T) {
	svc := fundedLedger(t, 100)

	_, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, testDay)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// Nothing should be reserved after a failed creation.
	available, _ := svc.AvailableCash()
	if !almostEqual(available, 100) {
		t.Errorf("available = %f, want 100", available)
	}
}

func TestCreateSellOrderRequiresShares(t *testing.T) {
	svc := fundedLedger(t, 10000)

	_, _, err := svc.CreateOrder(types.SideSell, "NOD.OL", 110.00, 5, 0.55, testDay)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
}

func TestSettleBuyOrder(t *testing.T) {
	svc := fundedLedger(t, 10000)

	fee := 0.001 * 102.00 * 97
	order, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 97, fee, testDay)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := svc.SettleOrder(order.OrderID, 102.00, fee, testDay.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	// Cash decreases by notional + fee.
	wantCash := 10000 - (97*102.00 + fee)
	balance, _ := svc.CashBalance()
	if !almostEqual(balance, wantCash) {
		t.Errorf("balance = %f, want %f", balance, wantCash)
	}
	available, _ := svc.AvailableCash()
	if !almostEqual(available, wantCash) {
		t.Errorf("available = %f, want %f", available, wantCash)
	}

	held, err := svc.HeldSymbols()
	if err != nil {
		t.Fatalf("HeldSymbols: %v", err)
	}
	if held["NOD.OL"] != 97 {
		t.Errorf("shares = %d, want 97", held["NOD.OL"])
	}

	// Exactly one transaction, with the signed cash delta.
	txns, err := svc.GetTransactions(0)
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	var buys []types.Transaction
	for _, txn := range txns {
		if txn.Kind == types.TxBuy {
			buys = append(buys, txn)
		}
	}
	if len(buys) != 1 {
		t.Fatalf("buy transactions = %d, want 1", len(buys))
	}
	if !almostEqual(buys[0].Amount, -(97*102.00 + fee)) {
		t.Errorf("transaction amount = %f, want %f", buys[0].Amount, -(97*102.00 + fee))
	}

	orders, _ := svc.GetOrders(types.OrderExecuted)
	if len(orders) != 1 {
		t.Errorf("executed orders = %d, want 1", len(orders))
	}
}

func TestSettleOrderTwiceConflicts(t *testing.T) {
	svc := fundedLedger(t, 10000)

	order, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 10, 1.00, testDay)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := svc.SettleOrder(order.OrderID, 100.00, 1.00, testDay); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	err = svc.SettleOrder(order.OrderID, 100.00, 1.00, testDay)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second settle err = %v, want ErrConflict", err)
	}

	// No double effects.
	txns, _ := svc.GetTransactions(0)
	count := 0
	for _, txn := range txns {
		if txn.Kind == types.TxBuy {
			count++
		}
	}
	if count != 1 {
		t.Errorf("buy transactions = %d, want 1", count)
	}
}

func TestSettleSellClosesPosition(t *testing.T) {
	svc := fundedLedger(t, 10000)

	buy, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 50, 5.00, testDay)
	if err != nil {
		t.Fatalf("CreateOrder buy: %v", err)
	}
	if err := svc.SettleOrder(buy.OrderID, 100.00, 5.00, testDay); err != nil {
		t.Fatalf("SettleOrder buy: %v", err)
	}

	sell, _, err := svc.CreateOrder(types.SideSell, "NOD.OL", 110.00, 50, 5.50, testDay)
	if err != nil {
		t.Fatalf("CreateOrder sell: %v", err)
	}
	if err := svc.SettleOrder(sell.OrderID, 110.00, 5.50, testDay.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("SettleOrder sell: %v", err)
	}

	// Position at zero shares is deleted, not kept as an empty row.
	positions, err := svc.GetStockPositions()
	if err != nil {
		t.Fatalf("GetStockPositions: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("stock positions = %d, want 0", len(positions))
	}

	wantCash := 10000 - (50*100.00 + 5.00) + (50*110.00 - 5.50)
	balance, _ := svc.CashBalance()
	if !almostEqual(balance, wantCash) {
		t.Errorf("balance = %f, want %f", balance, wantCash)
	}
}

func TestSettleBuyAveragesCost(t *testing.T) {
	svc := fundedLedger(t, 100000)

	first, _, _ := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 100, 10.00, testDay)
	if err := svc.SettleOrder(first.OrderID, 100.00, 10.00, testDay); err != nil {
		t.Fatalf("SettleOrder first: %v", err)
	}
	second, _, _ := svc.CreateOrder(types.SideBuy, "NOD.OL", 120.00, 100, 12.00, testDay.AddDate(0, 0, 1))
	if err := svc.SettleOrder(second.OrderID, 120.00, 12.00, testDay.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("SettleOrder second: %v", err)
	}

	positions, _ := svc.GetStockPositions()
	if len(positions) != 1 {
		t.Fatalf("stock positions = %d, want 1", len(positions))
	}
	if !almostEqual(positions[0].AvgPrice, 110.00) {
		t.Errorf("avg price = %f, want 110.00", positions[0].AvgPrice)
	}
	if positions[0].Shares != 200 {
		t.Errorf("shares = %d, want 200", positions[0].Shares)
	}
}

func TestCancelBuyRestoresReservation(t *testing.T) {
	svc := fundedLedger(t, 10000)

	order, _, err := svc.CreateOrder(types.SideBuy, "NOD.OL", 102.00, 10, 1.02, testDay)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := svc.CancelOrder(order.OrderID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	available, _ := svc.AvailableCash()
	if !almostEqual(available, 10000) {
		t.Errorf("available = %f, want 10000", available)
	}

	// A canceled order is terminal.
	if err := svc.CancelOrder(order.OrderID); !errors.Is(err, ErrConflict) {
		t.Errorf("second cancel err = %v, want ErrConflict", err)
	}
	if err := svc.SettleOrder(order.OrderID, 102.00, 1.02, testDay); !errors.Is(err, ErrConflict) {
		t.Errorf("settle after cancel err = %v, want ErrConflict", err)
	}
}

func TestExternalCashEvents(t *testing.T) {
	svc := setupLedger(t)

	if err := svc.Deposit(5000, testDay); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := svc.Withdraw(1000, testDay); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if err := svc.Withdraw(100000, testDay); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraw err = %v, want ErrInsufficientFunds", err)
	}
	if err := svc.Deposit(-5, testDay); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative deposit err = %v, want ErrInvalidAmount", err)
	}

	balance, _ := svc.CashBalance()
	if !almostEqual(balance, 4000) {
		t.Errorf("balance = %f, want 4000", balance)
	}

	txns, _ := svc.GetTransactions(0)
	if len(txns) != 2 {
		t.Errorf("transactions = %d, want 2", len(txns))
	}
}

func TestDividendRequiresHolding(t *testing.T) {
	svc := fundedLedger(t, 10000)

	if err := svc.Dividend("NOD.OL", 2.50, testDay); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("err = %v, want ErrPositionNotFound", err)
	}

	buy, _, _ := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 40, 4.00, testDay)
	if err := svc.SettleOrder(buy.OrderID, 100.00, 4.00, testDay); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	before, _ := svc.CashBalance()
	if err := svc.Dividend("NOD.OL", 2.50, testDay); err != nil {
		t.Fatalf("Dividend: %v", err)
	}
	after, _ := svc.CashBalance()
	if !almostEqual(after-before, 100) {
		t.Errorf("dividend credit = %f, want 100", after-before)
	}
}

func TestSnapshotValueIdempotent(t *testing.T) {
	svc := fundedLedger(t, 10000)

	if err := svc.SnapshotValue(testDay); err != nil {
		t.Fatalf("SnapshotValue: %v", err)
	}
	if err := svc.SnapshotValue(testDay); err != nil {
		t.Fatalf("SnapshotValue (repeat): %v", err)
	}

	values, err := svc.GetPortfolioValues()
	if err != nil {
		t.Fatalf("GetPortfolioValues: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(values))
	}
	if !almostEqual(values[0].Value, 10000) {
		t.Errorf("snapshot value = %f, want 10000", values[0].Value)
	}
}

func TestMarkPosition(t *testing.T) {
	svc := fundedLedger(t, 10000)

	buy, _, _ := svc.CreateOrder(types.SideBuy, "NOD.OL", 100.00, 10, 1.00, testDay)
	if err := svc.SettleOrder(buy.OrderID, 100.00, 1.00, testDay); err != nil {
		t.Fatalf("SettleOrder: %v", err)
	}

	if err := svc.MarkPosition("NOD.OL", 120.00); err != nil {
		t.Fatalf("MarkPosition: %v", err)
	}

	positions, _ := svc.GetStockPositions()
	if len(positions) != 1 {
		t.Fatalf("stock positions = %d, want 1", len(positions))
	}
	if !almostEqual(positions[0].TotalValue, 1200.00) {
		t.Errorf("total value = %f, want 1200.00", positions[0].TotalValue)
	}
	if !almostEqual(positions[0].MarkPrice, 120.00) {
		t.Errorf("mark price = %f, want 120.00", positions[0].MarkPrice)
	}
}
