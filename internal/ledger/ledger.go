package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the single write path for positions, transactions, orders and
// portfolio value snapshots. Every mutation that touches an order together
// with its ledger side effects runs in one storage transaction.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// EnsureCashPosition creates the singular CASH row if it does not exist yet.
func (s *Service) EnsureCashPosition() error {
	cash, err := s.db.GetCashPosition()
	if err != nil {
		return err
	}
	if cash != nil {
		return nil
	}
	return s.db.CreatePosition(&types.Position{AssetType: types.AssetCash})
}

// ---------------------------------------------------------------------------
// Order creation
// ---------------------------------------------------------------------------

// CreateOrder persists a new PENDING order. Creation is idempotent per
// symbol+side+day: if an order with the same dedup key already exists, that
// order is returned with created=false and nothing is written. A BUY
// reserves its full cost against the available cash balance; a SELL
// requires the shares to be held.
func (s *Service) CreateOrder(side, symbol string, limitPrice float64, shares int64, fee float64, day time.Time) (*types.Order, bool, error) {
	logger := log.With().
		Str("service", "ledger").
		Str("symbol", symbol).
		Str("side", side).
		Logger()

	dedupKey := types.DedupKey(symbol, side, day)
	existing, err := s.db.GetOrderByDedupKey(dedupKey)
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		logger.Debug().Str("order_id", existing.OrderID).Msg("order already generated for this day, skipping")
		return existing, false, nil
	}

	order := &types.Order{
		OrderID:    uuid.New().String(),
		Side:       side,
		Symbol:     symbol,
		LimitPrice: limitPrice,
		Shares:     shares,
		Fee:        fee,
		Status:     types.OrderPending,
		DedupKey:   dedupKey,
		CreatedAt:  day,
		UpdatedAt:  day,
	}

	err = s.db.Transaction(func(tx *Database) error {
		switch side {
		case types.SideBuy:
			cost := limitPrice*float64(shares) + fee
			cash, err := tx.GetCashPosition()
			if err != nil {
				return err
			}
			if cash == nil || cash.Available < cost {
				return ErrInsufficientFunds
			}
			// Reserve the cost until the order concludes.
			cash.Available -= cost
			if err := tx.SavePosition(cash); err != nil {
				return err
			}
			order.Amount = cost

		case types.SideSell:
			pos, err := tx.GetStockPosition(symbol)
			if err != nil {
				return err
			}
			if pos == nil || pos.Shares < shares {
				return ErrInsufficientShares
			}
			order.Amount = limitPrice*float64(shares) - fee

		default:
			return fmt.Errorf("unknown order side %q", side)
		}

		return tx.CreateOrder(order)
	})
	if err != nil {
		return nil, false, err
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Float64("limit_price", order.LimitPrice).
		Int64("shares", order.Shares).
		Float64("amount", order.Amount).
		Msg("order created")

	return order, true, nil
}

// ---------------------------------------------------------------------------
// Settlement
// ---------------------------------------------------------------------------

// SettleOrder transitions a PENDING order to EXECUTED at the given price,
// appends exactly one transaction and applies the position and cash deltas,
// all atomically. Returns ErrConflict if the order is not PENDING, which a
// retried run treats as already-processed.
func (s *Service) SettleOrder(orderID string, execPrice, fee float64, asOf time.Time) error {
	logger := log.With().
		Str("service", "ledger").
		Str("order_id", orderID).
		Logger()

	return s.db.Transaction(func(tx *Database) error {
		order, err := tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.Status != types.OrderPending {
			return ErrConflict
		}

		switch order.Side {
		case types.SideBuy:
			if err := s.settleBuy(tx, order, execPrice, fee, asOf); err != nil {
				return err
			}
		case types.SideSell:
			if err := s.settleSell(tx, order, execPrice, fee, asOf); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown order side %q", order.Side)
		}

		order.Status = types.OrderExecuted
		order.Fee = fee
		touch(order)
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}

		logger.Info().
			Str("symbol", order.Symbol).
			Str("side", order.Side).
			Float64("price", execPrice).
			Int64("shares", order.Shares).
			Msg("order executed")
		return nil
	})
}

func (s *Service) settleBuy(tx *Database, order *types.Order, execPrice, fee float64, asOf time.Time) error {
	cost := execPrice*float64(order.Shares) + fee

	cash, err := tx.GetCashPosition()
	if err != nil {
		return err
	}
	if cash == nil {
		return ErrPositionNotFound
	}

	// Release the reservation made at order creation, then pay the
	// actual cost from both balances.
	cash.Available += order.Amount
	if cash.TotalValue < cost {
		return ErrInsufficientFunds
	}
	cash.TotalValue -= cost
	cash.Available -= cost
	if err := tx.SavePosition(cash); err != nil {
		return err
	}

	pos, err := tx.GetStockPosition(order.Symbol)
	if err != nil {
		return err
	}
	if pos == nil {
		symbol := order.Symbol
		pos = &types.Position{
			AssetType:  types.AssetStock,
			Symbol:     &symbol,
			Shares:     order.Shares,
			AvgPrice:   execPrice,
			MarkPrice:  execPrice,
			TotalValue: execPrice * float64(order.Shares),
		}
		if err := tx.CreatePosition(pos); err != nil {
			return err
		}
	} else {
		total := pos.Shares + order.Shares
		pos.AvgPrice = (pos.AvgPrice*float64(pos.Shares) + execPrice*float64(order.Shares)) / float64(total)
		pos.Shares = total
		pos.MarkPrice = execPrice
		pos.TotalValue += execPrice * float64(order.Shares)
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
	}

	order.Amount = cost
	symbol := order.Symbol
	return tx.CreateTransaction(&types.Transaction{
		TransactionID: uuid.New().String(),
		Kind:          types.TxBuy,
		Symbol:        &symbol,
		PricePerShare: execPrice,
		Shares:        order.Shares,
		Fee:           fee,
		Amount:        -cost,
		Timestamp:     asOf,
	})
}

func (s *Service) settleSell(tx *Database, order *types.Order, execPrice, fee float64, asOf time.Time) error {
	proceeds := execPrice*float64(order.Shares) - fee

	pos, err := tx.GetStockPosition(order.Symbol)
	if err != nil {
		return err
	}
	if pos == nil || pos.Shares < order.Shares {
		return ErrInsufficientShares
	}

	pos.Shares -= order.Shares
	pos.TotalValue -= float64(order.Shares) * pos.AvgPrice
	if pos.Shares <= 0 {
		if err := tx.DeletePosition(pos); err != nil {
			return err
		}
	} else {
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
	}

	cash, err := tx.GetCashPosition()
	if err != nil {
		return err
	}
	if cash == nil {
		return ErrPositionNotFound
	}
	cash.TotalValue += proceeds
	cash.Available += proceeds
	if err := tx.SavePosition(cash); err != nil {
		return err
	}

	order.Amount = proceeds
	symbol := order.Symbol
	return tx.CreateTransaction(&types.Transaction{
		TransactionID: uuid.New().String(),
		Kind:          types.TxSell,
		Symbol:        &symbol,
		PricePerShare: execPrice,
		Shares:        order.Shares,
		Fee:           fee,
		Amount:        proceeds,
		Timestamp:     asOf,
	})
}

// CancelOrder transitions a PENDING order to CANCELED. A canceled BUY
// releases the cash reserved at creation; a canceled SELL has no ledger
// side effect.
func (s *Service) CancelOrder(orderID string) error {
	return s.db.Transaction(func(tx *Database) error {
		order, err := tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.Status != types.OrderPending {
			return ErrConflict
		}

		if order.Side == types.SideBuy {
			cash, err := tx.GetCashPosition()
			if err != nil {
				return err
			}
			if cash != nil {
				cash.Available += order.Amount
				if err := tx.SavePosition(cash); err != nil {
					return err
				}
			}
		}

		order.Status = types.OrderCanceled
		touch(order)
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}

		log.Info().
			Str("service", "ledger").
			Str("order_id", order.OrderID).
			Str("symbol", order.Symbol).
			Str("side", order.Side).
			Msg("order canceled")
		return nil
	})
}

// ---------------------------------------------------------------------------
// External cash events
// ---------------------------------------------------------------------------

func (s *Service) Deposit(amount float64, asOf time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.db.Transaction(func(tx *Database) error {
		cash, err := tx.GetCashPosition()
		if err != nil {
			return err
		}
		if cash == nil {
			cash = &types.Position{AssetType: types.AssetCash}
			if err := tx.CreatePosition(cash); err != nil {
				return err
			}
		}
		cash.TotalValue += amount
		cash.Available += amount
		if err := tx.SavePosition(cash); err != nil {
			return err
		}
		return tx.CreateTransaction(&types.Transaction{
			TransactionID: uuid.New().String(),
			Kind:          types.TxDeposit,
			Amount:        amount,
			Timestamp:     asOf,
		})
	})
}

func (s *Service) Withdraw(amount float64, asOf time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.db.Transaction(func(tx *Database) error {
		cash, err := tx.GetCashPosition()
		if err != nil {
			return err
		}
		if cash == nil || cash.TotalValue < amount || cash.Available < amount {
			return ErrInsufficientFunds
		}
		cash.TotalValue -= amount
		cash.Available -= amount
		if err := tx.SavePosition(cash); err != nil {
			return err
		}
		return tx.CreateTransaction(&types.Transaction{
			TransactionID: uuid.New().String(),
			Kind:          types.TxWithdraw,
			Amount:        -amount,
			Timestamp:     asOf,
		})
	})
}

// Dividend credits shares×perShare to cash for a held symbol.
func (s *Service) Dividend(symbol string, perShare float64, asOf time.Time) error {
	if perShare <= 0 {
		return ErrInvalidAmount
	}
	return s.db.Transaction(func(tx *Database) error {
		pos, err := tx.GetStockPosition(symbol)
		if err != nil {
			return err
		}
		if pos == nil || pos.Shares == 0 {
			return ErrPositionNotFound
		}
		total := float64(pos.Shares) * perShare

		cash, err := tx.GetCashPosition()
		if err != nil {
			return err
		}
		if cash == nil {
			return ErrPositionNotFound
		}
		cash.TotalValue += total
		cash.Available += total
		if err := tx.SavePosition(cash); err != nil {
			return err
		}

		sym := symbol
		return tx.CreateTransaction(&types.Transaction{
			TransactionID: uuid.New().String(),
			Kind:          types.TxDividend,
			Symbol:        &sym,
			PricePerShare: perShare,
			Shares:        pos.Shares,
			Amount:        total,
			Timestamp:     asOf,
		})
	})
}

// ---------------------------------------------------------------------------
// Marks and snapshots
// ---------------------------------------------------------------------------

// MarkPosition updates the mark price and mark-to-market value of a held
// stock. The ledger is the only position writer, so mark refreshes flow
// through here as well.
func (s *Service) MarkPosition(symbol string, price float64) error {
	pos, err := s.db.GetStockPosition(symbol)
	if err != nil {
		return err
	}
	if pos == nil {
		return ErrPositionNotFound
	}
	pos.MarkPrice = price
	pos.TotalValue = float64(pos.Shares) * price
	return s.db.SavePosition(pos)
}

// SnapshotValue appends (or overwrites) the daily total equity snapshot.
func (s *Service) SnapshotValue(day time.Time) error {
	positions, err := s.db.GetPositions()
	if err != nil {
		return err
	}
	var total float64
	for _, pos := range positions {
		total += pos.TotalValue
	}
	return s.db.UpsertPortfolioValue(day.Format("2006-01-02"), total)
}

// ---------------------------------------------------------------------------
// Read-only queries
// ---------------------------------------------------------------------------

func (s *Service) GetOpenOrders() ([]types.Order, error) {
	return s.db.GetOrdersByStatus(types.OrderPending)
}

func (s *Service) GetOrders(status string) ([]types.Order, error) {
	if status == "" {
		return s.db.GetOrders()
	}
	return s.db.GetOrdersByStatus(status)
}

func (s *Service) GetPositions() ([]types.Position, error) {
	return s.db.GetPositions()
}

func (s *Service) GetStockPositions() ([]types.Position, error) {
	return s.db.GetStockPositions()
}

func (s *Service) GetTransactions(limit int) ([]types.Transaction, error) {
	return s.db.GetTransactions(limit)
}

func (s *Service) GetPortfolioValues() ([]types.PortfolioValue, error) {
	return s.db.GetPortfolioValues()
}

// AvailableCash returns the uncommitted cash balance, net of reservations
// held by pending BUY orders.
func (s *Service) AvailableCash() (float64, error) {
	cash, err := s.db.GetCashPosition()
	if err != nil {
		return 0, err
	}
	if cash == nil {
		return 0, nil
	}
	return cash.Available, nil
}

func (s *Service) CashBalance() (float64, error) {
	cash, err := s.db.GetCashPosition()
	if err != nil {
		return 0, err
	}
	if cash == nil {
		return 0, nil
	}
	return cash.TotalValue, nil
}

// HeldSymbols returns the symbols of all current stock positions.
func (s *Service) HeldSymbols() (map[string]int64, error) {
	positions, err := s.db.GetStockPositions()
	if err != nil {
		return nil, err
	}
	held := make(map[string]int64, len(positions))
	for _, pos := range positions {
		if pos.Symbol != nil {
			held[*pos.Symbol] = pos.Shares
		}
	}
	return held, nil
}

// PendingBuySymbols returns symbols that already have an open BUY order.
func (s *Service) PendingBuySymbols() (map[string]bool, error) {
	return s.pendingSymbols(types.SideBuy)
}

// PendingSellSymbols returns symbols that already have an open SELL order.
func (s *Service) PendingSellSymbols() (map[string]bool, error) {
	return s.pendingSymbols(types.SideSell)
}

func (s *Service) pendingSymbols(side string) (map[string]bool, error) {
	symbols, err := s.db.GetOpenOrderSymbols(side)
	if err != nil {
		return nil, err
	}
	pending := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		pending[sym] = true
	}
	return pending, nil
}
