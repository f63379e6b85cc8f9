package ledger

import (
	"errors"
	"time"

	"github.com/orjancarlsen/stock-price-prediction/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// tx returns the receiver bound to an open transaction, so Service-level
// operations can compose Database calls atomically.
func (d *Database) tx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByDedupKey looks up an order by its generation idempotency key.
func (d *Database) GetOrderByDedupKey(key string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("dedup_key = ?", key).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

func (d *Database) GetOrders() ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) GetOrdersByStatus(status string) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("status = ?", status).Order("created_at ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOpenOrderSymbols returns the distinct symbols with a PENDING order of
// the given side.
func (d *Database) GetOpenOrderSymbols(side string) ([]string, error) {
	var symbols []string
	err := d.db.Model(&types.Order{}).
		Where("status = ? AND side = ?", types.OrderPending, side).
		Distinct().
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

func (d *Database) GetCashPosition() (*types.Position, error) {
	var pos types.Position
	err := d.db.Where("asset_type = ? AND symbol IS NULL", types.AssetCash).First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pos, nil
}

func (d *Database) GetStockPosition(symbol string) (*types.Position, error) {
	var pos types.Position
	err := d.db.Where("asset_type = ? AND symbol = ?", types.AssetStock, symbol).First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pos, nil
}

func (d *Database) GetPositions() ([]types.Position, error) {
	var positions []types.Position
	if err := d.db.Order("asset_type ASC, symbol ASC").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

func (d *Database) GetStockPositions() ([]types.Position, error) {
	var positions []types.Position
	err := d.db.Where("asset_type = ?", types.AssetStock).Order("symbol ASC").Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (d *Database) SavePosition(pos *types.Position) error {
	return d.db.Save(pos).Error
}

func (d *Database) CreatePosition(pos *types.Position) error {
	return d.db.Create(pos).Error
}

func (d *Database) DeletePosition(pos *types.Position) error {
	return d.db.Unscoped().Delete(pos).Error
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

func (d *Database) CreateTransaction(txn *types.Transaction) error {
	return d.db.Create(txn).Error
}

func (d *Database) GetTransactions(limit int) ([]types.Transaction, error) {
	q := d.db.Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var txns []types.Transaction
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ---------------------------------------------------------------------------
// Portfolio value snapshots
// ---------------------------------------------------------------------------

// UpsertPortfolioValue records the mark-to-market equity for a day,
// overwriting any earlier snapshot for the same date so reruns stay
// idempotent.
func (d *Database) UpsertPortfolioValue(date string, value float64) error {
	var existing types.PortfolioValue
	err := d.db.Where("date = ?", date).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d.db.Create(&types.PortfolioValue{Date: date, Value: value}).Error
		}
		return err
	}
	existing.Value = value
	return d.db.Save(&existing).Error
}

func (d *Database) GetPortfolioValues() ([]types.PortfolioValue, error) {
	var values []types.PortfolioValue
	if err := d.db.Order("date ASC").Find(&values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

// Transaction runs fn inside a single storage transaction.
func (d *Database) Transaction(fn func(*Database) error) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := fn(d.tx(tx)); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// touch is a small helper for bumping UpdatedAt consistently.
func touch(order *types.Order) {
	order.UpdatedAt = time.Now()
}
