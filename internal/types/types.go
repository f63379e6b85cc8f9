package types

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Asset kinds for portfolio positions
const (
	AssetCash  = "CASH"
	AssetStock = "STOCK"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order lifecycle states. PENDING is the only non-terminal state.
const (
	OrderPending  = "PENDING"
	OrderExecuted = "EXECUTED"
	OrderCanceled = "CANCELED"
)

// Transaction kinds
const (
	TxBuy      = "BUY"
	TxSell     = "SELL"
	TxDeposit  = "DEPOSIT"
	TxWithdraw = "WITHDRAW"
	TxDividend = "DIVIDEND"
)

// Position is one row per held instrument, plus a singular CASH row
// (AssetType CASH, Symbol nil). Only the ledger mutates positions.
type Position struct {
	gorm.Model `json:"-"`
	AssetType  string  `gorm:"uniqueIndex:idx_asset_symbol" json:"asset_type"`
	Symbol     *string `gorm:"uniqueIndex:idx_asset_symbol" json:"symbol,omitempty"`
	Shares     int64   `json:"shares"`
	AvgPrice   float64 `json:"avg_price"`
	MarkPrice  float64 `json:"mark_price"`
	TotalValue float64 `json:"total_value"`
	// Available is the uncommitted part of the cash balance: pending BUY
	// orders reserve their cost here until they execute or are canceled.
	// Unused on STOCK rows.
	Available float64 `json:"available"`
}

// Transaction is an immutable, append-only record of a ledger-affecting
// event. Amount is signed from the portfolio's point of view: negative for
// cash leaving (BUY, WITHDRAW), positive for cash entering.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string    `gorm:"uniqueIndex" json:"transaction_id"`
	Kind          string    `json:"kind"`
	Symbol        *string   `json:"symbol,omitempty"`
	PricePerShare float64   `json:"price_per_share"`
	Shares        int64     `json:"shares"`
	Fee           float64   `json:"fee"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// Order is a working intent to trade at a limit price. Created PENDING by
// the order generator, transitioned exactly once to EXECUTED or CANCELED by
// the reconciler.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string  `gorm:"uniqueIndex" json:"order_id"`
	Side       string  `json:"side"`
	Symbol     string  `json:"symbol"`
	LimitPrice float64 `json:"limit_price"`
	Shares     int64   `json:"shares"`
	Fee        float64 `json:"fee"`
	// Amount is the order's notional incl. fee for a BUY (cost),
	// excl. fee for a SELL (net proceeds).
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
	// DedupKey guards against duplicate generation on retried runs:
	// symbol + side + creation date.
	DedupKey  string    `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PortfolioValue is the daily mark-to-market equity snapshot, one row per
// trading day. Reporting only, never an input to trading decisions.
type PortfolioValue struct {
	gorm.Model `json:"-"`
	Date       string  `gorm:"uniqueIndex" json:"date"`
	Value      float64 `json:"value"`
}

// DedupKey builds the idempotency key for order generation.
func DedupKey(symbol, side string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", symbol, side, day.Format("2006-01-02"))
}
