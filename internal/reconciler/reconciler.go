// Package reconciler settles open orders against realized daily price
// ranges. Intraday sequencing is not observable after the fact, so the rule
// uses only the day's extremes: a BUY fills if the low reached its limit, a
// SELL fills if the high reached its limit, always at the order's own limit
// price.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/orjancarlsen/stock-price-prediction/internal/fees"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/market"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Reconciler struct {
	ledger *ledger.Service
	prices market.PriceProvider
	fees   fees.Schedule

	// ttlDays is how many calendar days a PENDING order may survive
	// without filling before it is canceled. 0 keeps orders open
	// indefinitely. Expiry only applies on days the symbol actually
	// traded; a missing price never concludes an order.
	ttlDays int
}

func New(ledgerSvc *ledger.Service, prices market.PriceProvider, schedule fees.Schedule, ttlDays int) *Reconciler {
	return &Reconciler{
		ledger:  ledgerSvc,
		prices:  prices,
		fees:    schedule,
		ttlDays: ttlDays,
	}
}

// Result summarizes one reconciliation pass.
type Result struct {
	Executed int
	Canceled int
	Skipped  int
}

// Reconcile settles every open order against the given day's price ranges.
// Each symbol is processed independently: missing prices or storage
// failures for one order are logged and never block the rest. Re-running
// for the same day is a no-op because settled orders are no longer PENDING.
func (r *Reconciler) Reconcile(ctx context.Context, day time.Time) (Result, error) {
	logger := log.With().
		Str("component", "reconciler").
		Str("date", day.Format("2006-01-02")).
		Logger()

	orders, err := r.ledger.GetOpenOrders()
	if err != nil {
		return Result{}, err
	}

	logger.Info().Int("open_orders", len(orders)).Msg("reconciling open orders")

	var result Result
	ranges := make(map[string]*market.Range)

	for _, order := range orders {
		// Orders conclude on days after creation only; without this a
		// retried run would fill the orders its first attempt generated.
		if !dateOnly(order.CreatedAt).Before(dateOnly(day)) {
			result.Skipped++
			continue
		}

		rng, ok := ranges[order.Symbol]
		if !ok {
			fetched, err := r.prices.DailyRange(ctx, order.Symbol, day)
			if err != nil {
				if errors.Is(err, market.ErrNotAvailable) {
					logger.Debug().Str("symbol", order.Symbol).Msg("no price for day, order stays pending")
				} else {
					logger.Error().Err(err).Str("symbol", order.Symbol).Msg("price fetch failed, order stays pending")
				}
				ranges[order.Symbol] = nil
				result.Skipped++
				continue
			}
			rng = &fetched
			ranges[order.Symbol] = rng
		}
		if rng == nil {
			result.Skipped++
			continue
		}

		switch r.conclude(order, *rng, day, logger) {
		case types.OrderExecuted:
			result.Executed++
		case types.OrderCanceled:
			result.Canceled++
		default:
			result.Skipped++
		}
	}

	logger.Info().
		Int("executed", result.Executed).
		Int("canceled", result.Canceled).
		Int("skipped", result.Skipped).
		Msg("reconciliation complete")

	return result, nil
}

// conclude decides and applies one order's fate for the day. Returns the
// resulting status, or PENDING when the order was left open or skipped.
func (r *Reconciler) conclude(order types.Order, rng market.Range, day time.Time, logger zerolog.Logger) string {
	triggered := (order.Side == types.SideBuy && rng.Low <= order.LimitPrice) ||
		(order.Side == types.SideSell && rng.High >= order.LimitPrice)

	if triggered {
		// Fills happen exactly at the limit, never at a better price.
		fee := r.fees.For(order.LimitPrice, order.Shares)
		err := r.ledger.SettleOrder(order.OrderID, order.LimitPrice, fee, day)
		if err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				logger.Debug().Str("order_id", order.OrderID).Msg("order already concluded, skipping")
				return types.OrderPending
			}
			// The backing shares are gone, so the order can never
			// fill; leaving it open risks it executing against a
			// future re-entry at a stale limit.
			if errors.Is(err, ledger.ErrInsufficientShares) {
				if cancelErr := r.ledger.CancelOrder(order.OrderID); cancelErr != nil {
					logger.Error().Err(cancelErr).Str("order_id", order.OrderID).Msg("cancellation failed")
					return types.OrderPending
				}
				logger.Warn().
					Str("order_id", order.OrderID).
					Str("symbol", order.Symbol).
					Msg("sell order no longer backed by shares, canceled")
				return types.OrderCanceled
			}
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("settlement failed")
			return types.OrderPending
		}
		return types.OrderExecuted
	}

	if r.expired(order, day) {
		if err := r.ledger.CancelOrder(order.OrderID); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				logger.Debug().Str("order_id", order.OrderID).Msg("order already concluded, skipping")
				return types.OrderPending
			}
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("cancellation failed")
			return types.OrderPending
		}
		logger.Info().
			Str("order_id", order.OrderID).
			Str("symbol", order.Symbol).
			Int("ttl_days", r.ttlDays).
			Msg("order expired without filling")
		return types.OrderCanceled
	}

	return types.OrderPending
}

func (r *Reconciler) expired(order types.Order, day time.Time) bool {
	if r.ttlDays <= 0 {
		return false
	}
	age := int(dateOnly(day).Sub(dateOnly(order.CreatedAt)).Hours() / 24)
	return age >= r.ttlDays
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
