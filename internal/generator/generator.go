// Package generator converts an accepted trading plan into persisted
// PENDING limit orders. It only ever appends order rows; positions and cash
// are touched exclusively through the ledger's own reservation logic.
package generator

import (
	"errors"
	"time"

	"github.com/orjancarlsen/stock-price-prediction/internal/fees"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/strategy"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
	"github.com/rs/zerolog/log"
)

type Generator struct {
	ledger *ledger.Service
	fees   fees.Schedule
}

func New(ledgerSvc *ledger.Service, schedule fees.Schedule) *Generator {
	return &Generator{
		ledger: ledgerSvc,
		fees:   schedule,
	}
}

// Result summarizes one generation pass.
type Result struct {
	Created int
	Skipped int
}

// Generate persists one order per plan entry. Creation is idempotent per
// symbol, side and day, so re-running after a partial failure never
// duplicates orders. Failures on one symbol are logged and do not block
// the rest.
func (g *Generator) Generate(plan strategy.Plan, day time.Time) Result {
	logger := log.With().
		Str("component", "generator").
		Str("date", day.Format("2006-01-02")).
		Logger()

	var result Result

	for _, sell := range plan.Sells {
		if sell.Shares == 0 {
			result.Skipped++
			continue
		}
		fee := g.fees.For(sell.LimitPrice, sell.Shares)
		_, created, err := g.ledger.CreateOrder(types.SideSell, sell.Symbol, sell.LimitPrice, sell.Shares, fee, day)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientShares) {
				logger.Warn().Str("symbol", sell.Symbol).Msg("shares no longer held, skipping sell order")
			} else {
				logger.Error().Err(err).Str("symbol", sell.Symbol).Msg("failed to create sell order")
			}
			result.Skipped++
			continue
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Created++
	}

	for _, buy := range plan.Buys {
		if buy.Shares == 0 {
			result.Skipped++
			continue
		}
		fee := g.fees.For(buy.LimitPrice, buy.Shares)
		_, created, err := g.ledger.CreateOrder(types.SideBuy, buy.Symbol, buy.LimitPrice, buy.Shares, fee, day)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				logger.Warn().
					Str("symbol", buy.Symbol).
					Float64("limit_price", buy.LimitPrice).
					Int64("shares", buy.Shares).
					Msg("available cash no longer covers order, skipping buy")
			} else {
				logger.Error().Err(err).Str("symbol", buy.Symbol).Msg("failed to create buy order")
			}
			result.Skipped++
			continue
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Created++
	}

	logger.Info().
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Msg("order generation complete")

	return result
}
