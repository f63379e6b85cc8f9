// Package strategy turns a batch of forecast bands into a bounded,
// prioritized action set: sell everything currently held, buy the
// best-scoring unheld candidates that fit the open slots and the available
// cash. It reads ledger state but never writes; persisting orders is the
// generator's job.
package strategy

import (
	"sort"

	"github.com/orjancarlsen/stock-price-prediction/internal/fees"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/market"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Params bounds the action set.
type Params struct {
	// MinSpread is the qualifying gate: bands narrower than this relative
	// spread are not worth transacting.
	MinSpread float64
	// MaxPositions caps concurrently held symbols.
	MaxPositions int
	BuyBuffer    float64 // buy limit = low × (1 + BuyBuffer)
	SellBuffer   float64 // sell limit = high × (1 − SellBuffer)
	Fees         fees.Schedule
}

// SellCandidate exits a full position at a limit derived from the band.
type SellCandidate struct {
	Symbol     string
	Shares     int64
	LimitPrice float64
}

// BuyCandidate enters a new position with cash allocated by the sizer.
type BuyCandidate struct {
	Symbol     string
	Shares     int64
	LimitPrice float64
	Allocated  float64
	Score      float64
}

// Plan is the ranked action set for one run.
type Plan struct {
	Sells []SellCandidate
	Buys  []BuyCandidate
}

// Scorer ranks qualifying unheld candidates. Higher is better.
type Scorer interface {
	Score(band market.Band, buyLimit, sellLimit float64) float64
}

// ReturnScorer scores by expected net return per unit of invested cash:
// buy at the buy limit, exit at the sell limit, fees on both legs.
type ReturnScorer struct {
	Fees fees.Schedule
}

func (s ReturnScorer) Score(band market.Band, buyLimit, sellLimit float64) float64 {
	if buyLimit <= 0 {
		return 0
	}
	proceeds := sellLimit * (1 - s.Fees.Rate)
	cost := buyLimit * (1 + s.Fees.Rate)
	return (proceeds - cost) / cost
}

type Ranker struct {
	ledger *ledger.Service
	params Params
	scorer Scorer
}

func NewRanker(ledgerSvc *ledger.Service, params Params, scorer Scorer) *Ranker {
	if scorer == nil {
		scorer = ReturnScorer{Fees: params.Fees}
	}
	return &Ranker{
		ledger: ledgerSvc,
		params: params,
		scorer: scorer,
	}
}

// BuildPlan partitions forecasted symbols into the sell set (all current
// holdings) and the buy set (top-ranked unheld candidates), then sizes each
// buy so that notional plus fee never exceeds the cash still available.
func (r *Ranker) BuildPlan(forecasts map[string]market.Band) (Plan, error) {
	logger := log.With().Str("component", "ranker").Logger()

	held, err := r.ledger.HeldSymbols()
	if err != nil {
		return Plan{}, err
	}
	pendingBuys, err := r.ledger.PendingBuySymbols()
	if err != nil {
		return Plan{}, err
	}
	pendingSells, err := r.ledger.PendingSellSymbols()
	if err != nil {
		return Plan{}, err
	}
	available, err := r.ledger.AvailableCash()
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{}

	// Sell set: every current holding, unconditionally. Holding through
	// the next window is never attempted; positions are re-entered only
	// if they rank again. A holding without a forecast cannot be priced
	// and stays put for this run.
	unsellable := 0
	for symbol, shares := range held {
		// An open SELL already covers these shares; a second order
		// would double-sell them once both trigger.
		if pendingSells[symbol] {
			continue
		}
		band, ok := forecasts[symbol]
		if !ok || shares == 0 {
			if shares > 0 {
				logger.Warn().Str("symbol", symbol).Msg("no forecast for held symbol, cannot price exit")
				unsellable++
			}
			continue
		}
		plan.Sells = append(plan.Sells, SellCandidate{
			Symbol:     symbol,
			Shares:     shares,
			LimitPrice: sellLimit(band, r.params.SellBuffer),
		})
	}
	sort.Slice(plan.Sells, func(i, j int) bool { return plan.Sells[i].Symbol < plan.Sells[j].Symbol })

	// Buy set: qualifying unheld symbols without an open BUY order,
	// ranked by the scorer, lexical tie-break for reproducible runs.
	type scored struct {
		symbol   string
		band     market.Band
		buyLimit float64
		score    float64
	}
	var candidates []scored
	for symbol, band := range forecasts {
		if band.Low <= 0 || band.High <= band.Low {
			continue
		}
		if band.Spread() < r.params.MinSpread {
			continue
		}
		if _, isHeld := held[symbol]; isHeld {
			continue
		}
		if pendingBuys[symbol] {
			continue
		}
		bl := buyLimit(band, r.params.BuyBuffer)
		candidates = append(candidates, scored{
			symbol:   symbol,
			band:     band,
			buyLimit: bl,
			score:    r.scorer.Score(band, bl, sellLimit(band, r.params.SellBuffer)),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].symbol < candidates[j].symbol
	})

	// Sells are assumed to free their slots, so only pending buys and
	// unsellable holdings consume capacity.
	slots := r.params.MaxPositions - len(pendingBuys) - unsellable
	if slots < 0 {
		slots = 0
	}
	if len(candidates) > slots {
		candidates = candidates[:slots]
	}

	// Size accepted buys from an equal split of available cash, bounded
	// sequentially by what is actually left.
	remaining := decimal.NewFromFloat(available)
	if len(candidates) > 0 {
		split := remaining.Div(decimal.NewFromInt(int64(len(candidates))))
		for _, c := range candidates {
			alloc := split
			if alloc.GreaterThan(remaining) {
				alloc = remaining
			}
			shares, cost := affordableShares(alloc, c.buyLimit, r.params.Fees)
			if shares == 0 {
				logger.Debug().Str("symbol", c.symbol).Msg("allocation affords no shares, skipping")
				continue
			}
			remaining = remaining.Sub(cost)
			allocF, _ := alloc.Float64()
			plan.Buys = append(plan.Buys, BuyCandidate{
				Symbol:     c.symbol,
				Shares:     shares,
				LimitPrice: c.buyLimit,
				Allocated:  allocF,
				Score:      c.score,
			})
		}
	}

	logger.Info().
		Int("forecasts", len(forecasts)).
		Int("sells", len(plan.Sells)).
		Int("buys", len(plan.Buys)).
		Float64("available_cash", available).
		Msg("built trading plan")

	return plan, nil
}

// buyLimit sets an achievable-but-cautious entry just above the predicted
// low, rounded to two decimals.
func buyLimit(band market.Band, buffer float64) float64 {
	limit := decimal.NewFromFloat(band.Low).Mul(decimal.NewFromFloat(1 + buffer))
	return limit.Round(2).InexactFloat64()
}

// sellLimit sets an achievable-but-ambitious exit just below the predicted
// high, rounded to two decimals.
func sellLimit(band market.Band, buffer float64) float64 {
	limit := decimal.NewFromFloat(band.High).Mul(decimal.NewFromFloat(1 - buffer))
	return limit.Round(2).InexactFloat64()
}

// affordableShares returns the largest share count whose cost (notional
// plus fee) fits the allocation, and that cost.
func affordableShares(alloc decimal.Decimal, limitPrice float64, schedule fees.Schedule) (int64, decimal.Decimal) {
	limit := decimal.NewFromFloat(limitPrice)
	if limit.LessThanOrEqual(decimal.Zero) {
		return 0, decimal.Zero
	}

	perShare := limit.Mul(decimal.NewFromFloat(1 + schedule.Rate))
	shares := alloc.Div(perShare).Floor().IntPart()

	// A minimum fee can push the total over the allocation; step down
	// until it fits.
	for shares > 0 {
		fee := decimal.NewFromFloat(schedule.For(limitPrice, shares))
		cost := limit.Mul(decimal.NewFromInt(shares)).Add(fee)
		if cost.LessThanOrEqual(alloc) {
			return shares, cost
		}
		shares--
	}
	return 0, decimal.Zero
}
