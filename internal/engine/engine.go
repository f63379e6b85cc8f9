// Package engine wires the daily pipeline together: settle yesterday's
// open orders, refresh marks, rank fresh forecasts against post-settlement
// ledger state, generate the next cycle's orders, snapshot equity. The
// stages run strictly in that order because ranking depends on the cash and
// positions reconciliation just produced.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/orjancarlsen/stock-price-prediction/internal/generator"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/market"
	"github.com/orjancarlsen/stock-price-prediction/internal/reconciler"
	"github.com/orjancarlsen/stock-price-prediction/internal/strategy"
	"github.com/rs/zerolog/log"
)

type Engine struct {
	ledger     *ledger.Service
	reconciler *reconciler.Reconciler
	ranker     *strategy.Ranker
	generator  *generator.Generator
	prices     market.PriceProvider
	forecasts  market.ForecastProvider
}

func New(
	ledgerSvc *ledger.Service,
	rec *reconciler.Reconciler,
	ranker *strategy.Ranker,
	gen *generator.Generator,
	prices market.PriceProvider,
	forecasts market.ForecastProvider,
) *Engine {
	return &Engine{
		ledger:     ledgerSvc,
		reconciler: rec,
		ranker:     ranker,
		generator:  gen,
		prices:     prices,
		forecasts:  forecasts,
	}
}

// RunDaily executes one full trading cycle for the given day. The whole run
// is safe to repeat: settled orders are guarded by their PENDING check,
// generated orders by their dedup key, and the snapshot is an upsert.
func (e *Engine) RunDaily(ctx context.Context, day time.Time) error {
	logger := log.With().
		Str("component", "engine").
		Str("date", day.Format("2006-01-02")).
		Logger()

	logger.Info().Msg("starting daily run")

	// Reconciliation must complete before ranking reads ledger state.
	recResult, err := e.reconciler.Reconcile(ctx, day)
	if err != nil {
		return err
	}

	e.refreshMarks(ctx, day)

	forecasts := e.fetchForecasts(ctx, day)

	plan, err := e.ranker.BuildPlan(forecasts)
	if err != nil {
		return err
	}

	genResult := e.generator.Generate(plan, day)

	if err := e.ledger.SnapshotValue(day); err != nil {
		logger.Error().Err(err).Msg("failed to snapshot portfolio value")
	}

	logger.Info().
		Int("executed", recResult.Executed).
		Int("canceled", recResult.Canceled).
		Int("orders_created", genResult.Created).
		Msg("daily run complete")

	return nil
}

// refreshMarks updates held positions to the day's closing price so the
// snapshot reflects market values, not stale cost bases. A missing close
// leaves the previous mark in place.
func (e *Engine) refreshMarks(ctx context.Context, day time.Time) {
	logger := log.With().
		Str("component", "engine").
		Str("date", day.Format("2006-01-02")).
		Logger()

	held, err := e.ledger.HeldSymbols()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list holdings for mark refresh")
		return
	}

	for symbol := range held {
		close, err := e.prices.Close(ctx, symbol, day)
		if err != nil {
			if errors.Is(err, market.ErrNotAvailable) {
				logger.Debug().Str("symbol", symbol).Msg("no close for day, keeping previous mark")
			} else {
				logger.Error().Err(err).Str("symbol", symbol).Msg("close fetch failed")
			}
			continue
		}
		if err := e.ledger.MarkPosition(symbol, close); err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("failed to update mark")
		}
	}
}

// fetchForecasts collects the bands available for this run. Any symbol may
// be missing; those are simply absent from the result.
func (e *Engine) fetchForecasts(ctx context.Context, day time.Time) map[string]market.Band {
	logger := log.With().
		Str("component", "engine").
		Str("date", day.Format("2006-01-02")).
		Logger()

	symbols, err := e.forecasts.Symbols(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list forecastable symbols")
		return nil
	}

	bands := make(map[string]market.Band, len(symbols))
	for _, symbol := range symbols {
		band, err := e.forecasts.Forecast(ctx, symbol, day)
		if err != nil {
			if errors.Is(err, market.ErrNotAvailable) {
				logger.Debug().Str("symbol", symbol).Msg("no forecast for symbol this run")
			} else {
				logger.Error().Err(err).Str("symbol", symbol).Msg("forecast fetch failed")
			}
			continue
		}
		bands[symbol] = band
	}

	logger.Info().Int("symbols", len(symbols)).Int("forecasts", len(bands)).Msg("fetched forecasts")
	return bands
}
