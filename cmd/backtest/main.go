// Backtest replays the daily trading engine over a historical date span
// using synthetic price paths, so strategy parameters can be evaluated
// without touching live market data or the real portfolio database.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/orjancarlsen/stock-price-prediction/internal/config"
	"github.com/orjancarlsen/stock-price-prediction/internal/database"
	"github.com/orjancarlsen/stock-price-prediction/internal/engine"
	"github.com/orjancarlsen/stock-price-prediction/internal/fees"
	"github.com/orjancarlsen/stock-price-prediction/internal/generator"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/market"
	"github.com/orjancarlsen/stock-price-prediction/internal/reconciler"
	"github.com/orjancarlsen/stock-price-prediction/internal/strategy"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
)

var symbols = []string{"AAPL", "AMZN", "EQNR.OL", "GOOGL", "MSFT", "NOD.OL"}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	var (
		startFlag = flag.String("start", "2024-01-02", "first day to replay (YYYY-MM-DD)")
		endFlag   = flag.String("end", "2024-03-29", "last day to replay (YYYY-MM-DD)")
		cash      = flag.Float64("cash", 100000, "initial cash deposit")
		seed      = flag.Int64("seed", 1, "price path random seed")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid start date")
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid end date")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Shared cache keeps every pooled connection on the same in-memory
	// database.
	db, err := database.NewDatabase("file::memory:?cache=shared")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	ledgerService := ledger.NewService(db)
	if err := ledgerService.EnsureCashPosition(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cash position")
	}
	if err := ledgerService.Deposit(*cash, start); err != nil {
		log.Fatal().Err(err).Msg("failed to deposit initial cash")
	}

	provider, err := seedPrices(start, end, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed prices")
	}

	schedule := fees.Schedule{Rate: cfg.FeeRate, Minimum: cfg.MinimumFee}
	rec := reconciler.New(ledgerService, provider, schedule, cfg.OrderTTLDays)
	ranker := strategy.NewRanker(ledgerService, strategy.Params{
		MinSpread:    cfg.MinSpread,
		MaxPositions: cfg.MaxPositions,
		BuyBuffer:    cfg.BuyBuffer,
		SellBuffer:   cfg.SellBuffer,
		Fees:         schedule,
	}, nil)
	gen := generator.New(ledgerService, schedule)
	eng := engine.New(ledgerService, rec, ranker, gen, provider, provider)

	ctx := context.Background()
	days := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if err := eng.RunDaily(ctx, day); err != nil {
			log.Error().Err(err).Str("date", day.Format("2006-01-02")).Msg("run failed")
		}
		days++
	}

	printSummary(ledgerService, *cash, days)
}

// seedPrices builds a random-walk price path per symbol and derives both
// the realized daily ranges and the forecast bands from it. Forecast
// quality is deliberately noisy: bands are the forward window's realized
// range widened by a random factor.
func seedPrices(start, end time.Time, seed int64) (*market.StaticProvider, error) {
	rng := rand.New(rand.NewSource(seed))
	provider := market.NewStaticProvider()

	weekdays := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			weekdays++
		}
	}
	if weekdays == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	for _, symbol := range symbols {
		price := 50 + rng.Float64()*200

		var lows, highs []float64
		var tradingDays []time.Time
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			// Daily drift up to ±3%, intraday range up to 4%
			price *= 1 + (rng.Float64()-0.5)*0.06
			low := price * (1 - rng.Float64()*0.02)
			high := price * (1 + rng.Float64()*0.02)
			provider.SetRange(symbol, day, market.Range{Low: low, High: high})
			provider.SetClose(symbol, day, price)
			lows = append(lows, low)
			highs = append(highs, high)
			tradingDays = append(tradingDays, day)
		}

		// Band over the whole span, widened so some symbols pass the
		// spread gate and some do not.
		low, high := lows[0], highs[0]
		for i := range lows {
			if lows[i] < low {
				low = lows[i]
			}
			if highs[i] > high {
				high = highs[i]
			}
		}
		provider.SetBand(symbol, market.Band{
			Low:  low * (1 + rng.Float64()*0.05),
			High: high * (1 - rng.Float64()*0.05),
		})
	}

	return provider, nil
}

func printSummary(ledgerService *ledger.Service, initialCash float64, days int) {
	positions, err := ledgerService.GetPositions()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read positions")
	}
	orders, err := ledgerService.GetOrders("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read orders")
	}
	values, err := ledgerService.GetPortfolioValues()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read value history")
	}

	var total float64
	fmt.Println("\n=== Backtest Summary ===")
	fmt.Printf("%-10s %10s %12s %12s\n", "ASSET", "SHARES", "AVG PRICE", "VALUE")
	for _, pos := range positions {
		name := pos.AssetType
		if pos.Symbol != nil {
			name = *pos.Symbol
		}
		fmt.Printf("%-10s %10d %12.2f %12.2f\n", name, pos.Shares, pos.AvgPrice, pos.TotalValue)
		total += pos.TotalValue
	}

	executed, canceled, pending := 0, 0, 0
	for _, order := range orders {
		switch order.Status {
		case types.OrderExecuted:
			executed++
		case types.OrderCanceled:
			canceled++
		default:
			pending++
		}
	}

	fmt.Printf("\nTrading days:      %d\n", days)
	fmt.Printf("Orders executed:   %d\n", executed)
	fmt.Printf("Orders canceled:   %d\n", canceled)
	fmt.Printf("Orders pending:    %d\n", pending)
	fmt.Printf("Snapshots:         %d\n", len(values))
	fmt.Printf("Initial cash:      %.2f\n", initialCash)
	fmt.Printf("Final equity:      %.2f\n", total)
	fmt.Printf("Return:            %+.2f%%\n", (total/initialCash-1)*100)
}
