// Package market holds the external data collaborators of the trading core:
// realized daily price ranges and model-produced forecast bands. Both are
// allowed to be unavailable for any subset of symbols on any day; callers
// check ErrNotAvailable and skip the symbol for the run.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrNotAvailable means a provider has no data for the requested symbol and
// day. It is a per-symbol condition, never a reason to abort a run.
var ErrNotAvailable = errors.New("market data not available")

// Range is a day's realized price extremes for one symbol.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Band is a predicted [low, high] price range over the model's forward
// horizon, as of a data cutoff.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Spread is the relative width of the band, the gate for considering a
// trade at all.
func (b Band) Spread() float64 {
	if b.Low <= 0 {
		return 0
	}
	return (b.High - b.Low) / b.Low
}

// PriceProvider serves realized daily ranges. Used solely by the reconciler.
type PriceProvider interface {
	DailyRange(ctx context.Context, symbol string, day time.Time) (Range, error)
	// Close returns the day's closing price, used for refreshing position
	// marks before the portfolio value snapshot.
	Close(ctx context.Context, symbol string, day time.Time) (float64, error)
}

// ForecastProvider serves predicted price bands for the current run.
type ForecastProvider interface {
	Forecast(ctx context.Context, symbol string, asOf time.Time) (Band, error)
	// Symbols lists the tickers the model can currently forecast.
	Symbols(ctx context.Context) ([]string, error)
}
