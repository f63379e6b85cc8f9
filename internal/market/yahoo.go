package market

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog/log"
)

// YahooProvider serves realized daily ranges from Yahoo Finance.
type YahooProvider struct{}

func NewYahooProvider() *YahooProvider {
	return &YahooProvider{}
}

// DailyRange fetches the low/high for one symbol on one day. Returns
// ErrNotAvailable when the symbol did not trade that day (holiday, halted,
// delisted), so the caller can skip it without failing the run.
func (p *YahooProvider) DailyRange(ctx context.Context, symbol string, day time.Time) (Range, error) {
	bar, err := p.dailyBar(ctx, symbol, day)
	if err != nil {
		return Range{}, err
	}
	return Range{
		Low:  bar.low,
		High: bar.high,
	}, nil
}

func (p *YahooProvider) Close(ctx context.Context, symbol string, day time.Time) (float64, error) {
	bar, err := p.dailyBar(ctx, symbol, day)
	if err != nil {
		return 0, err
	}
	return bar.close, nil
}

type dayBar struct {
	low, high, close float64
}

func (p *YahooProvider) dailyBar(ctx context.Context, symbol string, day time.Time) (dayBar, error) {
	if err := ctx.Err(); err != nil {
		return dayBar{}, err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)
	for iter.Next() {
		b := iter.Bar()
		barDay := time.Unix(int64(b.Timestamp), 0)
		if barDay.Format("2006-01-02") != start.Format("2006-01-02") {
			continue
		}
		return dayBar{
			low:   b.Low.InexactFloat64(),
			high:  b.High.InexactFloat64(),
			close: b.Close.InexactFloat64(),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return dayBar{}, fmt.Errorf("chart fetch for %s: %w", symbol, err)
	}

	log.Debug().
		Str("component", "yahoo_provider").
		Str("symbol", symbol).
		Str("date", start.Format("2006-01-02")).
		Msg("no bar for requested day")
	return dayBar{}, ErrNotAvailable
}
