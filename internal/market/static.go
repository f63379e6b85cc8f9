package market

import (
	"context"
	"sort"
	"time"
)

// StaticProvider is an in-memory PriceProvider and ForecastProvider, used
// by tests and by the backtest driver to replay seeded data.
type StaticProvider struct {
	// Ranges maps symbol -> date (2006-01-02) -> realized range.
	Ranges map[string]map[string]Range
	// Closes maps symbol -> date -> closing price.
	Closes map[string]map[string]float64
	// Bands maps symbol -> forecast band, constant across days.
	Bands map[string]Band
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		Ranges: make(map[string]map[string]Range),
		Closes: make(map[string]map[string]float64),
		Bands:  make(map[string]Band),
	}
}

func (p *StaticProvider) SetRange(symbol string, day time.Time, r Range) {
	key := day.Format("2006-01-02")
	if p.Ranges[symbol] == nil {
		p.Ranges[symbol] = make(map[string]Range)
	}
	p.Ranges[symbol][key] = r
	if p.Closes[symbol] == nil {
		p.Closes[symbol] = make(map[string]float64)
	}
	// Default the close to the midpoint unless set explicitly.
	if _, ok := p.Closes[symbol][key]; !ok {
		p.Closes[symbol][key] = (r.Low + r.High) / 2
	}
}

func (p *StaticProvider) SetClose(symbol string, day time.Time, close float64) {
	if p.Closes[symbol] == nil {
		p.Closes[symbol] = make(map[string]float64)
	}
	p.Closes[symbol][day.Format("2006-01-02")] = close
}

func (p *StaticProvider) SetBand(symbol string, band Band) {
	p.Bands[symbol] = band
}

func (p *StaticProvider) DailyRange(ctx context.Context, symbol string, day time.Time) (Range, error) {
	r, ok := p.Ranges[symbol][day.Format("2006-01-02")]
	if !ok {
		return Range{}, ErrNotAvailable
	}
	return r, nil
}

func (p *StaticProvider) Close(ctx context.Context, symbol string, day time.Time) (float64, error) {
	c, ok := p.Closes[symbol][day.Format("2006-01-02")]
	if !ok {
		return 0, ErrNotAvailable
	}
	return c, nil
}

func (p *StaticProvider) Forecast(ctx context.Context, symbol string, asOf time.Time) (Band, error) {
	band, ok := p.Bands[symbol]
	if !ok {
		return Band{}, ErrNotAvailable
	}
	return band, nil
}

func (p *StaticProvider) Symbols(ctx context.Context) ([]string, error) {
	symbols := make([]string, 0, len(p.Bands))
	for sym := range p.Bands {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}
