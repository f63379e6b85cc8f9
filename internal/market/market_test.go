package market

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestBandSpread(t *testing.T) {
	cases := []struct {
		band Band
		want float64
	}{
		{Band{Low: 100, High: 112}, 0.12},
		{Band{Low: 100, High: 108}, 0.08},
		{Band{Low: 0, High: 10}, 0},
		{Band{Low: -1, High: 10}, 0},
	}
	for _, tc := range cases {
		if got := tc.band.Spread(); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Spread(%+v) = %v, want %v", tc.band, got, tc.want)
		}
	}
}

func TestStaticProviderMissingData(t *testing.T) {
	p := NewStaticProvider()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	if _, err := p.DailyRange(context.Background(), "NOD.OL", day); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("DailyRange err = %v, want ErrNotAvailable", err)
	}
	if _, err := p.Forecast(context.Background(), "NOD.OL", day); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Forecast err = %v, want ErrNotAvailable", err)
	}
}

func TestStaticProviderCloseDefaultsToMidpoint(t *testing.T) {
	p := NewStaticProvider()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	p.SetRange("NOD.OL", day, Range{Low: 98, High: 106})
	close, err := p.Close(context.Background(), "NOD.OL", day)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if close != 102 {
		t.Errorf("close = %v, want midpoint 102", close)
	}
}
