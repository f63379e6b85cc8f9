package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ForecastClient fetches predicted price bands from the model-inference
// HTTP service. The service exposes one trained regressor per ticker and
// returns the predicted [low, high] for the next horizon.
type ForecastClient struct {
	client *resty.Client
}

func NewForecastClient(baseURL string) *ForecastClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(2)

	return &ForecastClient{client: client}
}

func (c *ForecastClient) Forecast(ctx context.Context, symbol string, asOf time.Time) (Band, error) {
	var band Band
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("asOf", asOf.Format("2006-01-02")).
		SetResult(&band).
		Get(fmt.Sprintf("/predict_next/%s", symbol))
	if err != nil {
		return Band{}, fmt.Errorf("forecast fetch for %s: %w", symbol, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Band{}, ErrNotAvailable
	}
	if resp.IsError() {
		return Band{}, fmt.Errorf("forecast fetch for %s: status %d", symbol, resp.StatusCode())
	}
	if band.Low <= 0 || band.High <= 0 {
		return Band{}, ErrNotAvailable
	}
	return band, nil
}

// Symbols lists the tickers with a trained model behind the service.
func (c *ForecastClient) Symbols(ctx context.Context) ([]string, error) {
	var trained []struct {
		Symbol string `json:"symbol"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&trained).
		Get("/companies/trained")
	if err != nil {
		return nil, fmt.Errorf("trained symbols fetch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("trained symbols fetch: status %d", resp.StatusCode())
	}

	symbols := make([]string, 0, len(trained))
	for _, t := range trained {
		symbols = append(symbols, t.Symbol)
	}
	return symbols, nil
}
