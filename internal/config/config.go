package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime settings, loaded from the environment.
type Config struct {
	DBPath    string `env:"DB_PATH" envDefault:"storage.db"`
	Port      string `env:"PORT" envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"broker-secret-key"`

	// Trading parameters
	FeeRate      float64 `env:"FEE_RATE" envDefault:"0.001"`
	MinimumFee   float64 `env:"MINIMUM_FEE" envDefault:"0"`
	MaxPositions int     `env:"MAX_POSITIONS" envDefault:"10"`
	MinSpread    float64 `env:"MIN_SPREAD" envDefault:"0.10"`
	BuyBuffer    float64 `env:"BUY_BUFFER" envDefault:"0.02"`
	SellBuffer   float64 `env:"SELL_BUFFER" envDefault:"0.02"`

	// OrderTTLDays is how many calendar days a PENDING order survives
	// without filling before the reconciler cancels it. 0 keeps orders
	// open indefinitely.
	OrderTTLDays int `env:"ORDER_TTL_DAYS" envDefault:"1"`

	RunInterval     time.Duration `env:"RUN_INTERVAL" envDefault:"24h"`
	ForecastBaseURL string        `env:"FORECAST_BASE_URL" envDefault:"http://localhost:2000"`
	Currency        string        `env:"CURRENCY" envDefault:"NOK"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
